/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package retry

import (
	"context"
	"time"
)

// DefaultWaitTime is the pause between two failed attempts when no
// WithWaitTime option is given.
const DefaultWaitTime = 3 * time.Second

// Policy describes how many times an operation is attempted and how long to
// wait after each failure. The wait is constant: no jitter, no growth.
type Policy struct {
	// Retries is the total number of attempts, the first one included.
	Retries  int
	WaitTime time.Duration

	sleep   func(time.Duration)
	onRetry func(attempt int, err error, wait time.Duration)
}

// Option configures a Policy.
type Option func(*Policy)

// WithWaitTime sets the pause between failed attempts.
func WithWaitTime(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.WaitTime = d
		}
	}
}

// WithSleep replaces time.Sleep, mostly for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(p *Policy) {
		p.sleep = fn
	}
}

// WithOnRetry registers a callback invoked after every failed attempt that
// will be followed by another one.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// New returns a policy making at most nRetries attempts. A non-positive
// count means a single attempt.
func New(nRetries int, opts ...Option) Policy {
	p := Policy{
		Retries:  nRetries,
		WaitTime: DefaultWaitTime,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Attempts is the number of attempts the policy actually makes.
func (p Policy) Attempts() int {
	if p.Retries < 1 {
		return 1
	}
	return p.Retries
}

// Do runs fn until it succeeds or the attempts are used up, blocking the
// calling goroutine for WaitTime after every failure. The error of the last
// attempt is returned as is.
func (p Policy) Do(fn func() error) error {
	remaining := p.Attempts()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if remaining--; remaining == 0 {
			return err
		}
		p.notify(attempt, err)
		p.pause()
	}
}

// DoContext is Do for context aware operations. The wait between attempts
// is interrupted when ctx is done, in which case ctx.Err() is returned.
func (p Policy) DoContext(ctx context.Context, fn func(ctx context.Context) error) error {
	remaining := p.Attempts()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if remaining--; remaining == 0 {
			return err
		}
		p.notify(attempt, err)
		if p.sleep != nil {
			p.sleep(p.WaitTime)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		timer := time.NewTimer(p.WaitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Wrap returns fn guarded by the policy. Calling the result is the same as
// calling p.Do(fn).
func (p Policy) Wrap(fn func() error) func() error {
	return func() error {
		return p.Do(fn)
	}
}

func (p Policy) notify(attempt int, err error) {
	if p.onRetry != nil {
		p.onRetry(attempt, err, p.WaitTime)
	}
}

func (p Policy) pause() {
	if p.WaitTime <= 0 {
		return
	}
	if p.sleep != nil {
		p.sleep(p.WaitTime)
		return
	}
	time.Sleep(p.WaitTime)
}

// Wrap decorates fn with a policy of nRetries attempts configured by opts.
// Wrap(n, fn, opts...) and New(n, opts...).Wrap(fn) are equivalent.
func Wrap(nRetries int, fn func() error, opts ...Option) func() error {
	return New(nRetries, opts...).Wrap(fn)
}

// WrapValue decorates an operation returning a value. The value of the first
// successful attempt is returned; on exhaustion the zero value and the last
// error.
func WrapValue[T any](p Policy, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		var out T
		err := p.Do(func() error {
			v, err := fn()
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	}
}

// Do is the one-shot form of Wrap.
func Do(nRetries int, fn func() error, opts ...Option) error {
	return New(nRetries, opts...).Do(fn)
}
