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

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/pdfdb/config"
)

type logRecord struct {
	level string
	msg   string
	args  []interface{}
}

type recordLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordLogger) add(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *recordLogger) Debug(msg string, args ...interface{}) { l.add("debug", msg, args) }
func (l *recordLogger) Info(msg string, args ...interface{})  { l.add("info", msg, args) }
func (l *recordLogger) Warn(msg string, args ...interface{})  { l.add("warn", msg, args) }
func (l *recordLogger) Error(msg string, args ...interface{}) { l.add("error", msg, args) }

// field returns the value logged under key by the first record of level.
func (l *recordLogger) field(level, key string) (interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.level != level {
			continue
		}
		for i := 0; i+1 < len(r.args); i += 2 {
			if r.args[i] == key {
				return r.args[i+1], true
			}
		}
	}
	return nil, false
}

func (l *recordLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.level == level {
			n++
		}
	}
	return n
}

// fakeORM records calls and fails according to its scripted errors.
type fakeORM struct {
	bindErrs      []error
	mappingErrs   []error
	disconnectErr error

	bound           bool
	debug           bool
	bindCalls       int
	mappingCalls    int
	disconnectCalls int
	createTables    []bool
	provider        string
	params          config.Section
}

func (f *fakeORM) Bind(_ context.Context, provider string, params config.Section) error {
	f.bindCalls++
	f.provider = provider
	f.params = params
	if f.bound {
		return ErrAlreadyBound
	}
	if i := f.bindCalls - 1; i < len(f.bindErrs) && f.bindErrs[i] != nil {
		return f.bindErrs[i]
	}
	f.bound = true
	return nil
}

func (f *fakeORM) GenerateMapping(_ context.Context, createTables bool) error {
	f.mappingCalls++
	f.createTables = append(f.createTables, createTables)
	if !f.bound {
		return ErrNotBound
	}
	if i := f.mappingCalls - 1; i < len(f.mappingErrs) && f.mappingErrs[i] != nil {
		return f.mappingErrs[i]
	}
	return nil
}

func (f *fakeORM) Disconnect() error {
	f.disconnectCalls++
	f.bound = false
	return f.disconnectErr
}

func (f *fakeORM) SetSQLDebug(debug bool) { f.debug = debug }

func failTimes(n int, err error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = fmt.Errorf("attempt %d: %w", i+1, err)
	}
	return errs
}

var errRefused = errors.New("connection refused")
