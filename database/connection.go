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
	"runtime"

	"github.com/tomoncle/pdfdb/config"
	"github.com/tomoncle/pdfdb/retry"
)

const (
	// DefaultConnectRetries is the number of connect attempts, the first
	// one included.
	DefaultConnectRetries = 5
	DefaultConnectWait    = retry.DefaultWaitTime
)

// Connection manages the process-wide database binding. It is meant for a
// single owner and does no locking of its own.
//
// Release is guaranteed only through Disconnect, Close or Scope. A finalizer
// disconnects a connection that is garbage collected while still connected,
// but it may run late or never.
type Connection struct {
	orm       ORM
	cfg       *config.App
	provider  string
	policy    retry.Policy
	logger    Logger
	connected bool
}

type ConnectionOption func(*Connection)

// WithORM replaces the process-wide BunORM.
func WithORM(orm ORM) ConnectionOption {
	return func(c *Connection) { c.orm = orm }
}

// WithConfig uses cfg instead of the global configuration.
func WithConfig(cfg *config.App) ConnectionOption {
	return func(c *Connection) { c.cfg = cfg }
}

// WithProvider binds to another provider than postgres.
func WithProvider(provider string) ConnectionOption {
	return func(c *Connection) { c.provider = provider }
}

// WithRetryPolicy replaces the default policy of 5 attempts 3 seconds apart.
func WithRetryPolicy(p retry.Policy) ConnectionOption {
	return func(c *Connection) { c.policy = p }
}

func WithLogger(l Logger) ConnectionOption {
	return func(c *Connection) { c.logger = l }
}

// NewConnection returns a disconnected manager and sets the ORM's SQL debug
// output according to debug. It performs no I/O.
func NewConnection(debug bool, opts ...ConnectionOption) *Connection {
	c := &Connection{
		orm:      defaultORM,
		provider: ProviderPostgres,
		policy:   retry.New(DefaultConnectRetries, retry.WithWaitTime(DefaultConnectWait)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.orm.SetSQLDebug(debug)
	runtime.SetFinalizer(c, (*Connection).finalize)
	return c
}

func (c *Connection) log() Logger {
	if c.logger != nil {
		return c.logger
	}
	return GetLogger()
}

func (c *Connection) config() *config.App {
	if c.cfg != nil {
		return c.cfg
	}
	return config.Get()
}

// Connected reports whether a bind and mapping generation succeeded and no
// Disconnect happened since.
func (c *Connection) Connected() bool {
	return c.connected
}

// ORM returns the mapping layer the connection drives.
func (c *Connection) ORM() ORM {
	return c.orm
}

// Connect binds the ORM using the database section of the configuration and
// generates the mapping, creating missing tables. Failed attempts are retried
// according to the retry policy; a bind failure surfaces as *DatabaseError.
// Connect on a connected manager does nothing.
func (c *Connection) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	params := c.config().Database
	attempt := 0
	err := c.policy.DoContext(ctx, func(ctx context.Context) error {
		attempt++
		err := c.connectOnce(ctx, params)
		if err != nil {
			c.log().Warn("Database connect attempt failed",
				"attempt", attempt,
				"max_attempts", c.policy.Attempts(),
				"reason", Classify(err),
				"error", err,
			)
		}
		return err
	})
	if err != nil {
		c.log().Error("Unable to connect to the database", "provider", c.provider, "attempts", attempt, "error", err)
		return err
	}

	c.connected = true
	c.log().Info("Database connected successfully", "provider", c.provider, "attempts", attempt)
	return nil
}

func (c *Connection) connectOnce(ctx context.Context, params config.Section) error {
	if err := c.orm.Bind(ctx, c.provider, params); err != nil {
		return newDatabaseError(err)
	}
	if err := c.orm.GenerateMapping(ctx, true); err != nil {
		// Release the bind so the next attempt can bind again.
		if dErr := c.orm.Disconnect(); dErr != nil {
			c.log().Warn("Failed to release database after mapping error", "error", dErr)
		}
		return err
	}
	return nil
}

// Disconnect releases the ORM session if connected. Calling it again, or on a
// manager that never connected, does nothing. An error from the ORM is
// returned unchanged; the manager is disconnected either way.
func (c *Connection) Disconnect() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	if err := c.orm.Disconnect(); err != nil {
		c.log().Error("Failed to close database connection", "error", err)
		return err
	}
	c.log().Info("Database connection closed")
	return nil
}

// Close implements io.Closer.
func (c *Connection) Close() error {
	return c.Disconnect()
}

// Scope connects, runs fn and disconnects, on every exit path of fn including
// a panic. A disconnect error is joined to the error of fn.
func (c *Connection) Scope(ctx context.Context, fn func(ctx context.Context, conn *Connection) error) (err error) {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if dErr := c.Disconnect(); dErr != nil {
			err = errors.Join(err, dErr)
		}
	}()
	return fn(ctx, c)
}

// WithConnection runs fn inside the scope of a new Connection.
func WithConnection(ctx context.Context, debug bool, fn func(ctx context.Context, conn *Connection) error, opts ...ConnectionOption) error {
	return NewConnection(debug, opts...).Scope(ctx, fn)
}

func (c *Connection) finalize() {
	if !c.connected {
		return
	}
	c.log().Warn("Database connection garbage collected while connected, disconnecting")
	_ = c.Disconnect()
}
