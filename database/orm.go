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
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomoncle/pdfdb/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

// ORM is the mapping layer a Connection drives. Implementations own the
// process-wide binding state and serialize access to it.
type ORM interface {
	// Bind associates the mapping with a database of the given provider.
	Bind(ctx context.Context, provider string, params config.Section) error
	// GenerateMapping registers the models and optionally creates their tables.
	GenerateMapping(ctx context.Context, createTables bool) error
	// Disconnect releases the database session. It is a no-op when unbound.
	Disconnect() error
	// SetSQLDebug toggles printing of executed statements.
	SetSQLDebug(debug bool)
}

// BunORM implements ORM on top of bun. At most one binding is active at a
// time; a second Bind fails with ErrAlreadyBound until Disconnect.
type BunORM struct {
	mu            sync.RWMutex
	db            *bun.DB
	provider      string
	mapped        bool
	debug         atomic.Bool
	slowQueryTime atomic.Int64
	registry      *ModelRegistry
	queryLog      io.Writer
	logger        Logger
}

type ORMOption func(*BunORM)

// WithRegistry replaces the default model registry.
func WithRegistry(r *ModelRegistry) ORMOption {
	return func(o *BunORM) { o.registry = r }
}

// WithQueryLogWriter sets where debug SQL output goes (stdout by default).
func WithQueryLogWriter(w io.Writer) ORMOption {
	return func(o *BunORM) { o.queryLog = w }
}

func WithORMLogger(l Logger) ORMOption {
	return func(o *BunORM) { o.logger = l }
}

func NewBunORM(opts ...ORMOption) *BunORM {
	o := &BunORM{
		registry: defaultRegistry,
		queryLog: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *BunORM) log() Logger {
	if o.logger != nil {
		return o.logger
	}
	return GetLogger()
}

func (o *BunORM) SetSQLDebug(debug bool) {
	o.debug.Store(debug)
}

func (o *BunORM) SQLDebug() bool {
	return o.debug.Load()
}

// SetSlowQueryTime sets the threshold of the slow query warning for
// bindings made afterwards. Zero disables it.
func (o *BunORM) SetSlowQueryTime(d time.Duration) {
	o.slowQueryTime.Store(int64(d))
}

func (o *BunORM) Bind(ctx context.Context, provider string, params config.Section) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db != nil {
		return fmt.Errorf("%w to %s", ErrAlreadyBound, o.provider)
	}

	p, err := LookupProvider(provider)
	if err != nil {
		return err
	}
	dsn, err := p.DSN(params)
	if err != nil {
		return fmt.Errorf("failed to build %s data source: %w", p.Name, err)
	}

	sqlDB, err := sql.Open(p.Driver, dsn)
	if err != nil {
		return err
	}
	db := bun.NewDB(sqlDB, p.Dialect())
	db.AddQueryHook(&QueryHook{debug: &o.debug, writer: o.queryLog})
	if _, ok := os.LookupEnv("BUNDEBUG"); ok {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if slow := time.Duration(o.slowQueryTime.Load()); slow > 0 {
		db.AddQueryHook(&SlowQueryHook{slowTime: slow, logger: o.log()})
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout(params))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return err
	}

	o.db = db
	o.provider = p.Name
	o.log().Debug("Database bound", "provider", p.Name)
	return nil
}

func (o *BunORM) GenerateMapping(ctx context.Context, createTables bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db == nil {
		return ErrNotBound
	}

	models := o.registry.Instances()
	if len(models) > 0 {
		o.db.RegisterModel(models...)
	}

	if createTables && len(models) > 0 {
		if err := o.createTables(ctx, models); err != nil {
			return err
		}
	}
	o.mapped = true
	return nil
}

func (o *BunORM) createTables(ctx context.Context, models []interface{}) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				o.log().Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	for _, model := range models {
		_, err := tx.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (o *BunORM) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	o.provider = ""
	o.mapped = false
	return err
}

// DB returns the bound database, or nil.
func (o *BunORM) DB() *bun.DB {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.db
}

func (o *BunORM) Bound() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.db != nil
}

func (o *BunORM) Mapped() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mapped
}

var defaultORM = NewBunORM()

// Default returns the process-wide ORM used by connections created without
// WithORM.
func Default() *BunORM {
	return defaultORM
}

// DB returns the process-wide bound database, or nil when not connected.
func DB() *bun.DB {
	return defaultORM.DB()
}

// SetSQLDebug toggles SQL printing on the process-wide ORM.
func SetSQLDebug(debug bool) {
	defaultORM.SetSQLDebug(debug)
}
