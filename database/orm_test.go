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
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/pdfdb/config"
	"github.com/tomoncle/pdfdb/retry"
	"github.com/uptrace/bun"
)

type testTemplate struct {
	bun.BaseModel `bun:"table:templates,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type testDocument struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID         int64  `bun:"id,pk,autoincrement"`
	TemplateID int64  `bun:"template_id,notnull"`
	Title      string `bun:"title"`
}

func sqliteParams(t *testing.T) config.Section {
	t.Helper()
	return config.Section{"filename": filepath.Join(t.TempDir(), "pdf.db")}
}

func newTestORM(t *testing.T, opts ...ORMOption) *BunORM {
	t.Helper()
	registry := NewModelRegistry()
	registry.Register((*testDocument)(nil), 20)
	registry.Register((*testTemplate)(nil), 10)
	base := []ORMOption{WithRegistry(registry), WithORMLogger(&recordLogger{})}
	orm := NewBunORM(append(base, opts...)...)
	t.Cleanup(func() { _ = orm.Disconnect() })
	return orm
}

func TestBunORM_BindAndGenerateMapping(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)

	require.NoError(t, orm.Bind(ctx, ProviderSQLite, sqliteParams(t)))
	assert.True(t, orm.Bound())
	assert.False(t, orm.Mapped())

	require.NoError(t, orm.GenerateMapping(ctx, true))
	assert.True(t, orm.Mapped())

	db := orm.DB()
	require.NotNil(t, db)
	tpl := &testTemplate{Name: "invoice"}
	_, err := db.NewInsert().Model(tpl).Exec(ctx)
	require.NoError(t, err)
	doc := &testDocument{TemplateID: tpl.ID, Title: "March"}
	_, err = db.NewInsert().Model(doc).Exec(ctx)
	require.NoError(t, err)

	var got testDocument
	require.NoError(t, db.NewSelect().Model(&got).Where("id = ?", doc.ID).Scan(ctx))
	assert.Equal(t, "March", got.Title)

	// Tables already exist: mapping again is harmless.
	require.NoError(t, orm.GenerateMapping(ctx, true))
}

func TestBunORM_GenerateMappingWithoutCreateTables(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	require.NoError(t, orm.Bind(ctx, ProviderSQLite, sqliteParams(t)))

	require.NoError(t, orm.GenerateMapping(ctx, false))

	var n int
	require.NoError(t, orm.DB().NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'templates'").Scan(ctx, &n))
	assert.Zero(t, n)
}

func TestBunORM_SecondBindFails(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	params := sqliteParams(t)
	require.NoError(t, orm.Bind(ctx, ProviderSQLite, params))

	err := orm.Bind(ctx, ProviderSQLite, params)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestBunORM_BindErrors(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)

	assert.ErrorIs(t, orm.Bind(ctx, "oracle", config.Section{}), ErrUnknownProvider)
	assert.ErrorContains(t, orm.Bind(ctx, ProviderSQLite, config.Section{}), "requires a filename")
	assert.False(t, orm.Bound())
}

func TestBunORM_PostgresUnreachable(t *testing.T) {
	orm := newTestORM(t)

	err := orm.Bind(context.Background(), ProviderPostgres, config.Section{
		"host":            "127.0.0.1",
		"port":            1,
		"user":            "pdf",
		"database":        "pdf",
		"connect_timeout": 1,
	})

	require.Error(t, err)
	assert.False(t, orm.Bound())
	assert.Equal(t, UnreachableErr, Classify(err))
}

func TestBunORM_GenerateMappingRequiresBind(t *testing.T) {
	orm := newTestORM(t)
	assert.ErrorIs(t, orm.GenerateMapping(context.Background(), true), ErrNotBound)
}

func TestBunORM_DisconnectAndRebind(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	params := sqliteParams(t)

	assert.NoError(t, orm.Disconnect())
	require.NoError(t, orm.Bind(ctx, ProviderSQLite, params))
	require.NoError(t, orm.Disconnect())
	assert.NoError(t, orm.Disconnect())
	assert.Nil(t, orm.DB())
	assert.False(t, orm.Mapped())

	require.NoError(t, orm.Bind(ctx, ProviderSQLite, params))
	assert.True(t, orm.Bound())
}

func TestBunORM_SQLDebugOutput(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	orm := newTestORM(t, WithQueryLogWriter(&buf))
	require.NoError(t, orm.Bind(ctx, ProviderSQLite, sqliteParams(t)))

	_, err := orm.DB().NewRaw("SELECT 1").Exec(ctx)
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	orm.SetSQLDebug(true)
	assert.True(t, orm.SQLDebug())
	_, err = orm.DB().NewRaw("SELECT 2").Exec(ctx)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SELECT 2")
}

func TestConnection_WithBunORMAndSQLite(t *testing.T) {
	orm := newTestORM(t)
	c := NewConnection(false,
		WithORM(orm),
		WithProvider(ProviderSQLite),
		WithConfig(&config.App{Database: sqliteParams(t)}),
		WithRetryPolicy(retry.New(2, retry.WithWaitTime(0))),
		WithLogger(&recordLogger{}),
	)

	err := c.Scope(context.Background(), func(ctx context.Context, conn *Connection) error {
		_, err := orm.DB().NewInsert().Model(&testTemplate{Name: "letter"}).Exec(ctx)
		return err
	})

	require.NoError(t, err)
	assert.False(t, orm.Bound())
	assert.False(t, c.Connected())
}

func TestDefaultORM(t *testing.T) {
	assert.Same(t, defaultORM, Default())
	assert.Nil(t, DB())

	SetSQLDebug(true)
	assert.True(t, Default().SQLDebug())
	SetSQLDebug(false)
	assert.False(t, Default().SQLDebug())
}
