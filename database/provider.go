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
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/tomoncle/pdfdb/config"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	ProviderPostgres = "postgres"
	ProviderPgx      = "pgx"
	ProviderMySQL    = "mysql"
	ProviderSQLite   = "sqlite"
)

// Provider knows how to turn a configuration section into a database/sql
// data source for one database flavour.
type Provider struct {
	Name    string
	Driver  string
	Dialect func() schema.Dialect
	DSN     func(params config.Section) (string, error)
}

var (
	providersMu sync.RWMutex
	providers   = map[string]Provider{
		ProviderPostgres: {
			Name:    ProviderPostgres,
			Driver:  "postgres",
			Dialect: func() schema.Dialect { return pgdialect.New() },
			DSN:     postgresDSN,
		},
		ProviderPgx: {
			Name:    ProviderPgx,
			Driver:  "pgx",
			Dialect: func() schema.Dialect { return pgdialect.New() },
			DSN:     postgresDSN,
		},
		ProviderMySQL: {
			Name:    ProviderMySQL,
			Driver:  "mysql",
			Dialect: func() schema.Dialect { return mysqldialect.New() },
			DSN:     mysqlDSN,
		},
		ProviderSQLite: {
			Name:    ProviderSQLite,
			Driver:  sqliteshim.ShimName,
			Dialect: func() schema.Dialect { return sqlitedialect.New() },
			DSN:     sqliteDSN,
		},
	}
)

// RegisterProvider adds or replaces a provider.
func RegisterProvider(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[p.Name] = p
}

// LookupProvider returns the provider registered under name. "postgresql"
// and "sqlite3" are accepted as aliases.
func LookupProvider(name string) (Provider, error) {
	switch name {
	case "postgresql":
		name = ProviderPostgres
	case "sqlite3":
		name = ProviderSQLite
	}
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// connectTimeout reads connect_timeout (seconds) from params.
func connectTimeout(params config.Section) time.Duration {
	if secs, ok := params.Int("connect_timeout"); ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 10 * time.Second
}

// postgresAliases maps alternate key names onto libpq keywords, in the order
// they are consulted. The libpq keyword itself always wins over an alias.
var postgresAliases = []struct{ alias, keyword string }{
	{"database", "dbname"},
	{"db", "dbname"},
	{"passwd", "password"},
	{"username", "user"},
}

func isPostgresAlias(k string) bool {
	for _, a := range postgresAliases {
		if a.alias == k {
			return true
		}
	}
	return false
}

// postgresDSN renders params as a libpq keyword/value connection string.
// Keys are passed through as they are, apart from a few common aliases.
func postgresDSN(params config.Section) (string, error) {
	kv := make(map[string]string, len(params))
	for k, v := range params {
		if v == nil || isPostgresAlias(k) {
			continue
		}
		kv[k] = fmt.Sprint(v)
	}
	for _, a := range postgresAliases {
		v, ok := params[a.alias]
		if !ok || v == nil {
			continue
		}
		if _, set := kv[a.keyword]; !set {
			kv[a.keyword] = fmt.Sprint(v)
		}
	}
	if _, ok := kv["sslmode"]; !ok {
		kv["sslmode"] = "disable"
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteConnValue(kv[k]))
	}
	return strings.Join(parts, " "), nil
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// mysqlDSN accepts host, port, user, password (or passwd), database (or db)
// and forwards every other key as a DSN parameter.
func mysqlDSN(params config.Section) (string, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.ParseTime = true

	host, ok := params.String("host")
	if !ok {
		host = "localhost"
	}
	port, ok := params.Int("port")
	if !ok {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User, _ = params.String("user", "username")
	cfg.Passwd, _ = params.String("password", "passwd")
	cfg.DBName, _ = params.String("database", "db", "dbname")
	cfg.Timeout = connectTimeout(params)

	known := map[string]struct{}{
		"host": {}, "port": {}, "user": {}, "username": {}, "password": {}, "passwd": {},
		"database": {}, "db": {}, "dbname": {}, "connect_timeout": {},
	}
	for k, v := range params {
		if _, skip := known[k]; skip || v == nil {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[k] = fmt.Sprint(v)
	}
	return cfg.FormatDSN(), nil
}

// sqliteDSN uses the filename key; ":memory:" opens a shared in-memory
// database.
func sqliteDSN(params config.Section) (string, error) {
	filename, ok := params.String("filename", "database")
	if !ok || filename == "" {
		return "", fmt.Errorf("sqlite provider requires a filename")
	}
	if filename == ":memory:" {
		return "file::memory:?cache=shared", nil
	}
	return filename, nil
}
