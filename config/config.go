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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Section is a free-form block of configuration keys.
type Section map[string]any

// String returns the first key found among keys, formatted as a string.
func (s Section) String(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := s[k]; ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

// Int returns the first key found among keys as an int.
func (s Section) Int(keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := s[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			return int(n), true
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// Clone returns a shallow copy of the section.
func (s Section) Clone() Section {
	out := make(Section, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// LogConfig controls the process loggers.
type LogConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"` // text or json
	File   FileLogConfig `yaml:"file"`
}

// FileLogConfig controls the rotating log file.
type FileLogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// App is the application-wide configuration object.
type App struct {
	Debug         bool          `yaml:"debug"`
	SlowQueryTime time.Duration `yaml:"slow_query_time"`
	Log           LogConfig     `yaml:"log"`
	Database      Section       `yaml:"database"`
}

// Default returns an App with an empty database section.
func Default() *App {
	return &App{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: Section{},
	}
}

var (
	global   *App
	globalMu sync.RWMutex
)

// Get returns the global configuration, or Default() if none was set.
func Get() *App {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return Default()
	}
	return global
}

// Set replaces the global configuration.
func Set(app *App) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = app
}

// Load reads a YAML configuration file, expands ${VAR} references, applies
// environment overrides and installs the result as the global configuration.
// A .env file in the working directory is loaded first when present. An empty
// path yields the defaults plus environment overrides.
func Load(path string) (*App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	app := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, app); err != nil {
			return nil, err
		}
	}
	if app.Database == nil {
		app.Database = Section{}
	}
	OverrideFromEnv(app.Database)

	Set(app)
	return app, nil
}

var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} references. A bare $ is left alone so values
// such as passwords keep their dollar signs.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(m)[1])))
	})
}

// Parse decodes YAML into app after expanding ${VAR} references.
func Parse(data []byte, app *App) error {
	if err := yaml.Unmarshal(expandEnv(data), app); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// OverrideFromEnv overrides database keys from DB_* environment variables.
// An overridden key replaces its aliases too, so the environment value is the
// only one a provider can see.
func OverrideFromEnv(db Section) {
	if host := os.Getenv("DB_HOST"); host != "" {
		db["host"] = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			db["port"] = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		db.replace("user", user, "username")
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		db.replace("password", password, "passwd")
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		db.replace("database", name, "dbname", "db")
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		db["sslmode"] = sslmode
	}
}

func (s Section) replace(key string, value any, aliases ...string) {
	for _, a := range aliases {
		delete(s, a)
	}
	s[key] = value
}
