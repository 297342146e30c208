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

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}

	outputMu      sync.RWMutex
	defaultLevel  = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	logFormat     = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutput io.Writer = os.Stdout
	fileOutput    io.WriteCloser
)

// FileOptions configures the rotating log file shared by every logger.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ConfigureLogging applies level, format and optional file output to every
// registered logger and to loggers created afterwards.
func ConfigureLogging(level, format string, file *FileOptions) error {
	outputMu.Lock()
	defaultLevel = ParseLogLevel(level)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logFormat = "json"
	} else {
		logFormat = "text"
	}
	if fileOutput != nil {
		_ = fileOutput.Close()
		fileOutput = nil
	}
	if file != nil {
		path := file.Path
		if path == "" {
			path = filepath.Join("logs", "pdfdb.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			outputMu.Unlock()
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		fileOutput = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
			LocalTime:  true,
		}
	}
	outputMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for name, lg := range loggerRegistry {
		setup(lg, name)
	}
	return nil
}

// SetConsoleOutput redirects console output, mostly for tests.
func SetConsoleOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	consoleOutput = w
}

func currentOutput() io.Writer {
	outputMu.RLock()
	defer outputMu.RUnlock()
	if fileOutput != nil {
		return io.MultiWriter(consoleOutput, fileOutput)
	}
	return consoleOutput
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

func setup(l *logrus.Logger, name string) {
	outputMu.RLock()
	level, format := defaultLevel, logFormat
	outputMu.RUnlock()

	l.SetLevel(level)
	l.SetOutput(currentOutput())
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
		return
	}
	l.SetFormatter(&Log4jColorFormatter{LoggerName: name, NameWidth: 10})
}

// NewLogger returns the named logger, creating and registering it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.RLock()
	l, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if ok {
		return l
	}
	l = logrus.New()
	l.SetReportCaller(true)
	setup(l, name)
	RegisterLogger(name, l)
	return l
}

// Log4jColorFormatter renders entries as
// "time LEVEL pid - [main] name file:line : message k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = timestampFormat
	}
	ts := entry.Time.Format(tsFormat)
	lvl := colorLevel(padLeft(strings.ToUpper(entry.Level.String()), 7), entry.Level)
	pid := colorWrap(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta)
	name := colorWrap(padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth), ansiCyan)

	caller := ""
	if entry.Caller != nil {
		caller = colorWrap(fmt.Sprintf(" %s:%d", shortPath(entry.Caller.File), entry.Caller.Line), ansiFaint)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s - %s %s%s %s %s", ts, lvl, pid, colorWrap("[main]", ansiMagenta), name, caller, colorWrap(":", ansiFaint), entry.Message)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func colorWrap(s, code string) string { return code + s + ansiReset }

func colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorWrap(s, ansiRed)
	case logrus.WarnLevel:
		return colorWrap(s, ansiYellow)
	case logrus.InfoLevel:
		return colorWrap(s, ansiGreen)
	case logrus.DebugLevel:
		return colorWrap(s, ansiBlue)
	default:
		return colorWrap(s, ansiMagenta)
	}
}

func padLeft(s string, width int) string { return fmt.Sprintf("%*s", width, s) }

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// shortPath keeps the last directory and the file name.
func shortPath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return parts[0]
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
