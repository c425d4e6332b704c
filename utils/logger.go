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
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}

	settingsMu       sync.RWMutex
	baseLevel        = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutput    io.Writer = os.Stdout
	fileLogEnabled   = EnvDefaultBool("FILE_LOG_ENABLED", false)
	fileLogDir       = EnvDefaultString("FILE_LOG_DIR", "logs")
	fileLogMaxAge    = 7
	fileLogMaxSizeMB = 100
)

// FileLogOptions controls the rolling file output attached to new loggers.
type FileLogOptions struct {
	Enabled    bool
	Dir        string
	MaxAgeDays int
	MaxSizeMB  int
}

// ConfigureFileLog sets file output for loggers created afterwards.
func ConfigureFileLog(opts FileLogOptions) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	fileLogEnabled = opts.Enabled
	if opts.Dir != "" {
		fileLogDir = opts.Dir
	}
	if opts.MaxAgeDays >= 0 {
		fileLogMaxAge = opts.MaxAgeDays
	}
	if opts.MaxSizeMB > 0 {
		fileLogMaxSizeMB = opts.MaxSizeMB
	}
}

// ConfigureConsoleLogFormat switches console output between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureConsoleOutput redirects console output, mostly useful in tests.
func ConfigureConsoleOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	settingsMu.Lock()
	consoleOutput = w
	settingsMu.Unlock()

	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
	loggerRegistryMu.RUnlock()
}

// ConfigureLogLevel sets the level for every registered logger and for new ones.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	settingsMu.Lock()
	baseLevel = lvl
	settingsMu.Unlock()

	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
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

// SetLoggerLevel changes the level of one named logger. It reports false when
// no logger with that name exists.
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

// LoggerNames lists registered logger names in sorted order.
func LoggerNames() []string {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	names := make([]string, 0, len(loggerRegistry))
	for name := range loggerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	settingsMu.RLock()
	format, out, lvl := consoleLogFormat, consoleOutput, baseLevel
	fileEnabled, dir, maxAge, maxSize := fileLogEnabled, fileLogDir, fileLogMaxAge, fileLogMaxSizeMB
	settingsMu.RUnlock()

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: defaultTimestampFormat,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		l.SetFormatter(&ConsoleFormatter{LoggerName: name, NameWidth: 10})
	}
	if fileEnabled {
		l.AddHook(newFileHook(name, dir, maxAge, maxSize))
	}
	loggerRegistry[name] = l
	return l
}

// ConsoleFormatter renders entries as a single colored line:
// time level pid name : message key=value...
type ConsoleFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
	NoColor         bool
}

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	name := f.LoggerName
	if f.NameWidth > 0 {
		if r := []rune(name); len(r) > f.NameWidth {
			name = string(r[:f.NameWidth])
		}
		name = fmt.Sprintf("%*s", f.NameWidth, name)
	}
	pid := fmt.Sprintf("%-6d", os.Getpid())

	if !f.NoColor {
		lvl = levelColor(entry.Level).Sprint(lvl)
		name = color.New(color.FgCyan).Sprint(name)
		pid = color.New(color.FgMagenta).Sprint(pid)
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteString(" ")
	b.WriteString(lvl)
	b.WriteString(" ")
	b.WriteString(pid)
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(" : ")
	b.WriteString(entry.Message)

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

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func newFileHook(name, dir string, maxAgeDays, maxSizeMB int) *fileHook {
	return &fileHook{
		writer: &lumberjack.Logger{
			Filename:  filepath.Join(dir, strings.ToLower(name)+".log"),
			MaxSize:   maxSizeMB,
			MaxAge:    maxAgeDays,
			LocalTime: true,
		},
		formatter: &ConsoleFormatter{LoggerName: name, NameWidth: 10, NoColor: true},
	}
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

func EnvDefaultString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// EnvDefaultDuration parses a Go duration, falling back to plain seconds.
func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
