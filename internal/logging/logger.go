// Package logging provides the daemon's structured logger: a zap-backed
// console+file sink plus an in-memory ring buffer that other components
// (the popup's debug view, diagnostics commands) can subscribe to without
// tailing a file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry is one recorded log line, independent of the zap encoding used to
// emit it to console/file.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
}

// FormatEntry renders an Entry as one line, "time [level] source: message",
// for callers that display entries outside of zap (e.g. the popup debug
// panel). The zap console sink uses its own layout.
func FormatEntry(e Entry) string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Time.Format(time.RFC3339), e.Level, e.Source, e.Message)
}

// Config controls logger construction.
type Config struct {
	Enabled    bool
	MaxEntries int
	Level      string
	Component  string
	LogToFile  bool
	LogDir     string
}

// ListenerID identifies a registered entry listener for later removal.
type ListenerID int

// Logger wraps zap with a bounded ring buffer of recent entries and a
// fan-out listener mechanism.
type Logger struct {
	mu         sync.RWMutex
	zap        *zap.Logger
	sugar      *zap.SugaredLogger
	enabled    bool
	maxEntries int
	component  string
	entries    []Entry
	listeners  map[ListenerID]func(Entry)
	nextID     ListenerID
	file       *os.File
}

// NewLogger builds a Logger from cfg. File-sink failures degrade to
// console-only logging rather than returning an error.
func NewLogger(cfg Config) *Logger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		_ = level.Set(cfg.Level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	}

	l := &Logger{
		enabled:    cfg.Enabled,
		maxEntries: cfg.MaxEntries,
		component:  cfg.Component,
		listeners:  make(map[ListenerID]func(Entry)),
	}

	if cfg.LogToFile {
		dir := cfg.LogDir
		if dir == "" {
			if exe, err := os.Executable(); err == nil {
				dir = filepath.Dir(exe)
			} else {
				dir = "."
			}
		}
		_ = os.MkdirAll(dir, 0o755)
		name := fmt.Sprintf("copilotd_%s_%s.log", cfg.Component, time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			l.file = f
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level))
		}
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core)
	l.zap = zl
	l.sugar = zl.Sugar()

	return l
}

func (l *Logger) addEntry(level, source, msg string) {
	if !l.enabled {
		return
	}
	e := Entry{Time: time.Now(), Level: level, Source: source, Message: msg, Component: l.component}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxEntries {
		drop := len(l.entries) - l.maxEntries
		copy(l.entries, l.entries[drop:])
		l.entries = l.entries[:l.maxEntries]
	}
	listeners := make([]func(Entry), 0, len(l.listeners))
	for _, fn := range l.listeners {
		listeners = append(listeners, fn)
	}
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}

func (l *Logger) Debug(source, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	l.sugar.Debugw(formatted, "source", source)
	l.addEntry("debug", source, formatted)
}

func (l *Logger) Info(source, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	l.sugar.Infow(formatted, "source", source)
	l.addEntry("info", source, formatted)
}

func (l *Logger) Warn(source, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	l.sugar.Warnw(formatted, "source", source)
	l.addEntry("warn", source, formatted)
}

func (l *Logger) Error(source, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	l.sugar.Errorw(formatted, "source", source)
	l.addEntry("error", source, formatted)
}

// AddListener registers fn to be called with every new Entry as it is
// recorded. Returns an id usable with RemoveListener.
func (l *Logger) AddListener(fn func(Entry)) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	return id
}

// RemoveListener unregisters a previously added listener.
func (l *Logger) RemoveListener(id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
}

// Entries returns a copy of the recent entries ring buffer.
func (l *Logger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Close flushes the zap core and closes the file sink, if any.
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
