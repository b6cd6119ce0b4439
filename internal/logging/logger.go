// Package logging provides categorized file-based logging for smartblog, backed by zap.
// Logs are written to one file per category per day under the configured directory.
// Logging is controlled by debug_mode - when false, every logger is a no-op.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config loading
	CategorySession   Category = "session"   // Login, signup, logout, credential slot
	CategoryDocuments Category = "documents" // Document store operations
	CategoryAutosave  Category = "autosave"  // Debounce scheduling and flushes
	CategoryAPI       Category = "api"       // HTTP transport
	CategoryStream    Category = "stream"    // Generation stream decoding
	CategoryStore     Category = "store"     // Local SQLite state
	CategoryUI        Category = "ui"        // Terminal UI events
)

// Categories lists every known category.
var Categories = []Category{
	CategoryBoot,
	CategorySession,
	CategoryDocuments,
	CategoryAutosave,
	CategoryAPI,
	CategoryStream,
	CategoryStore,
	CategoryUI,
}

// Options configures the logging system. It mirrors config.LoggingConfig
// to avoid an import cycle.
type Options struct {
	Dir        string
	Level      string // debug, info, warn, error
	DebugMode  bool   // master toggle
	JSONFormat bool
	Categories map[string]bool
}

// Logger writes to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	files     []*os.File
	loggersMu sync.RWMutex

	opts   Options
	optsMu sync.RWMutex

	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	nop = &Logger{sugar: zap.NewNop().Sugar()}
)

// Initialize sets up the log directory and applies o.
// It is a silent no-op when debug mode is off.
func Initialize(o Options) error {
	Configure(o)
	if !o.DebugMode {
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("log directory required")
	}
	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Boot("=== smartblog logging initialized ===")
	Boot("Logs directory: %s", o.Dir)
	Boot("Log level: %s", level.Level())
	if len(o.Categories) > 0 {
		enabled := 0
		for _, on := range o.Categories {
			if on {
				enabled++
			}
		}
		Boot("Enabled categories: %d/%d", enabled, len(o.Categories))
	}
	return nil
}

// Configure applies new options at runtime. Level changes take effect
// immediately; categories that became disabled stop logging on the next Get.
func Configure(o Options) {
	optsMu.Lock()
	opts = o
	optsMu.Unlock()

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil || o.Level == "" {
		lvl = zapcore.InfoLevel
	}
	if o.Level == "warning" {
		lvl = zapcore.WarnLevel
	}
	level.SetLevel(lvl)

	loggersMu.Lock()
	for cat := range loggers {
		if !IsCategoryEnabled(cat) {
			delete(loggers, cat)
		}
	}
	loggersMu.Unlock()
}

// IsDebugMode returns whether logging is enabled at all.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Level returns the active level.
func Level() zapcore.Level {
	return level.Level()
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return nop
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	optsMu.RLock()
	dir, jsonFormat := opts.Dir, opts.JSONFormat
	optsMu.RUnlock()
	if dir == "" {
		return nop
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return nop
	}
	files = append(files, file)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(file), level)
	base := zap.New(core, zap.ErrorOutput(zapcore.AddSync(io.Discard))).
		With(zap.String("cat", string(category)))

	l := &Logger{category: category, sugar: base.Sugar()}
	loggers[category] = l
	return l
}

// FromZap wraps an existing zap logger, for callers that already own one.
func FromZap(category Category, z *zap.Logger) *Logger {
	return &Logger{category: category, sugar: z.With(zap.String("cat", string(category))).Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger that attaches the given key-value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRequest returns a logger tagged with a request correlation ID.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("req", requestID)
}

// CloseAll flushes and closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		_ = l.sugar.Sync()
	}
	for _, f := range files {
		_ = f.Close()
	}
	loggers = make(map[Category]*Logger)
	files = nil
}

// =============================================================================
// CONVENIENCE FUNCTIONS - no-ops when the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// Documents logs to the documents category
func Documents(format string, args ...interface{}) {
	Get(CategoryDocuments).Info(format, args...)
}

// DocumentsDebug logs debug to the documents category
func DocumentsDebug(format string, args ...interface{}) {
	Get(CategoryDocuments).Debug(format, args...)
}

// Autosave logs to the autosave category
func Autosave(format string, args ...interface{}) {
	Get(CategoryAutosave).Info(format, args...)
}

// AutosaveDebug logs debug to the autosave category
func AutosaveDebug(format string, args ...interface{}) {
	Get(CategoryAutosave).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Stream logs to the stream category
func Stream(format string, args ...interface{}) {
	Get(CategoryStream).Info(format, args...)
}

// StreamDebug logs debug to the stream category
func StreamDebug(format string, args ...interface{}) {
	Get(CategoryStream).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// UI logs to the ui category
func UI(format string, args ...interface{}) {
	Get(CategoryUI).Info(format, args...)
}

// UIDebug logs debug to the ui category
func UIDebug(format string, args ...interface{}) {
	Get(CategoryUI).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
