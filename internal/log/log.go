// Package log provides structured, category-tagged logging for macropulse.
// Entries are written through a zap core in the form
//
//	2025-12-06T10:45:00 [ERROR] [fetch] message {"key": "value"}
//
// to the run log file and, at info level and above, to stderr.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Category groups related log messages.
type Category string

const (
	CatConfig     Category = "config"     // Configuration loading/saving
	CatRun        Category = "run"        // Pipeline runner lifecycle
	CatLock       Category = "lock"       // Single-run lock
	CatFetch      Category = "fetch"      // Upstream series retrieval
	CatCache      Category = "cache"      // cache operations
	CatTransform  Category = "transform"  // Panel, indicators, signals, judgment, score
	CatPublish    Category = "publish"    // Artifact compare-and-replace
	CatDistribute Category = "distribute" // Push / mirror
	CatGit        Category = "git"        // git CLI interactions
	CatDB         Category = "db"         // Run store
	CatBrief      Category = "brief"      // Daily brief sections
	CatLLM        Category = "llm"        // Commentary model calls
	CatTrace      Category = "trace"      // Tracing provider
)

// Options configures Init.
type Options struct {
	// Path is the log file. Empty disables file output.
	Path string
	// Console receives info-and-above entries. Nil disables console output.
	Console io.Writer
	// Debug lowers the file level to debug.
	Debug bool
}

// Logger provides structured logging.
type Logger struct {
	mu      sync.Mutex
	zl      *zap.Logger
	level   zap.AtomicLevel
	file    *os.File
	enabled bool
	named   map[Category]*zap.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init initializes the global logger.
// Returns a cleanup function that flushes and closes the log file.
func Init(opts Options) (func(), error) {
	l, err := newLogger(opts)
	if err != nil {
		return nil, err
	}
	swap(l)
	return func() {
		_ = l.zl.Sync()
		if l.file != nil {
			_ = l.file.Close()
		}
	}, nil
}

// InitWriter installs a logger writing every entry at or above level to w.
// Used by tests and by commands that run without a log file.
func InitWriter(w io.Writer, level Level) {
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(w), atom)
	swap(&Logger{
		zl:      zap.New(core),
		level:   atom,
		enabled: true,
		named:   make(map[Category]*zap.Logger),
	})
}

func swap(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func newLogger(opts Options) (*Logger, error) {
	level := LevelInfo
	if opts.Debug {
		level = LevelDebug
	}
	atom := zap.NewAtomicLevelAt(level.zapLevel())

	var cores []zapcore.Core
	var file *os.File
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: configured log path
		if err != nil {
			return nil, err
		}
		file = f
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(f), atom))
	}
	if opts.Console != nil {
		consoleLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.InfoLevel && atom.Enabled(l)
		})
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(opts.Console), consoleLevel))
	}

	return &Logger{
		zl:      zap.New(zapcore.NewTee(cores...)),
		level:   atom,
		file:    file,
		enabled: true,
		named:   make(map[Category]*zap.Logger),
	}, nil
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "category",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05"),
		EncodeLevel:      encodeLevel,
		EncodeName:       encodeCategory,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func encodeCategory(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + name + "]")
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.level.SetLevel(level.zapLevel())
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func (l *Logger) category(cat Category) *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if zl, ok := l.named[cat]; ok {
		return zl
	}
	zl := l.zl.Named(string(cat))
	l.named[cat] = zl
	return zl
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}
	l.mu.Lock()
	enabled := l.enabled
	l.mu.Unlock()
	if !enabled {
		return
	}

	zl := l.category(cat)
	ce := zl.Check(level.zapLevel(), msg)
	if ce == nil {
		return
	}
	ce.Write(toZapFields(fields)...)
}

// toZapFields converts alternating key/value pairs into zap fields.
// An orphan key is kept with a "<missing>" value.
func toZapFields(fields []any) []zap.Field {
	out := make([]zap.Field, 0, (len(fields)+1)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(fields[i]), fields[i+1]))
	}
	if len(fields)%2 != 0 {
		out = append(out, zap.String(fmt.Sprint(fields[len(fields)-1]), "<missing>"))
	}
	return out
}
