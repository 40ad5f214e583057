package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// The core packages depend on this interface only, so callers can plug in
// their own sink without importing the file logger below.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	fileLoggerInstance *FileLogger
	fileLoggerOnce     sync.Once
)

// FileLogger writes component-tagged lines to metacurator-debug.log in the
// user's home directory (falling back to the working directory).
type FileLogger struct {
	logger    *log.Logger
	level     LogLevel
	mu        sync.Mutex
	component string
}

// GetLogger returns the singleton file logger.
func GetLogger() *FileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerInstance = newFileLogger(DEBUG)
	})
	return fileLoggerInstance
}

// NewComponentLogger returns the shared file logger scoped to a component.
func NewComponentLogger(component string) Logger {
	base := GetLogger()
	return &FileLogger{
		logger:    base.logger,
		level:     base.level,
		component: component,
	}
}

func newFileLogger(level LogLevel) *FileLogger {
	path := "metacurator-debug.log"
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, "metacurator-debug.log")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &FileLogger{logger: log.New(os.Stderr, "", log.LstdFlags), level: level}
	}
	return &FileLogger{logger: log.New(file, "", log.LstdFlags), level: level}
}

func (l *FileLogger) logf(level LogLevel, tag, format string, args ...any) {
	if level < l.level || l.logger == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := tag
	if l.component != "" {
		prefix = fmt.Sprintf("%s [%s]", tag, l.component)
	}
	l.logger.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

func (l *FileLogger) Debug(format string, args ...any) { l.logf(DEBUG, "[DEBUG]", format, args...) }
func (l *FileLogger) Info(format string, args ...any)  { l.logf(INFO, "[INFO]", format, args...) }
func (l *FileLogger) Warn(format string, args ...any)  { l.logf(WARN, "[WARN]", format, args...) }
func (l *FileLogger) Error(format string, args ...any) { l.logf(ERROR, "[ERROR]", format, args...) }

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}

// DumpRejected persists a raw model response that failed post-merge
// validation so it can be inspected later. Dump failures are reported to the
// logger only; the extraction path never fails because of this channel.
func DumpRejected(logger Logger, raw string) {
	logger = OrNop(logger)
	dir := "metacurator-rejected"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".metacurator", "rejected")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("cannot create rejected-response dir %s: %v", dir, err)
		return
	}
	name := fmt.Sprintf("response-%s.txt", time.Now().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		logger.Warn("cannot persist rejected response: %v", err)
		return
	}
	logger.Info("rejected response persisted to %s", path)
}
