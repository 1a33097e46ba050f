package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. Each Logger owns its
// destination and minimum level, so tests can construct one around an
// in-memory buffer instead of relying on process-global logging state. It is
// safe for concurrent use.
type Logger struct {
	// level is the minimum level that will be emitted.
	level Level
	// prefix is any prefix specified for the logger (dotted sublogger path).
	prefix string
	// output is the shared destination and mutex for this logger tree.
	output *sharedOutput
}

// sharedOutput is shared by a Logger and all of its subloggers so that lines
// from different subsystems don't interleave mid-write.
type sharedOutput struct {
	mu     sync.Mutex
	logger *log.Logger
}

// NewLogger creates a new root logger that writes lines at or above level to
// writer. If writer is nil, os.Stderr is used.
func NewLogger(level Level, writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	return &Logger{
		level:  level,
		output: &sharedOutput{logger: log.New(writer, "", log.LstdFlags)},
	}
}

// RootLogger is the default root logger, writing warnings and errors to
// standard error.
var RootLogger = NewLogger(LevelWarn, os.Stderr)

// Sublogger creates a new sublogger with the specified name, inheriting the
// parent's level and destination.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		level:  l.level,
		prefix: prefix,
		output: l.output,
	}
}

// Level returns the logger's minimum emitted level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

// line formats a message with the logger's prefix, if any.
func (l *Logger) line(message string) string {
	if l.prefix == "" {
		return message
	}
	return fmt.Sprintf("[%s] %s", l.prefix, message)
}

// emit writes message if level is enabled for this logger.
func (l *Logger) emit(level Level, message string) {
	if l == nil || l.level < level {
		return
	}
	l.output.mu.Lock()
	defer l.output.mu.Unlock()
	l.output.logger.Print(l.line(message))
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.emit(LevelError, color.RedString("error: ")+fmt.Sprintf(format, v...))
}

// Error logs err at error level.
func (l *Logger) Error(err error) {
	l.Errorf("%v", err)
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(LevelWarn, color.YellowString("warning: ")+fmt.Sprintf(format, v...))
}

// Warn logs err at warning level.
func (l *Logger) Warn(err error) {
	l.Warnf("%v", err)
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, v...))
}

// Debug logs arguments at debug level with fmt.Sprint semantics.
func (l *Logger) Debug(v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprint(v...))
}
