// Package dcontext provides a context-scoped logger built on logrus. A
// logger travels with the request context so storage and locking code can
// emit structured fields without threading a logger through every call.
package dcontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   *logrus.Entry = logrus.NewEntry(logrus.StandardLogger())
	defaultLoggerMu sync.RWMutex
)

// Logger provides a leveled-logging interface.
type Logger interface {
	Print(args ...any)
	Printf(format string, args ...any)
	Println(args ...any)

	// Leveled methods, from logrus
	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	WithError(err error) *logrus.Entry
}

type loggerKey struct{}

// WithLogger creates a new context with provided logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLoggerWithField returns a logger instance with the specified field key
// and value without affecting the context.
func GetLoggerWithField(ctx context.Context, key, value any) Logger {
	return getLogrusLogger(ctx).WithField(fmt.Sprint(key), value)
}

// GetLoggerWithFields returns a logger instance with the specified fields
// without affecting the context.
func GetLoggerWithFields(ctx context.Context, fields map[string]any) Logger {
	return getLogrusLogger(ctx).WithFields(logrus.Fields(fields))
}

// GetLogger returns the logger from the current context, if present,
// falling back to the process default logger.
func GetLogger(ctx context.Context) Logger {
	return getLogrusLogger(ctx)
}

// SetDefaultLogger sets the default logger upon which to base new loggers.
func SetDefaultLogger(logger Logger) {
	entry, ok := logger.(*logrus.Entry)
	if !ok {
		return
	}

	defaultLoggerMu.Lock()
	defaultLogger = entry
	defaultLoggerMu.Unlock()
}

func getLogrusLogger(ctx context.Context) *logrus.Entry {
	if lgr, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return lgr
	}

	defaultLoggerMu.RLock()
	logger := defaultLogger
	defaultLoggerMu.RUnlock()
	return logger
}
