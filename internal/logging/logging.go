// Package logging builds the logrus logger shared by the CLI and the
// acquisition packages, and adapts it to the interfaces third-party clients
// expect.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// New creates a text logger writing to w at the given level.
// An empty level means "info". If w is nil, stderr is used.
func New(level string, w io.Writer) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	if level == "" {
		level = "info"
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return logger, nil
}

// Discard returns a logger that drops everything. Used as the default when
// callers pass a nil logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// OrDiscard returns l, or a discarding logger if l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}

// LeveledLogger adapts a logrus logger to retryablehttp.LeveledLogger.
type LeveledLogger struct {
	logrus.FieldLogger
}

// NewLeveledLogger wraps l for use as a retryablehttp client logger.
func NewLeveledLogger(l logrus.FieldLogger) retryablehttp.LeveledLogger {
	return &LeveledLogger{OrDiscard(l)}
}

func fields(keysAndValues ...interface{}) logrus.Fields {
	f := make(logrus.Fields)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Error(msg)
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Info(msg)
}

// Debug demotes retryablehttp's per-request chatter; "retrying" lines are
// kept at info so they stay visible.
func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	if strings.Contains(msg, "retrying") {
		l.WithFields(fields(keysAndValues...)).Info(msg)
		return
	}
	l.WithFields(fields(keysAndValues...)).Debug(msg)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Warn(msg)
}
