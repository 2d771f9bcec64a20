package config

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const requestIDKey ctxKey = iota

var Logger = logrus.New()

// InitLogger configures the shared logger. Output goes to stderr so the
// terminal stepper keeps stdout for the user.
func InitLogger(level string) {
	Logger.SetOutput(os.Stderr)
	Logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.Warnf("invalid log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// SetOutput redirects log output, mainly for tests and the CLI.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// ContextWithRequestID tags ctx so WithContext includes the id in every entry.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the id stored by ContextWithRequestID, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithContext returns a logger carrying the request id of ctx.
func WithContext(ctx context.Context) logrus.FieldLogger {
	entry := logrus.NewEntry(Logger)
	if id := RequestID(ctx); id != "" {
		return entry.WithField("request_id", id)
	}
	return entry
}
