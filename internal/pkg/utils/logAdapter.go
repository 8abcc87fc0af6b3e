package utils

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// PgxLogAdapter routes pgx pool logs into the app logger
type PgxLogAdapter struct{}

func NewPgxLoggerAdapter() *PgxLogAdapter {
	return &PgxLogAdapter{}
}

// Log implements tracelog.Logger
func (l *PgxLogAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	le := logEvent(level)
	for k, v := range data {
		le = le.Interface(k, v)
	}
	le.Msg(msg)
}

func logEvent(level tracelog.LogLevel) *zerolog.Event {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug, tracelog.LogLevelInfo:
		// pgx reports every query at info, keep it at debug
		return goapp.Log.Debug()
	case tracelog.LogLevelWarn:
		return goapp.Log.Warn()
	case tracelog.LogLevelError:
		return goapp.Log.Error()
	}
	return goapp.Log.Info()
}
