package logger

import (
	"log/slog"
	"time"
)

// Component tags a log record with the subsystem that produced it.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Error records a single error; nil produces an empty attr that slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Errors records multiple errors under one key, skipping nils.
func Errors(errs ...error) slog.Attr {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return slog.Attr{}
	}
	return slog.Any("errors", msgs)
}

// SessionID tags a record with the session identifier it concerns.
func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

// Duration records an elapsed time in milliseconds.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Float64(key, float64(d.Nanoseconds())/1e6)
}

// Group nests attributes under a single key.
func Group(key string, attrs ...any) slog.Attr {
	return slog.Group(key, attrs...)
}
