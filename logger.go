package unibase

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with unibase-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithWorkspace adds a workspace field to the logger.
func (l *Logger) WithWorkspace(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("workspace", name),
	}
}

// LogIndex logs a batch index operation.
func (l *Logger) LogIndex(ctx context.Context, inserted, replaced, rejected int, took time.Duration) {
	if rejected > 0 {
		l.WarnContext(ctx, "index completed with rejections",
			"inserted", inserted,
			"replaced", replaced,
			"rejected", rejected,
			"took", took,
		)
	} else {
		l.DebugContext(ctx, "index completed",
			"inserted", inserted,
			"replaced", replaced,
			"took", took,
		)
	}
}

// LogReplace logs an id collision during indexing.
func (l *Logger) LogReplace(ctx context.Context, id string) {
	l.InfoContext(ctx, "document replaced", "id", id)
}

// LogReject logs a document rejected from a batch.
func (l *Logger) LogReject(ctx context.Context, op string, r Rejection) {
	l.WarnContext(ctx, op+" rejected document",
		"position", r.Position,
		"id", r.ID,
		"error", r.Err,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, queries, limit int, field string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"limit", limit,
			"field", field,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"queries", queries,
			"limit", limit,
			"field", field,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, deleted, notFound int) {
	l.DebugContext(ctx, "delete completed",
		"deleted", deleted,
		"not_found", notFound,
	)
}

// LogUpdate logs an update operation.
func (l *Logger) LogUpdate(ctx context.Context, updated, notFound, rejected int) {
	l.DebugContext(ctx, "update completed",
		"updated", updated,
		"not_found", notFound,
		"rejected", rejected,
	)
}

// LogPersist logs a snapshot operation.
func (l *Logger) LogPersist(ctx context.Context, snapshot uint64, docs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"docs", docs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"snapshot", snapshot,
			"docs", docs,
		)
	}
}

// LogRestore logs the restore performed by Open.
func (l *Logger) LogRestore(ctx context.Context, snapshot uint64, docs int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "restore failed", "error", err)
	case snapshot == 0:
		l.InfoContext(ctx, "workspace empty, starting fresh")
	default:
		l.InfoContext(ctx, "snapshot restored",
			"snapshot", snapshot,
			"docs", docs,
		)
	}
}
