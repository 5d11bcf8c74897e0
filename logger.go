package kvsearch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with kvsearch-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*zap.Logger
}

// NewLogger creates a production Logger that writes JSON at level or above
// to stderr.
func NewLogger(level zapcore.Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// NewDevelopmentLogger creates a Logger that outputs human-readable text
// logs at debug level.
func NewDevelopmentLogger() (*Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// FromZap wraps an existing zap logger. A nil logger discards output.
func FromZap(l *zap.Logger) *Logger {
	if l == nil {
		return NoopLogger()
	}
	return &Logger{Logger: l}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

type requestIDKey struct{}

// ContextWithRequestID returns a context carrying the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id of ctx, or a new random one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// WithContext adds the request id of ctx to the logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return &Logger{Logger: l.Logger.With(zap.String("request_id", id))}
	}
	return l
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("table", name))}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, key string, replicas int, err error) {
	if err != nil {
		l.WithContext(ctx).Error("upsert failed",
			zap.String("key", key),
			zap.Int("replicas", replicas),
			zap.Error(err),
		)
		return
	}
	l.WithContext(ctx).Debug("upsert completed",
		zap.String("key", key),
		zap.Int("replicas", replicas),
	)
}

// LogBulk logs a bulk indexing operation.
func (l *Logger) LogBulk(ctx context.Context, count int, d time.Duration, err error) {
	if err != nil {
		l.WithContext(ctx).Warn("bulk index stopped",
			zap.Int("indexed", count),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return
	}
	l.WithContext(ctx).Info("bulk index completed",
		zap.Int("count", count),
		zap.Duration("duration", d),
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, res *Result, d time.Duration, err error) {
	log := l.WithContext(ctx)
	if err != nil {
		log.Error("search failed", zap.Duration("duration", d), zap.Error(err))
		return
	}
	if res.Partial {
		log.Warn("search returned partial results",
			zap.Int("hits", len(res.Hits)),
			zap.Ints("excluded_shards", res.ExcludedShards),
			zap.Duration("duration", d),
		)
		return
	}
	log.Debug("search completed",
		zap.Int("hits", len(res.Hits)),
		zap.Int("duplicates", res.Duplicates),
		zap.Bool("more", res.Token != ""),
		zap.Duration("duration", d),
	)
}

// LogSchema logs the schema a table was opened with.
func (l *Logger) LogSchema(name string, fields []string, shards, replication int) {
	l.Info("table opened",
		zap.String("table", name),
		zap.Strings("fields", fields),
		zap.Int("shards", shards),
		zap.Int("replication", replication),
	)
}
