package kvsearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hupe1980/kvsearch/search"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core)), logs
}

func TestRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))

	a, b := RequestID(context.Background()), RequestID(context.Background())
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestLoggerContextFields(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	ctx := ContextWithRequestID(context.Background(), "req-7")

	l.WithTable("users").LogUpsert(ctx, "1:a", 2, nil)
	l.LogUpsert(ctx, "1:a", 2, errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "upsert completed", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "users", fields["table"])
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestLogSearch(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	ctx := context.Background()

	l.LogSearch(ctx, &Result{}, time.Millisecond, nil)
	l.LogSearch(ctx, &Result{Partial: true, ExcludedShards: []int{2}}, time.Millisecond, nil)
	l.LogSearch(ctx, nil, time.Millisecond, errors.New("bad"))

	assert.Equal(t, 1, logs.FilterMessage("search completed").Len())
	partial := logs.FilterMessage("search returned partial results").All()
	require.Len(t, partial, 1)
	assert.Equal(t, zapcore.WarnLevel, partial[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("search failed").Len())
}

func TestTableLogsRequestID(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	tbl := newUsers(t, WithLogger(l))
	loadUsers(t, tbl, 3)

	ctx := ContextWithRequestID(context.Background(), "trace-42")
	res, err := tbl.Search(ctx, search.NewRequest(), Page{})
	require.NoError(t, err)
	assert.Equal(t, "trace-42", res.RequestID)

	entries := logs.FilterMessage("search completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "trace-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, 1, logs.FilterMessage("table opened").Len())
}

func TestNoopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		FromZap(nil).LogBulk(context.Background(), 1, time.Second, nil)
		NoopLogger().LogSchema("t", nil, 1, 1)
	})
}
