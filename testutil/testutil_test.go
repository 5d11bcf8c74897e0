package testutil

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowKeys(t *testing.T) {
	rng := NewRNG(4711)

	keys := rng.RowKeys(50, 4, true)

	assert.Equal(t, 50, len(keys))
	for _, k := range keys {
		assert.GreaterOrEqual(t, int64(k.Token), int64(0))
		assert.Less(t, int64(k.Token), int64(4))
		assert.Len(t, k.Clustering, 1)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	h1 := rng.Hits(rng.RowKeys(10, 100, false), 3)
	rng.Reset()
	h2 := rng.Hits(rng.RowKeys(10, 100, false), 3)

	assert.Equal(t, IDs(h1), IDs(h2))
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestSource(t *testing.T) {
	ctx := context.Background()
	src := NewSource(2, Hit(1, "a"), Hit(2, "b"))

	h, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Shard)
	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, src.Consumed())

	require.NoError(t, src.Close())
	assert.True(t, src.Closed())
}

func TestSourceErrorAndBlock(t *testing.T) {
	boom := errors.New("boom")
	src := NewSource(0)
	src.Err = boom
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	blocking := NewSource(1)
	blocking.Block = true
	_, err = blocking.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
