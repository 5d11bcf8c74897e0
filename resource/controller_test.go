package resource

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 50))
	require.NoError(t, c.AcquireMemory(context.Background(), 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Over the limit.
	assert.False(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(90), c.MemoryUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 20), context.DeadlineExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(context.Background(), 20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_OversizedReservationIsCapped(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 500))
	assert.Equal(t, int64(100), c.MemoryUsage())
	c.ReleaseMemory(500)
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Searches(t *testing.T) {
	c := NewController(Config{MaxConcurrentSearches: 2})

	require.NoError(t, c.AcquireSearch(context.Background()))
	require.NoError(t, c.AcquireSearch(context.Background()))
	assert.Equal(t, int64(2), c.SearchesInFlight())

	assert.False(t, c.TryAcquireSearch())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireSearch(ctx), context.DeadlineExceeded)

	c.ReleaseSearch()
	assert.True(t, c.TryAcquireSearch())
	assert.Equal(t, int64(2), c.SearchesInFlight())
}

func TestController_Defaults(t *testing.T) {
	c := NewController(Config{})
	assert.Positive(t, c.Config().MaxConcurrentSearches)
	require.NoError(t, c.AcquireRows(context.Background(), 1_000_000))
	require.NoError(t, c.AcquireIO(context.Background(), 1_000_000))
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireSearch(context.Background()))
	assert.True(t, c.TryAcquireSearch())
	c.ReleaseSearch()
	require.NoError(t, c.AcquireMemory(context.Background(), 10))
	c.ReleaseMemory(10)
	assert.Equal(t, int64(0), c.MemoryUsage())
	require.NoError(t, c.AcquireRows(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.AcquireSearch(ctx), context.Canceled)
}

func TestController_RowRate(t *testing.T) {
	c := NewController(Config{IndexRowsPerSec: 10})

	// The burst is admitted at once; larger requests are split into bursts.
	require.NoError(t, c.AcquireRows(context.Background(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireRows(ctx, 10))
}

func TestRateLimitedIO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	data, err := ReadAll(context.Background(), strings.NewReader("schema document"), c)
	require.NoError(t, err)
	assert.Equal(t, "schema document", string(data))

	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, c)
	_, err = w.Write([]byte("catalog"))
	require.NoError(t, err)
	assert.Equal(t, "catalog", buf.String())
}
