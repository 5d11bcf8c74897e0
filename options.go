package kvsearch

import "github.com/hupe1980/kvsearch/resource"

type options struct {
	shards           int
	replication      int
	partialResults   bool
	dedup            bool
	bufferSize       int
	poolSize         int
	batchSize        int
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Table.
type Option func(*options)

// WithShards sets the number of shards rows are distributed over. Rows are
// routed by token range, so shard i owns the i-th slice of the token ring.
//
// Ignored by Open, which takes the topology from the table descriptor.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// WithReplication sets how many consecutive shards store each row.
// Searches see every replica and deduplication collapses them.
//
// Ignored by Open, which takes the topology from the table descriptor.
func WithReplication(n int) Option {
	return func(o *options) {
		o.replication = n
	}
}

// WithPartialResults makes searches tolerate failing shards. The result is
// then marked partial and lists the excluded shards instead of failing.
func WithPartialResults(enabled bool) Option {
	return func(o *options) {
		o.partialResults = enabled
	}
}

// WithDedup toggles the deduplication of replica hits. It is on by default.
func WithDedup(enabled bool) Option {
	return func(o *options) {
		o.dedup = enabled
	}
}

// WithBufferSize sets the capacity of each shard's hit channel during a merge.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithPoolSize sets the number of workers running shard tasks. Zero sizes
// the pool to the shard count.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithBatchSize sets the number of rows IndexAll routes at a time.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithController admits shard searches, hit memory and bulk indexing
// against shared limits.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kvsearch.BasicMetricsCollector{}
//	t, _ := kvsearch.New(layout, s, kvsearch.WithMetricsCollector(metrics))
//	// ... use t ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		shards:           1,
		replication:      1,
		dedup:            true,
		batchSize:        1024,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
