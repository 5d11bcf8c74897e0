package kvsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/merge"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
	"github.com/hupe1980/kvsearch/search"
	"github.com/hupe1980/kvsearch/shard"
)

// Page selects a page of search results.
type Page struct {
	// Limit caps the number of hits. Zero means unlimited.
	Limit int
	// Token resumes after the last hit of the previous page.
	Token string
}

// Result is one page of search results.
type Result struct {
	Hits []model.Hit
	// Token fetches the next page. Empty when no hits remain.
	Token string
	// Partial reports that the shards in ExcludedShards failed and
	// contributed nothing.
	Partial        bool
	ExcludedShards []int
	// Duplicates counts replica hits dropped by deduplication.
	Duplicates int
	// RequestID identifies the search in logs.
	RequestID string
}

// Table is a secondary index over the rows of one key-value table, split
// into shards by token range. It is safe for concurrent use.
type Table struct {
	name   string
	layout partition.Layout
	schema *schema.Schema
	shards []*shard.Shard
	pool   *ants.Pool
	opts   options
	logger *Logger

	mu     sync.RWMutex
	closed bool
}

// New creates an empty table indexing rows of layout with s.
func New(layout partition.Layout, s *schema.Schema, optFns ...Option) (*Table, error) {
	return newTable(layout, s, applyOptions(optFns))
}

func newTable(layout partition.Layout, s *schema.Schema, opts options) (*Table, error) {
	if s == nil {
		return nil, errors.New("kvsearch: nil schema")
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if opts.shards < 1 {
		return nil, fmt.Errorf("%w: %d shards", ErrInvalidTopology, opts.shards)
	}
	if opts.replication < 1 || opts.replication > opts.shards {
		return nil, fmt.Errorf("%w: replication %d over %d shards", ErrInvalidTopology, opts.replication, opts.shards)
	}
	if opts.poolSize <= 0 {
		opts.poolSize = opts.shards
	}

	logger := opts.logger.WithTable(s.Name())
	pool, err := merge.NewPool(opts.poolSize, logger.Logger)
	if err != nil {
		return nil, err
	}

	t := &Table{
		name:   s.Name(),
		layout: layout,
		schema: s,
		shards: make([]*shard.Shard, opts.shards),
		pool:   pool,
		opts:   opts,
		logger: logger,
	}
	for i := range t.shards {
		t.shards[i] = shard.New(i, s, func(o *shard.Options) {
			o.Controller = opts.controller
			o.Logger = logger.Logger
		})
	}
	logger.LogSchema(t.name, s.Fields(), opts.shards, opts.replication)
	return t, nil
}

// Create validates d, saves it to cat and creates the empty table it
// describes.
func Create(ctx context.Context, cat *catalog.Catalog, d *catalog.Descriptor, optFns ...Option) (*Table, error) {
	if err := cat.Save(ctx, d); err != nil {
		return nil, err
	}
	return fromDescriptor(d, optFns)
}

// Open loads the descriptor of the named table from cat and creates the
// empty table it describes. The shard topology of the descriptor overrides
// WithShards and WithReplication.
func Open(ctx context.Context, cat *catalog.Catalog, name string, optFns ...Option) (*Table, error) {
	d, err := cat.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return fromDescriptor(d, optFns)
}

func fromDescriptor(d *catalog.Descriptor, optFns []Option) (*Table, error) {
	s, err := d.Validate()
	if err != nil {
		return nil, err
	}
	opts := applyOptions(optFns)
	opts.shards = d.Shards
	opts.replication = d.Replication
	return newTable(d.Layout, s, opts)
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the index schema.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Layout returns the primary-key layout.
func (t *Table) Layout() partition.Layout { return t.layout }

// Len returns the number of indexed row copies, replicas included.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		n += s.Len()
	}
	return n
}

// primary returns the shard owning token. Tokens are mapped onto the shards
// by range: the signed token ring is shifted to unsigned and scaled.
func (t *Table) primary(token model.Token) int {
	hi, _ := bits.Mul64(uint64(token)^(1<<63), uint64(len(t.shards)))
	return int(hi)
}

// replicas returns the shards storing rows with token.
func (t *Table) replicas(token model.Token) []*shard.Shard {
	p := t.primary(token)
	out := make([]*shard.Shard, t.opts.replication)
	for i := range out {
		out[i] = t.shards[(p+i)%len(t.shards)]
	}
	return out
}

func (t *Table) checkOpen() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	return nil
}

// Upsert indexes row on every replica of its token, replacing previous
// versions of the row.
func (t *Table) Upsert(ctx context.Context, row model.Row) (err error) {
	start := time.Now()
	defer func() {
		t.opts.metricsCollector.RecordUpsert(time.Since(start), err)
		t.logger.LogUpsert(ctx, row.Key().String(), t.opts.replication, err)
	}()

	if err := t.checkOpen(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range t.replicas(row.Key().Token) {
		g.Go(func() error { return s.Upsert(gctx, row) })
	}
	return g.Wait()
}

// UpsertColumns derives the row key from columns and upserts the row.
func (t *Table) UpsertColumns(ctx context.Context, columns map[string]model.Value) error {
	r, err := t.layout.NewRecord(columns)
	if err != nil {
		return err
	}
	return t.Upsert(ctx, r)
}

// Delete removes the row from its replicas. It reports whether any replica
// held the row.
func (t *Table) Delete(_ context.Context, key model.RowKey) (found bool, err error) {
	start := time.Now()
	defer func() { t.opts.metricsCollector.RecordDelete(time.Since(start), err) }()

	if err := t.checkOpen(); err != nil {
		return false, err
	}
	for _, s := range t.replicas(key.Token) {
		ok, err := s.Delete(key)
		if err != nil {
			return found, err
		}
		found = found || ok
	}
	return found, nil
}

// IndexAll indexes every row of it and closes it. Rows are routed in
// batches; each batch is indexed by all affected shards in parallel. It
// returns the number of rows of the batches that were fully indexed.
func (t *Table) IndexAll(ctx context.Context, it model.RowIterator) (n int, err error) {
	start := time.Now()
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
		failed := 0
		if err != nil {
			failed = 1
		}
		t.opts.metricsCollector.RecordBulk(n, failed, time.Since(start))
		t.logger.LogBulk(ctx, n, time.Since(start), err)
	}()

	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	for {
		batch := make([][]model.Row, len(t.shards))
		size := 0
		for size < t.opts.batchSize {
			row, err := it.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return n, err
			}
			for _, s := range t.replicas(row.Key().Token) {
				batch[s.ID()] = append(batch[s.ID()], row)
			}
			size++
		}
		if size == 0 {
			return n, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for i, rows := range batch {
			if len(rows) == 0 {
				continue
			}
			g.Go(func() error {
				_, err := t.shards[i].IndexAll(gctx, model.NewSliceRowIterator(rows...))
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return n, err
		}
		n += size
		if size < t.opts.batchSize {
			return n, nil
		}
	}
}

// Compile validates req against the schema and returns its plan.
func (t *Table) Compile(req *search.Request) (*search.Plan, error) {
	return search.Compile(req, t.schema, t.layout)
}

// Explain returns a description of the plan of req.
func (t *Table) Explain(req *search.Request) (string, error) {
	p, err := t.Compile(req)
	if err != nil {
		return "", err
	}
	return p.Explain(), nil
}

// Search runs req on every shard and merges the shard results into one
// ordered page. Request errors are reported before any shard is searched.
func (t *Table) Search(ctx context.Context, req *search.Request, page Page) (res *Result, err error) {
	start := time.Now()
	ctx = ContextWithRequestID(ctx, RequestID(ctx))
	defer func() {
		hits, partial := 0, false
		if res != nil {
			hits, partial = len(res.Hits), res.Partial
		}
		t.opts.metricsCollector.RecordSearch(hits, partial, time.Since(start), err)
		t.logger.LogSearch(ctx, res, time.Since(start), err)
	}()

	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	plan, err := t.Compile(req)
	if err != nil {
		return nil, err
	}

	var after *model.Hit
	if page.Token != "" {
		last, err := merge.DecodeToken(plan.Fingerprint, page.Token)
		if err != nil {
			return nil, err
		}
		after = &last
	}
	if plan.Scored {
		if plan, err = t.withTableStats(plan); err != nil {
			return nil, err
		}
	}

	sources := make([]merge.Source, 0, len(t.shards))
	for _, s := range t.shards {
		src, err := s.Search(ctx, plan, after)
		if err != nil {
			for _, open := range sources {
				_ = open.Close()
			}
			return nil, err
		}
		sources = append(sources, src)
	}

	m := merge.New(plan.Comparator, plan.Fingerprint, func(o *merge.Options) {
		o.Limit = page.Limit
		o.Token = page.Token
		o.Dedup = t.opts.dedup
		o.PartialResults = t.opts.partialResults
		o.BufferSize = t.opts.bufferSize
		o.Pool = t.pool
		o.Logger = t.logger.WithContext(ctx).Logger
	})
	p, err := m.Merge(ctx, sources)
	if err != nil {
		return nil, err
	}
	return &Result{
		Hits:           p.Hits,
		Token:          p.Token,
		Partial:        p.Partial,
		ExcludedShards: p.ExcludedShards,
		Duplicates:     p.Duplicates,
		RequestID:      RequestID(ctx),
	}, nil
}

// withTableStats returns plan scoring with statistics summed over all
// shards. Every row is stored on replication shards, so the sums are divided
// by it. Replicas of a row then score the same and keep one position in the
// merge order across pages.
func (t *Table) withTableStats(plan *search.Plan) (*search.Plan, error) {
	total := index.NewStats()
	for _, s := range t.shards {
		st, err := s.Stats(plan)
		if err != nil {
			return nil, err
		}
		total.Add(st)
	}
	total.Divide(t.opts.replication)
	return plan.WithStats(total), nil
}

// Close closes the shards and releases the task pool. Later operations fail
// with ErrClosed. Close is idempotent.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for _, s := range t.shards {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.pool.ReleaseTimeout(5 * time.Second); err != nil {
		errs = append(errs, err)
	}
	t.logger.Debug("table closed", zap.String("table", t.name))
	return errors.Join(errs...)
}
