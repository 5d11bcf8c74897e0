// Package shard implements one node-local slice of a table's index.
//
// A shard encodes rows through the table schema into its own inverted index
// and serves searches as ordered hit streams for the cross-shard merge.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/merge"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/resource"
	"github.com/hupe1980/kvsearch/schema"
	"github.com/hupe1980/kvsearch/search"
)

// Options configures a Shard.
type Options struct {
	// Controller admits searches and throttles bulk indexing. Nil admits
	// everything.
	Controller *resource.Controller
	// Logger receives indexing and search diagnostics.
	Logger *zap.Logger
	// BatchSize is the number of rows IndexAll admits at a time.
	BatchSize int
}

// DefaultOptions contains default options for shards.
var DefaultOptions = Options{
	BatchSize: 256,
}

// Shard is safe for concurrent use. Writes exclude searches while a search
// resolves its hits, so every hit stream reflects one consistent state.
type Shard struct {
	id     int
	schema *schema.Schema
	index  *index.Index
	opts   Options

	mu     sync.RWMutex
	closed bool
}

// New creates an empty shard.
func New(id int, s *schema.Schema, optFns ...func(o *Options)) *Shard {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.With(zap.Int("shard", id))

	return &Shard{
		id:     id,
		schema: s,
		index:  index.New(),
		opts:   opts,
	}
}

// ID returns the shard id.
func (s *Shard) ID() int { return s.id }

// Schema returns the schema rows are encoded with.
func (s *Shard) Schema() *schema.Schema { return s.schema }

// Len returns the number of indexed rows.
func (s *Shard) Len() int { return s.index.Len() }

// Upsert encodes row and indexes it, replacing a previous version of the row.
func (s *Shard) Upsert(ctx context.Context, row model.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := s.schema.Encode(row)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ErrClosed
	}
	s.index.Upsert(row.Key(), doc)
	return nil
}

// Delete removes a row. It reports whether the row was indexed.
func (s *Shard) Delete(key model.RowKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, model.ErrClosed
	}
	return s.index.Delete(key), nil
}

// IndexAll indexes every row of it and closes it. It returns the number of
// rows indexed before the first error.
func (s *Shard) IndexAll(ctx context.Context, it model.RowIterator) (n int, err error) {
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		if n%s.opts.BatchSize == 0 {
			if err := s.opts.Controller.AcquireRows(ctx, s.opts.BatchSize); err != nil {
				return n, err
			}
		}
		row, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.opts.Logger.Debug("bulk index done", zap.Int("rows", n))
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := s.Upsert(ctx, row); err != nil {
			return n, fmt.Errorf("row %s: %w", row.Key(), err)
		}
		n++
	}
}

// Search returns the ordered hit stream of plan on this shard. Evaluation is
// deferred to the first Next so that shard searches run on the merge's task
// pool. Hits that sort at or before after are skipped.
func (s *Shard) Search(_ context.Context, plan *search.Plan, after *model.Hit) (merge.Source, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, model.ErrClosed
	}
	return &source{shard: s, plan: plan, after: after}, nil
}

// Stats returns the collection statistics of the terms plan scores on.
func (s *Shard) Stats(plan *search.Plan) (*index.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrClosed
	}
	return s.index.Stats(plan.Query), nil
}

// Close releases the shard. Later writes and searches fail with
// model.ErrClosed.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// collect evaluates plan and returns the ordered hits sorting after after.
func (s *Shard) collect(ctx context.Context, plan *search.Plan, after *model.Hit) ([]model.Hit, error) {
	if err := s.opts.Controller.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer s.opts.Controller.ReleaseSearch()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrClosed
	}

	var matches []index.Match
	var err error
	if plan.Scored && plan.Stats != nil {
		matches, err = s.index.SearchWithStats(ctx, plan.Query, plan.Stats)
	} else {
		matches, err = s.index.Search(ctx, plan.Query, plan.Scored)
	}
	if err != nil {
		return nil, err
	}
	hits := make([]model.Hit, len(matches))
	for i, m := range matches {
		hits[i] = plan.Hit(s.index, m.Doc, m.Key, m.Score)
		hits[i].Shard = s.id
	}
	slices.SortFunc(hits, plan.Comparator.Compare)

	if after != nil {
		pos, found := slices.BinarySearchFunc(hits, *after, plan.Comparator.Compare)
		if found {
			pos++
		}
		hits = hits[pos:]
	}
	return hits, nil
}

// hitSize estimates the memory held by a materialised hit.
func hitSize(h model.Hit) int64 {
	const overhead = 96
	return int64(overhead + len(h.Key.Partition) + 16*len(h.Key.Clustering) + 40*len(h.Sort))
}

type source struct {
	shard *Shard
	plan  *search.Plan
	after *model.Hit

	loaded   bool
	hits     []model.Hit
	pos      int
	reserved int64
}

func (src *source) Shard() int { return src.shard.id }

func (src *source) Next(ctx context.Context) (model.Hit, error) {
	if err := ctx.Err(); err != nil {
		return model.Hit{}, err
	}
	if !src.loaded {
		hits, err := src.shard.collect(ctx, src.plan, src.after)
		if err != nil {
			return model.Hit{}, err
		}
		var size int64
		for _, h := range hits {
			size += hitSize(h)
		}
		if err := src.shard.opts.Controller.AcquireMemory(ctx, size); err != nil {
			return model.Hit{}, err
		}
		src.reserved = size
		src.hits = hits
		src.loaded = true
	}
	if src.pos >= len(src.hits) {
		return model.Hit{}, io.EOF
	}
	h := src.hits[src.pos]
	src.pos++
	return h, nil
}

func (src *source) Close() error {
	src.shard.opts.Controller.ReleaseMemory(src.reserved)
	src.reserved = 0
	src.hits = nil
	return nil
}
