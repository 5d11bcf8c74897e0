// Package merge combines per-shard ordered hit streams into one globally
// ordered, deduplicated and paginated result.
//
// Every shard task writes into its own bounded channel. A single consumer
// keeps the current head of each shard in a heap and always emits the
// comparator minimum, so the output order depends only on the comparator
// and the shard inputs, never on task timing.
package merge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hupe1980/kvsearch/internal/queue"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/ordering"
)

// Source is the ordered hit stream of one shard. Next returns io.EOF when
// the stream is exhausted.
type Source interface {
	Shard() int
	Next(ctx context.Context) (model.Hit, error)
	Close() error
}

// Executor runs shard tasks. Submit must not block waiting for a free
// worker; a rejected task runs on its own goroutine. *ants.Pool created
// with ants.WithNonblocking implements it.
type Executor interface {
	Submit(task func()) error
}

// Options configures a merge.
type Options struct {
	// Limit caps the page size. Zero means unlimited.
	Limit int
	// Token resumes after the last hit of a previous page.
	Token string
	// Dedup drops hits whose row was already emitted by another shard.
	Dedup bool
	// PartialResults tolerates failing shards. The page is then marked
	// partial and lists the excluded shards.
	PartialResults bool
	// BufferSize is the capacity of each shard channel.
	BufferSize int
	// Pool runs shard tasks. Nil, or a pool that rejects a task, falls back
	// to a goroutine.
	Pool Executor
	// Logger receives task failures.
	Logger *zap.Logger
}

// DefaultOptions contains default options for merges.
var DefaultOptions = Options{
	Dedup:      true,
	BufferSize: 32,
}

// Page is one page of merged hits.
type Page struct {
	Hits []model.Hit
	// Token resumes after the last hit. Empty when no hits remain.
	Token string
	// Partial reports that some shards failed and were excluded.
	Partial        bool
	ExcludedShards []int
	// Duplicates counts the replica hits dropped by deduplication.
	Duplicates int
}

// Merger merges shard streams under one comparator.
type Merger struct {
	comparator  ordering.Comparator
	fingerprint uint64
	opts        Options
}

// New creates a Merger. The fingerprint binds resume tokens to the plan
// whose comparator ordered the shard streams.
func New(c ordering.Comparator, fingerprint uint64, optFns ...func(o *Options)) *Merger {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions.BufferSize
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Merger{comparator: c, fingerprint: fingerprint, opts: opts}
}

// NewPool creates a bounded shard task pool. Task panics are recovered by
// the merge itself; the handler only logs panics that escape it.
func NewPool(size int, logger *zap.Logger) (*ants.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			logger.Error("shard task panic", zap.Any("panic", v))
		}),
	)
}

type item struct {
	hit model.Hit
	err error
}

type head struct {
	hit model.Hit
	src int
}

// Merge consumes sources and returns the next page. Sources are closed before
// Merge returns. When ctx is cancelled Merge returns ctx.Err() and no page.
func (m *Merger) Merge(ctx context.Context, sources []Source) (*Page, error) {
	if err := ctx.Err(); err != nil {
		m.closeAll(sources)
		return nil, err
	}

	var after *model.Hit
	if m.opts.Token != "" {
		last, err := DecodeToken(m.fingerprint, m.opts.Token)
		if err != nil {
			m.closeAll(sources)
			return nil, err
		}
		after = &last
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	streams := make([]chan item, len(sources))
	for i, src := range sources {
		ch := make(chan item, m.opts.BufferSize)
		streams[i] = ch
		wg.Add(1)
		m.submit(func() {
			defer wg.Done()
			defer close(ch)
			m.run(runCtx, src, ch)
		})
	}
	defer func() {
		cancel()
		wg.Wait()
		m.closeAll(sources)
	}()

	return m.merge(ctx, sources, streams, after)
}

func (m *Merger) submit(task func()) {
	if m.opts.Pool != nil {
		err := m.opts.Pool.Submit(task)
		if err == nil {
			return
		}
		m.opts.Logger.Debug("shard task pool rejected task", zap.Error(err))
	}
	go task()
}

func (m *Merger) run(ctx context.Context, src Source, out chan<- item) {
	defer func() {
		if r := recover(); r != nil {
			send(ctx, out, item{err: fmt.Errorf("panic: %v", r)})
		}
	}()
	shard := src.Shard()
	for {
		h, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			send(ctx, out, item{err: err})
			return
		}
		h.Shard = shard
		if !send(ctx, out, item{hit: h}) {
			return
		}
	}
}

func send(ctx context.Context, out chan<- item, it item) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Merger) merge(ctx context.Context, sources []Source, streams []chan item, after *model.Hit) (*Page, error) {
	page := &Page{}

	// next returns the following hit of source i that sorts after the resume
	// position. ok is false when the source is exhausted or excluded.
	next := func(i int) (h model.Hit, ok bool, err error) {
		for {
			select {
			case <-ctx.Done():
				return model.Hit{}, false, ctx.Err()
			case it, open := <-streams[i]:
				if !open {
					return model.Hit{}, false, nil
				}
				if it.err != nil {
					if err := ctx.Err(); err != nil {
						return model.Hit{}, false, err
					}
					shard := sources[i].Shard()
					serr := model.NewShardExecutionError(shard, it.err)
					if !m.opts.PartialResults {
						return model.Hit{}, false, serr
					}
					m.opts.Logger.Warn("excluding failed shard", zap.Int("shard", shard), zap.Error(it.err))
					page.Partial = true
					page.ExcludedShards = append(page.ExcludedShards, shard)
					return model.Hit{}, false, nil
				}
				if after != nil && m.comparator.Compare(it.hit, *after) <= 0 {
					continue
				}
				return it.hit, true, nil
			}
		}
	}

	pq := queue.New(func(a, b head) int {
		if c := m.comparator.Compare(a.hit, b.hit); c != 0 {
			return c
		}
		return cmp.Compare(a.src, b.src)
	}, len(streams))

	for i := range streams {
		h, ok, err := next(i)
		if err != nil {
			return nil, err
		}
		if ok {
			pq.PushItem(head{hit: h, src: i})
		}
	}

	var seen map[string]struct{}
	if m.opts.Dedup {
		seen = make(map[string]struct{})
	}

	more := false
	for {
		top, ok := pq.TopItem()
		if !ok {
			break
		}

		dup := false
		if seen != nil {
			_, dup = seen[top.hit.ID()]
		}
		if dup {
			page.Duplicates++
		} else {
			if m.opts.Limit > 0 && len(page.Hits) == m.opts.Limit {
				more = true
				break
			}
			if seen != nil {
				seen[top.hit.ID()] = struct{}{}
			}
			page.Hits = append(page.Hits, top.hit)
		}

		h, ok, err := next(top.src)
		if err != nil {
			return nil, err
		}
		if ok {
			pq.ReplaceTop(head{hit: h, src: top.src})
		} else {
			pq.PopItem()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if more {
		token, err := EncodeToken(m.fingerprint, page.Hits[len(page.Hits)-1])
		if err != nil {
			return nil, err
		}
		page.Token = token
	}
	return page, nil
}

func (m *Merger) closeAll(sources []Source) {
	for _, src := range sources {
		if err := src.Close(); err != nil {
			m.opts.Logger.Warn("close shard source", zap.Int("shard", src.Shard()), zap.Error(err))
		}
	}
}
