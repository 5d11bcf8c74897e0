package testutil

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/kvsearch/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// RowKeys generates n distinct row keys. Tokens are drawn from [0, tokens)
// so that collisions occur when tokens is small; clustering holds one
// integer component when wide is set.
func (r *RNG) RowKeys(n int, tokens int64, wide bool) []model.RowKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]model.RowKey, n)
	for i := range keys {
		keys[i] = model.RowKey{
			Token:     model.Token(r.rand.Int63n(tokens)),
			Partition: fmt.Appendf(nil, "p%03d", i),
		}
		if wide {
			keys[i].Clustering = model.ClusteringKey{model.Int(int64(i))}
		}
	}
	return keys
}

// Hits generates hits for keys with random scores and one random sort value
// per hit; roughly one in nullRate sort values is null (0 disables nulls).
func (r *RNG) Hits(keys []model.RowKey, nullRate int) []model.Hit {
	r.mu.Lock()
	defer r.mu.Unlock()

	hits := make([]model.Hit, len(keys))
	for i, k := range keys {
		v := model.Int(int64(r.rand.Intn(10)))
		if nullRate > 0 && r.rand.Intn(nullRate) == 0 {
			v = model.Null()
		}
		hits[i] = model.Hit{Key: k, Score: float32(r.rand.Intn(5)), Sort: []model.Value{v}}
	}
	return hits
}

// Key returns a simple row key.
func Key(token int64, partition string) model.RowKey {
	return model.RowKey{Token: model.Token(token), Partition: []byte(partition)}
}

// Hit returns an unscored hit on Key(token, partition).
func Hit(token int64, partition string) model.Hit {
	return model.Hit{Key: Key(token, partition)}
}

// IDs returns the row identities of hits, in order.
func IDs(hits []model.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID()
	}
	return out
}

// Source is an in-memory ordered hit stream. It satisfies merge.Source.
type Source struct {
	// ShardID identifies the stream.
	ShardID int
	// Hits are returned in order.
	Hits []model.Hit
	// Err, when set, is returned once the hits are exhausted instead of
	// io.EOF.
	Err error
	// Delay is slept before every hit; a cancelled context interrupts it.
	Delay time.Duration
	// Block makes Next wait for context cancellation after the hits.
	Block bool

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewSource creates a Source for shard over hits.
func NewSource(shard int, hits ...model.Hit) *Source {
	return &Source{ShardID: shard, Hits: hits}
}

// Shard returns the shard id.
func (s *Source) Shard() int { return s.ShardID }

// Next returns the next hit or io.EOF.
func (s *Source) Next(ctx context.Context) (model.Hit, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return model.Hit{}, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Hit{}, err
	}

	s.mu.Lock()
	if s.pos < len(s.Hits) {
		h := s.Hits[s.pos]
		s.pos++
		s.mu.Unlock()
		h.Shard = s.ShardID
		return h, nil
	}
	s.mu.Unlock()

	if s.Err != nil {
		return model.Hit{}, s.Err
	}
	if s.Block {
		<-ctx.Done()
		return model.Hit{}, ctx.Err()
	}
	return model.Hit{}, io.EOF
}

// Close marks the source closed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consumed returns how many hits were read.
func (s *Source) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
