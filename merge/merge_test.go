package merge

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/ordering"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/testutil"
)

var natural = ordering.NewNatural(partition.Layout{PartitionKey: []string{"id"}})

const fingerprint = 0xfeed

func sources(srcs ...*testutil.Source) []Source {
	out := make([]Source, len(srcs))
	for i, s := range srcs {
		out[i] = s
	}
	return out
}

// shardHits splits hits round-robin over n shards, each shard holding
// replication consecutive copies, and orders every shard by c.
func shardHits(hits []model.Hit, n, replication int, c ordering.Comparator) [][]model.Hit {
	shards := make([][]model.Hit, n)
	for i, h := range hits {
		for r := range replication {
			s := (i + r) % n
			shards[s] = append(shards[s], h)
		}
	}
	for _, s := range shards {
		ordering.Sort(s, c)
	}
	return shards
}

func newSources(shards [][]model.Hit) []*testutil.Source {
	out := make([]*testutil.Source, len(shards))
	for i, hits := range shards {
		out[i] = testutil.NewSource(i, slices.Clone(hits)...)
	}
	return out
}

func TestThreeShardExample(t *testing.T) {
	a := testutil.Hit(1, "A")
	b := testutil.Hit(2, "B")
	c := testutil.Hit(3, "C")

	srcs := []*testutil.Source{
		testutil.NewSource(0, a, c),
		testutil.NewSource(1, b),
		testutil.NewSource(2, a),
	}
	page, err := New(natural, fingerprint).Merge(context.Background(), sources(srcs...))
	require.NoError(t, err)

	assert.Equal(t, testutil.IDs([]model.Hit{a, b, c}), testutil.IDs(page.Hits))
	assert.Equal(t, 1, page.Duplicates)
	assert.Empty(t, page.Token)
	assert.False(t, page.Partial)
	assert.Equal(t, 0, page.Hits[0].Shard, "first seen instance wins")
	for _, s := range srcs {
		assert.True(t, s.Closed())
	}
}

func TestMergeOrderPreservingAndComplete(t *testing.T) {
	rng := testutil.NewRNG(4711)
	hits := rng.Hits(rng.RowKeys(500, 50, false), 0)
	shards := shardHits(hits, 4, 1, natural)

	page, err := New(natural, fingerprint, func(o *Options) {
		o.Dedup = false
		o.BufferSize = 3
	}).Merge(context.Background(), sources(newSources(shards)...))
	require.NoError(t, err)

	want := slices.Clone(hits)
	ordering.Sort(want, natural)
	assert.Equal(t, testutil.IDs(want), testutil.IDs(page.Hits))

	for s, input := range shards {
		var got []model.Hit
		for _, h := range page.Hits {
			if h.Shard == s {
				got = append(got, h)
			}
		}
		assert.Equal(t, testutil.IDs(input), testutil.IDs(got), "shard %d", s)
	}
}

func TestMergeReplicasCollapse(t *testing.T) {
	rng := testutil.NewRNG(42)
	hits := rng.Hits(rng.RowKeys(200, 1000, true), 0)
	shards := shardHits(hits, 5, 3, natural)

	page, err := New(natural, fingerprint).Merge(context.Background(), sources(newSources(shards)...))
	require.NoError(t, err)
	assert.Len(t, page.Hits, len(hits))
	assert.Equal(t, 2*len(hits), page.Duplicates)

	page, err = New(natural, fingerprint, func(o *Options) { o.Dedup = false }).
		Merge(context.Background(), sources(newSources(shards)...))
	require.NoError(t, err)
	assert.Len(t, page.Hits, 3*len(hits))
}

func TestPaginationResumesMerge(t *testing.T) {
	rng := testutil.NewRNG(7)
	hits := rng.Hits(rng.RowKeys(120, 20, false), 4)

	comparators := []ordering.Comparator{
		natural,
		ordering.NewSorted(natural, ordering.SortKey{Field: "v"}),
		ordering.NewSorted(natural, ordering.SortKey{Field: "v", Reverse: true}),
		ordering.NewScoring(natural),
	}
	for _, c := range comparators {
		t.Run(c.Describe(), func(t *testing.T) {
			shards := shardHits(hits, 3, 2, c)

			full, err := New(c, fingerprint).Merge(context.Background(), sources(newSources(shards)...))
			require.NoError(t, err)
			require.Len(t, full.Hits, len(hits))

			for _, limit := range []int{1, 7, 40, 120} {
				var (
					got   []model.Hit
					token string
					pages int
				)
				for {
					page, err := New(c, fingerprint, func(o *Options) {
						o.Limit = limit
						o.Token = token
					}).Merge(context.Background(), sources(newSources(shards)...))
					require.NoError(t, err)
					require.LessOrEqual(t, len(page.Hits), limit)
					got = append(got, page.Hits...)
					pages++
					if page.Token == "" {
						break
					}
					token = page.Token
				}
				assert.Equal(t, testutil.IDs(full.Hits), testutil.IDs(got), "limit %d", limit)
				assert.Equal(t, (len(hits)+limit-1)/limit, pages, "limit %d", limit)
			}
		})
	}
}

func TestMergeLimitWithoutRemainder(t *testing.T) {
	srcs := sources(
		testutil.NewSource(0, testutil.Hit(1, "a"), testutil.Hit(3, "c")),
		testutil.NewSource(1, testutil.Hit(1, "a"), testutil.Hit(2, "b")),
	)
	page, err := New(natural, fingerprint, func(o *Options) { o.Limit = 3 }).Merge(context.Background(), srcs)
	require.NoError(t, err)
	assert.Len(t, page.Hits, 3)
	assert.Empty(t, page.Token, "no token once every source is drained")
}

func TestShardFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	build := func() []Source {
		failing := testutil.NewSource(2)
		failing.Err = boom
		return sources(
			testutil.NewSource(0, testutil.Hit(1, "a"), testutil.Hit(4, "d")),
			testutil.NewSource(1, testutil.Hit(2, "b")),
			failing,
		)
	}

	page, err := New(natural, fingerprint).Merge(context.Background(), build())
	assert.Nil(t, page)
	var serr *model.ShardExecutionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Shard)
	assert.ErrorIs(t, err, boom)

	page, err = New(natural, fingerprint, func(o *Options) { o.PartialResults = true }).
		Merge(context.Background(), build())
	require.NoError(t, err)
	assert.True(t, page.Partial)
	assert.Equal(t, []int{2}, page.ExcludedShards)
	assert.Equal(t, testutil.IDs([]model.Hit{testutil.Hit(1, "a"), testutil.Hit(2, "b"), testutil.Hit(4, "d")}), testutil.IDs(page.Hits))
}

type panicSource struct{ closed bool }

func (p *panicSource) Shard() int { return 9 }

func (p *panicSource) Next(context.Context) (model.Hit, error) { panic("index corrupted") }

func (p *panicSource) Close() error { p.closed = true; return nil }

func TestShardPanicIsRecovered(t *testing.T) {
	ps := &panicSource{}
	_, err := New(natural, fingerprint).Merge(context.Background(), []Source{
		testutil.NewSource(0, testutil.Hit(1, "a")),
		ps,
	})
	var serr *model.ShardExecutionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 9, serr.Shard)
	assert.Contains(t, err.Error(), "index corrupted")
	assert.True(t, ps.closed)
}

func TestMergeCancellation(t *testing.T) {
	blocked := testutil.NewSource(1)
	blocked.Block = true
	srcs := []*testutil.Source{testutil.NewSource(0, testutil.Hit(1, "a")), blocked}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	page, err := New(natural, fingerprint).Merge(ctx, sources(srcs...))
	assert.Nil(t, page)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	for _, s := range srcs {
		assert.True(t, s.Closed())
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	src := testutil.NewSource(0, testutil.Hit(1, "a"))
	_, err = New(natural, fingerprint).Merge(ctx, []Source{src})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, src.Closed())
	assert.Equal(t, 0, src.Consumed())
}

func TestInvalidToken(t *testing.T) {
	for _, token := range []string{"!!", "aGVsbG8", mustToken(t, fingerprint+1, testutil.Hit(1, "a"))} {
		src := testutil.NewSource(0)
		_, err := New(natural, fingerprint, func(o *Options) { o.Token = token }).
			Merge(context.Background(), []Source{src})
		assert.ErrorIs(t, err, model.ErrInvalidResumeToken, token)
		assert.True(t, src.Closed())
	}
}

func TestTokenRoundTrip(t *testing.T) {
	h := model.Hit{
		Key:   model.RowKey{Token: -42, Partition: []byte{0, 1}, Clustering: model.ClusteringKey{model.String("x"), model.Int(3)}},
		Score: 1.5,
		Sort:  []model.Value{model.String("madrid"), model.Null(), model.Float(0.25)},
		Shard: 3,
	}
	token := mustToken(t, fingerprint, h)
	got, err := DecodeToken(fingerprint, token)
	require.NoError(t, err)
	assert.Equal(t, 0, ordering.NewScoring(natural).Compare(h, got))
	assert.Equal(t, h.ID(), got.ID())
	v, ok := got.Sort[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "madrid", v)
	assert.True(t, got.Sort[1].IsNull())
}

func TestMergeWithPool(t *testing.T) {
	pool, err := NewPool(1, nil)
	require.NoError(t, err)
	defer pool.Release()

	rng := testutil.NewRNG(1)
	hits := rng.Hits(rng.RowKeys(100, 10, false), 0)
	shards := shardHits(hits, 6, 2, natural)

	page, err := New(natural, fingerprint, func(o *Options) { o.Pool = pool }).
		Merge(context.Background(), sources(newSources(shards)...))
	require.NoError(t, err)
	assert.Len(t, page.Hits, len(hits))
}

func mustToken(t *testing.T, fp uint64, h model.Hit) string {
	t.Helper()
	token, err := EncodeToken(fp, h)
	require.NoError(t, err)
	return token
}
