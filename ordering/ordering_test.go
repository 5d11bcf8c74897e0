package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/testutil"
)

var wideLayout = partition.Layout{
	PartitionKey: []string{"id"},
	Clustering:   []partition.ClusteringColumn{{Name: "ts", Type: model.KindInt, Reverse: true}},
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

// assertTotalOrder checks antisymmetry, transitivity and identity equality.
func assertTotalOrder(t *testing.T, c Comparator, hits []model.Hit) {
	t.Helper()
	for _, a := range hits {
		for _, b := range hits {
			ab := sign(c.Compare(a, b))
			require.Equal(t, -ab, sign(c.Compare(b, a)), "antisymmetry %s %s", a.ID(), b.ID())
			require.Equal(t, a.ID() == b.ID(), ab == 0, "equality %s %s", a.ID(), b.ID())
			for _, x := range hits {
				if ab < 0 && c.Compare(b, x) < 0 {
					require.Negative(t, c.Compare(a, x), "transitivity %s %s %s", a.ID(), b.ID(), x.ID())
				}
			}
		}
	}
}

func TestNaturalTotalOrder(t *testing.T) {
	rng := testutil.NewRNG(4711)
	for _, layout := range []partition.Layout{{PartitionKey: []string{"id"}}, wideLayout} {
		n := NewNatural(layout)
		hits := rng.Hits(rng.RowKeys(40, 3, layout.Wide()), 0)
		assertTotalOrder(t, n, hits)
	}
}

func TestNaturalOrder(t *testing.T) {
	n := NewNatural(wideLayout)
	row := func(token int64, p string, ts int64) model.Hit {
		return model.Hit{Key: model.RowKey{Token: model.Token(token), Partition: []byte(p), Clustering: model.ClusteringKey{model.Int(ts)}}}
	}
	hits := []model.Hit{row(2, "a", 1), row(1, "b", 5), row(1, "a", 1), row(1, "a", 9)}
	Sort(hits, n)
	assert.Equal(t, []string{row(1, "a", 9).ID(), row(1, "a", 1).ID(), row(1, "b", 5).ID(), row(2, "a", 1).ID()}, testutil.IDs(hits))
	assert.Contains(t, n.Describe(), "ts:int desc")

	skinny := NewNatural(partition.Layout{PartitionKey: []string{"id"}})
	assert.Zero(t, skinny.Compare(row(1, "a", 1), row(1, "a", 2)), "clustering is ignored for skinny tables")
	assert.Equal(t, "natural", skinny.Describe())
}

func TestSortedTotalOrder(t *testing.T) {
	rng := testutil.NewRNG(42)
	s := NewSorted(NewNatural(wideLayout), SortKey{Field: "age", Reverse: true})
	hits := rng.Hits(rng.RowKeys(40, 5, true), 4)
	assertTotalOrder(t, s, hits)
}

func TestSortedFallsBackToNatural(t *testing.T) {
	s := NewSorted(NewNatural(partition.Layout{PartitionKey: []string{"id"}}), SortKey{Field: "age"})
	a := model.Hit{Key: testutil.Key(2, "a"), Sort: []model.Value{model.Int(7)}}
	b := model.Hit{Key: testutil.Key(1, "b"), Sort: []model.Value{model.Int(7)}}
	assert.Positive(t, s.Compare(a, b))
	assert.Negative(t, s.Compare(b, a))
}

func TestSortedNullsLast(t *testing.T) {
	natural := NewNatural(partition.Layout{PartitionKey: []string{"id"}})
	hits := []model.Hit{
		{Key: testutil.Key(1, "null"), Sort: []model.Value{model.Null()}},
		{Key: testutil.Key(2, "low"), Sort: []model.Value{model.Int(1)}},
		{Key: testutil.Key(3, "missing")},
		{Key: testutil.Key(4, "high"), Sort: []model.Value{model.Float(2.5)}},
	}

	asc := append([]model.Hit(nil), hits...)
	Sort(asc, NewSorted(natural, SortKey{Field: "v"}))
	assert.Equal(t, []string{hits[1].ID(), hits[3].ID(), hits[0].ID(), hits[2].ID()}, testutil.IDs(asc))

	desc := append([]model.Hit(nil), hits...)
	Sort(desc, NewSorted(natural, SortKey{Field: "v", Reverse: true}))
	assert.Equal(t, []string{hits[3].ID(), hits[1].ID(), hits[0].ID(), hits[2].ID()}, testutil.IDs(desc))
}

func TestSortedMultipleKeys(t *testing.T) {
	s := NewSorted(NewNatural(partition.Layout{PartitionKey: []string{"id"}}),
		SortKey{Field: "city"}, SortKey{Field: "age", Reverse: true})
	hit := func(p, city string, age int64) model.Hit {
		return model.Hit{Key: testutil.Key(0, p), Sort: []model.Value{model.String(city), model.Int(age)}}
	}
	hits := []model.Hit{hit("a", "rome", 20), hit("b", "oslo", 30), hit("c", "rome", 40)}
	Sort(hits, s)
	assert.Equal(t, []string{hit("b", "", 0).ID(), hit("c", "", 0).ID(), hit("a", "", 0).ID()}, testutil.IDs(hits))
	assert.Equal(t, "sorted(city asc, age desc; natural)", s.Describe())
	assert.Equal(t, []SortKey{{Field: "city"}, {Field: "age", Reverse: true}}, s.Keys())
}

func TestScoring(t *testing.T) {
	s := NewScoring(NewNatural(partition.Layout{PartitionKey: []string{"id"}}))
	hits := []model.Hit{
		{Key: testutil.Key(1, "a"), Score: 0.5},
		{Key: testutil.Key(2, "b"), Score: 2},
		{Key: testutil.Key(0, "c"), Score: 0.5},
	}
	Sort(hits, s)
	assert.Equal(t, []string{"b", "c", "a"}, []string{
		string(hits[0].Key.Partition), string(hits[1].Key.Partition), string(hits[2].Key.Partition),
	})
	assert.Equal(t, "scoring(natural)", s.Describe())

	rng := testutil.NewRNG(7)
	assertTotalOrder(t, s, rng.Hits(rng.RowKeys(30, 4, false), 0))
}
