// Package ordering provides the row comparators shared by shard searches and
// the cross-shard merge.
//
// Every comparator is a strict total order over row identities: two hits
// compare equal only when they reference the same row.
package ordering

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/partition"
)

// Comparator orders hits.
type Comparator interface {
	// Compare returns a negative number when a sorts before b, a positive
	// number when after and zero only when both reference the same row.
	Compare(a, b model.Hit) int
	// Describe returns a stable description used to fingerprint plans.
	Describe() string
}

// Sort sorts hits in place.
func Sort(hits []model.Hit, c Comparator) {
	slices.SortFunc(hits, c.Compare)
}

// Natural orders hits the way the store iterates rows: by partition token,
// then partition key bytes, then clustering key for wide tables.
type Natural struct {
	wide       bool
	clustering partition.ClusteringType
}

// NewNatural returns the natural comparator of a layout.
func NewNatural(layout partition.Layout) Natural {
	return Natural{wide: layout.Wide(), clustering: partition.NewClusteringType(layout.Clustering)}
}

// Compare implements Comparator.
func (n Natural) Compare(a, b model.Hit) int {
	return n.CompareKeys(a.Key, b.Key)
}

// CompareKeys compares row identities.
func (n Natural) CompareKeys(a, b model.RowKey) int {
	if c := cmp.Compare(a.Token, b.Token); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Partition, b.Partition); c != 0 {
		return c
	}
	if !n.wide {
		return 0
	}
	return n.clustering.Compare(a.Clustering, b.Clustering)
}

// Describe implements Comparator.
func (n Natural) Describe() string {
	if !n.wide {
		return "natural"
	}
	return "natural(" + n.clustering.String() + ")"
}

// SortKey describes one position of model.Hit.Sort.
type SortKey struct {
	Field   string
	Reverse bool
}

func (k SortKey) String() string {
	if k.Reverse {
		return k.Field + " desc"
	}
	return k.Field + " asc"
}

// Sorted orders hits by their sort values and falls back to the natural
// order. Missing values sort last in both directions.
type Sorted struct {
	keys    []SortKey
	natural Natural
}

// NewSorted returns a comparator over keys with natural as tie-break.
func NewSorted(natural Natural, keys ...SortKey) Sorted {
	return Sorted{keys: slices.Clone(keys), natural: natural}
}

// Keys returns the sort keys.
func (s Sorted) Keys() []SortKey { return slices.Clone(s.keys) }

// Compare implements Comparator.
func (s Sorted) Compare(a, b model.Hit) int {
	for i, k := range s.keys {
		if c := compareSortValue(sortValue(a, i), sortValue(b, i), k.Reverse); c != 0 {
			return c
		}
	}
	return s.natural.Compare(a, b)
}

func sortValue(h model.Hit, i int) model.Value {
	if i < len(h.Sort) {
		return h.Sort[i]
	}
	return model.Null()
}

func compareSortValue(a, b model.Value, reverse bool) int {
	an, bn := a.IsNull(), b.IsNull()
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	c := model.Compare(a, b)
	if reverse {
		return -c
	}
	return c
}

// Describe implements Comparator.
func (s Sorted) Describe() string {
	parts := make([]string, len(s.keys))
	for i, k := range s.keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("sorted(%s; %s)", strings.Join(parts, ", "), s.natural.Describe())
}

// Scoring orders hits by descending relevance, then naturally.
type Scoring struct {
	natural Natural
}

// NewScoring returns a relevance comparator with natural as tie-break.
func NewScoring(natural Natural) Scoring { return Scoring{natural: natural} }

// Compare implements Comparator.
func (s Scoring) Compare(a, b model.Hit) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return s.natural.Compare(a, b)
}

// Describe implements Comparator.
func (s Scoring) Describe() string {
	return "scoring(" + s.natural.Describe() + ")"
}
