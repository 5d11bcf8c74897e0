package index

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/model"
)

func key(tok int64) model.RowKey {
	return model.RowKey{Token: model.Token(tok), Partition: []byte{byte(tok)}}
}

func textDoc(field, text string) *Document {
	d := NewDocument()
	d.AddText(field, lexical.Standard{}.Analyze(text))
	return d
}

func tokens(ms []Match) []model.Token {
	out := make([]model.Token, len(ms))
	for i, m := range ms {
		out[i] = m.Key.Token
	}
	return out
}

func search(t *testing.T, ix *Index, q Query) []Match {
	t.Helper()
	ms, err := ix.Search(context.Background(), q, false)
	require.NoError(t, err)
	return ms
}

func TestUpsertReplacesDocument(t *testing.T) {
	ix := New()

	d1 := NewDocument()
	d1.AddTerm("name", "alice")
	ix.Upsert(key(1), d1)

	d2 := NewDocument()
	d2.AddTerm("name", "bob")
	ix.Upsert(key(1), d2)

	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, search(t, ix, TermQuery{Field: "name", Term: "alice"}))
	assert.Len(t, search(t, ix, TermQuery{Field: "name", Term: "bob"}), 1)
	assert.Equal(t, 1, ix.Terms("name"))

	assert.True(t, ix.Delete(key(1)))
	assert.False(t, ix.Delete(key(1)))
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 0, ix.Terms("name"))
}

func TestMultiTermQueries(t *testing.T) {
	ix := New()
	for i, name := range []string{"alice", "alicia", "bob", "bobby", "carol"} {
		d := NewDocument()
		d.AddTerm("name", name)
		ix.Upsert(key(int64(i)), d)
	}

	re, err := NewRegexpQuery("name", "bob+y?")
	require.NoError(t, err)

	tests := []struct {
		name string
		q    Query
		want []model.Token
	}{
		{"prefix", PrefixQuery{Field: "name", Prefix: "ali"}, []model.Token{0, 1}},
		{"wildcard", NewWildcardQuery("name", "b?b*"), []model.Token{2, 3}},
		{"regexp", re, []model.Token{2, 3}},
		{"fuzzy", FuzzyQuery{Field: "name", Term: "carl", MaxEdits: 1}, []model.Token{4}},
		{"fuzzy prefix", FuzzyQuery{Field: "name", Term: "alica", MaxEdits: 1, PrefixLength: 3}, []model.Token{0, 1}},
		{"term range", TermRangeQuery{Field: "name", Lower: ptr("b"), Upper: ptr("bobby"), IncludeLower: true}, []model.Token{2}},
		{"missing field", TermQuery{Field: "nope", Term: "x"}, []model.Token{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, tokens(search(t, ix, tt.q)))
		})
	}
}

func ptr(s string) *string { return &s }

func TestNumericRange(t *testing.T) {
	ix := New()
	for i, v := range []float64{-2.5, 0, 1.5, 10} {
		d := NewDocument()
		d.AddNumeric("price", EncodeFloat64(v))
		ix.Upsert(key(int64(i)), d)
	}

	got := search(t, ix, NumericRangeQuery{Field: "price", Min: EncodeFloat64(-3), Max: EncodeFloat64(1.5)})
	assert.ElementsMatch(t, []model.Token{0, 1, 2}, tokens(got))

	got = search(t, ix, NumericRangeQuery{Field: "price", Min: EncodeFloat64(5), Max: EncodeFloat64(1)})
	assert.Empty(t, got)
}

func TestNumericEncodingOrder(t *testing.T) {
	ints := []int64{math.MinInt64, -10, -1, 0, 1, 42, math.MaxInt64}
	for i := 1; i < len(ints); i++ {
		assert.Less(t, EncodeInt64(ints[i-1]), EncodeInt64(ints[i]))
		assert.Equal(t, ints[i], DecodeInt64(EncodeInt64(ints[i])))
	}

	floats := []float64{math.Inf(-1), -1e9, -0.5, 0, 0.25, 3, math.Inf(1)}
	for i := 1; i < len(floats); i++ {
		assert.Less(t, EncodeFloat64(floats[i-1]), EncodeFloat64(floats[i]))
		assert.Equal(t, floats[i], DecodeFloat64(EncodeFloat64(floats[i])))
	}
}

func TestPhraseAndScoring(t *testing.T) {
	ix := New()
	ix.Upsert(key(1), textDoc("body", "the quick brown fox"))
	ix.Upsert(key(2), textDoc("body", "the brown quick fox"))
	ix.Upsert(key(3), textDoc("body", "quick quick quick"))

	assert.Equal(t, []model.Token{1}, tokens(search(t, ix, PhraseQuery{Field: "body", Terms: []string{"quick", "brown"}})))
	assert.ElementsMatch(t, []model.Token{1, 2},
		tokens(search(t, ix, PhraseQuery{Field: "body", Terms: []string{"quick", "brown"}, Slop: 2})))

	ms, err := ix.Search(context.Background(), TermQuery{Field: "body", Term: "quick"}, true)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	scores := map[model.Token]float32{}
	for _, m := range ms {
		scores[m.Key.Token] = m.Score
	}
	assert.Greater(t, scores[3], scores[1])

	boosted, err := ix.Search(context.Background(), Boost(TermQuery{Field: "body", Term: "quick"}, 2), true)
	require.NoError(t, err)
	for _, m := range boosted {
		assert.InDelta(t, 2*scores[m.Key.Token], m.Score, 1e-5)
	}
}

func TestBooleanQuery(t *testing.T) {
	ix := New()
	for i, tags := range [][]string{{"a", "b"}, {"a"}, {"b"}, {"c"}} {
		d := NewDocument()
		for _, tag := range tags {
			d.AddTerm("tag", tag)
		}
		ix.Upsert(key(int64(i)), d)
	}

	term := func(v string) Query { return TermQuery{Field: "tag", Term: v} }

	tests := []struct {
		name string
		q    BooleanQuery
		want []model.Token
	}{
		{"must", BooleanQuery{Must: []Query{term("a"), term("b")}}, []model.Token{0}},
		{"should", BooleanQuery{Should: []Query{term("a"), term("b")}}, []model.Token{0, 1, 2}},
		{"minimum should match", BooleanQuery{Should: []Query{term("a"), term("b"), term("c")}, MinimumShouldMatch: 2}, []model.Token{0}},
		{"not only", BooleanQuery{Not: []Query{term("a")}}, []model.Token{2, 3}},
		{"filter and not", BooleanQuery{Filter: []Query{term("b")}, Not: []Query{term("a")}}, []model.Token{2}},
		{"empty", BooleanQuery{}, []model.Token{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, tokens(search(t, ix, tt.q)))
		})
	}
}

func TestGeoQueries(t *testing.T) {
	ix := New()
	points := []GeoPoint{
		{Lat: 40.4168, Lon: -3.7038}, // Madrid
		{Lat: 41.3874, Lon: 2.1686},  // Barcelona
		{Lat: 48.8566, Lon: 2.3522},  // Paris
	}
	for i, p := range points {
		d := NewDocument()
		d.AddPoint("place", p)
		for l := 1; l <= 8; l++ {
			d.AddTerm(GeohashField("place"), Geohash(p, l))
		}
		ix.Upsert(key(int64(i)), d)
	}

	near := search(t, ix, GeoDistanceQuery{Field: "place", Center: points[0], MaxMeters: 600_000, Levels: 8})
	assert.ElementsMatch(t, []model.Token{0, 1}, tokens(near))

	local := search(t, ix, GeoDistanceQuery{Field: "place", Center: points[0], MaxMeters: 10_000, Levels: 8})
	assert.ElementsMatch(t, []model.Token{0}, tokens(local))

	ring := search(t, ix, GeoDistanceQuery{Field: "place", Center: points[0], MinMeters: 100_000, MaxMeters: 1_100_000, Levels: 8})
	assert.ElementsMatch(t, []model.Token{1, 2}, tokens(ring))

	box := search(t, ix, GeoBBoxQuery{Field: "place", MinLat: 40, MaxLat: 42, MinLon: -4, MaxLon: 3, Levels: 8})
	assert.ElementsMatch(t, []model.Token{0, 1}, tokens(box))

	assert.InDelta(t, 505_000, Distance(points[0], points[1]), 5_000)
	assert.Equal(t, "u4pruydqqvj", Geohash(GeoPoint{Lat: 57.64911, Lon: 10.40744}, 11))
	assert.Equal(t, Geohash(points[0], 3), Geohash(points[0], 7)[:3])
}

func TestSearchCanceled(t *testing.T) {
	ix := New()
	ix.Upsert(key(1), textDoc("body", "hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ix.Search(ctx, BooleanQuery{Should: []Query{MatchAllQuery{}}}, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchWithCollectionStats(t *testing.T) {
	texts := map[int64]string{
		1: "go go go",
		2: "go and rust",
		3: "java python go ruby",
	}
	all := New()
	for tok, text := range texts {
		all.Upsert(key(tok), textDoc("body", text))
	}

	// Three indexes holding every document twice.
	parts := make([]*Index, 3)
	for i := range parts {
		parts[i] = New()
		for _, tok := range []int64{int64(i + 1), int64((i+1)%3 + 1)} {
			parts[i].Upsert(key(tok), textDoc("body", texts[tok]))
		}
	}

	q := BooleanQuery{
		Should: []Query{TermQuery{Field: "body", Term: "go"}, TermQuery{Field: "body", Term: "rust"}},
		Filter: []Query{TermQuery{Field: "body", Term: "go"}},
	}

	total := NewStats()
	for _, ix := range parts {
		total.Add(ix.Stats(q))
	}
	total.Divide(2)
	assert.Equal(t, all.Stats(q), total)

	want, err := all.Search(context.Background(), q, true)
	require.NoError(t, err)
	scores := map[model.Token]float32{}
	for _, m := range want {
		scores[m.Key.Token] = m.Score
	}
	require.Len(t, scores, 3)

	for _, ix := range parts {
		local, err := ix.Search(context.Background(), q, true)
		require.NoError(t, err)
		global, err := ix.SearchWithStats(context.Background(), q, total)
		require.NoError(t, err)
		require.Len(t, global, 2)
		for i, m := range global {
			assert.Equal(t, scores[m.Key.Token], m.Score, "token %d", m.Key.Token)
			assert.Equal(t, local[i].Key, m.Key)
		}
	}
}

func TestStatsSkipsUnscoredClauses(t *testing.T) {
	ix := New()
	ix.Upsert(key(1), textDoc("body", "go rust"))

	st := ix.Stats(BooleanQuery{
		Must:   []Query{Boost(PhraseQuery{Field: "body", Terms: []string{"go", "rust"}}, 2)},
		Not:    []Query{TermQuery{Field: "body", Term: "java"}},
		Filter: []Query{TermQuery{Field: "tags", Term: "x"}},
	})
	assert.Equal(t, map[string]int{"go": 1, "rust": 1}, st.DocFreq["body"])
	assert.Equal(t, 1, st.Fields["body"].DocCount)
	assert.NotContains(t, st.Fields, "tags")

	assert.Empty(t, ix.Stats(MatchAllQuery{}).Fields)
}
