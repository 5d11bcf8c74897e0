package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/condition"
	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/ordering"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
)

var layout = partition.Layout{PartitionKey: []string{"id"}}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Field("name", mapping.String().Sorted(true)).
		Field("bio", mapping.Text()).
		Field("age", mapping.Integer().Sorted(true)).
		Field("email", mapping.String()).
		Field("place", mapping.GeoPoint("lat", "lon")).
		Build("users")
	require.NoError(t, err)
	return s
}

func TestCompileComparator(t *testing.T) {
	s := testSchema(t)

	p, err := Compile(NewRequest(), s, layout)
	require.NoError(t, err)
	assert.False(t, p.Scored)
	assert.IsType(t, ordering.Natural{}, p.Comparator)
	assert.Equal(t, index.MatchAllQuery{}, p.Query)

	p, err = Compile(NewRequest().WithQuery(condition.Match("bio", "go")), s, layout)
	require.NoError(t, err)
	assert.True(t, p.Scored)
	assert.IsType(t, ordering.Scoring{}, p.Comparator)

	p, err = Compile(NewRequest().WithFilter(condition.Match("name", "x")).SortBy(Field("age").Desc()), s, layout)
	require.NoError(t, err)
	assert.False(t, p.Scored)
	sorted, ok := p.Comparator.(ordering.Sorted)
	require.True(t, ok)
	assert.Equal(t, []ordering.SortKey{{Field: "age", Reverse: true}}, sorted.Keys())
}

func TestCompileErrors(t *testing.T) {
	s := testSchema(t)

	_, err := Compile(NewRequest().WithQuery(condition.Match("nickname", "x")), s, layout)
	var ufe *model.UnknownFieldError
	assert.ErrorAs(t, err, &ufe)

	_, err = Compile(NewRequest().WithFilter(condition.Bool()), s, layout)
	var ice *model.InvalidConditionError
	assert.ErrorAs(t, err, &ice)

	tests := []struct {
		name    string
		sort    SortFieldBuilder
		unknown bool
	}{
		{"unknown field", Field("nickname"), true},
		{"not sorted", Field("email"), false},
		{"text", Field("bio"), false},
		{"geo without origin", Field("place"), false},
		{"distance on non geo", GeoDistance("age", 0, 0), false},
		{"bad origin", GeoDistance("place", 100, 0), false},
		{"unknown type", SortFieldBuilder{Type: "random", Field: "age"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(NewRequest().SortBy(tt.sort), s, layout)
			var use *model.UnsupportedSortError
			require.ErrorAs(t, err, &use)
			var ufe *model.UnknownFieldError
			assert.Equal(t, tt.unknown, errors.As(err, &ufe))
		})
	}
}

func TestFingerprint(t *testing.T) {
	s := testSchema(t)
	req := NewRequest().WithQuery(condition.Match("name", "alice")).SortBy(Field("age"))

	p1, err := Compile(req, s, layout)
	require.NoError(t, err)
	p2, err := Compile(req, s, layout)
	require.NoError(t, err)
	assert.Equal(t, p1.Fingerprint, p2.Fingerprint)

	p3, err := Compile(NewRequest().WithQuery(condition.Match("name", "alice")).SortBy(Field("age").Desc()), s, layout)
	require.NoError(t, err)
	assert.NotEqual(t, p1.Fingerprint, p3.Fingerprint)

	assert.Contains(t, p1.Explain(), `name:"alice"`)
	assert.Contains(t, p1.Explain(), "order: sorted(age asc; natural)")
}

func TestPlanHit(t *testing.T) {
	s := testSchema(t)
	ix := index.New()
	rows := []*model.Record{
		model.NewRecord(model.RowKey{Token: 1, Partition: []byte("a")}, map[string]model.Value{
			"age": model.Int(30), "lat": model.Float(40.4168), "lon": model.Float(-3.7038),
		}),
		model.NewRecord(model.RowKey{Token: 2, Partition: []byte("b")}, map[string]model.Value{
			"lat": model.Null(), "lon": model.Null(),
		}),
	}
	for _, r := range rows {
		doc, err := s.Encode(r)
		require.NoError(t, err)
		ix.Upsert(r.Key(), doc)
	}

	p, err := Compile(NewRequest().SortBy(Field("age"), GeoDistance("place", 40.4168, -3.7038)), s, layout)
	require.NoError(t, err)

	ms, err := ix.Search(context.Background(), p.Query, p.Scored)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	byKey := map[string]model.Hit{}
	for _, m := range ms {
		h := p.Hit(ix, m.Doc, m.Key, m.Score)
		byKey[string(h.Key.Partition)] = h
	}
	a := byKey["a"]
	require.Len(t, a.Sort, 2)
	assert.Equal(t, model.Int(30), a.Sort[0])
	d, ok := a.Sort[1].AsFloat64()
	require.True(t, ok)
	assert.InDelta(t, 0, d, 1e-6)

	b := byKey["b"]
	assert.True(t, b.Sort[0].IsNull())
	assert.True(t, b.Sort[1].IsNull())
	assert.Negative(t, p.Comparator.Compare(a, b))
}

func TestRequestJSON(t *testing.T) {
	doc := `{
	  "query": {"type": "match", "field": "bio", "value": "go"},
	  "filter": {"type": "range", "field": "age", "lower": 18, "include_lower": true},
	  "sort": [{"field": "age", "reverse": true}, {"type": "geo_distance", "field": "place", "latitude": 1, "longitude": 2}]
	}`
	req, err := ParseRequest([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, req.Query)
	require.NotNil(t, req.Filter)
	assert.Equal(t, condition.TypeRange, req.Filter.Type())
	require.Len(t, req.Sort, 2)
	assert.True(t, req.Sort[0].Reverse)
	assert.Equal(t, SortGeoDistance, req.Sort[1].Type)

	p, err := Compile(req, testSchema(t), layout)
	require.NoError(t, err)
	assert.True(t, p.Scored)

	data, err := req.MarshalJSON()
	require.NoError(t, err)
	again, err := ParseRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req, again)

	empty, err := ParseRequest([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, empty.Query)
}
