package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/model"
)

func row(cols map[string]model.Value) model.Row {
	return model.NewRecord(model.RowKey{Token: 1, Partition: []byte("k")}, cols)
}

func indexed(t *testing.T, m Mapper, cols map[string]model.Value) *index.Index {
	t.Helper()
	doc := index.NewDocument()
	require.NoError(t, m.Encode(row(cols), doc))
	ix := index.New()
	ix.Upsert(model.RowKey{Token: 1, Partition: []byte("k")}, doc)
	return ix
}

func hits(t *testing.T, ix *index.Index, q index.Query) int {
	t.Helper()
	ms, err := ix.Search(context.Background(), q, false)
	require.NoError(t, err)
	return len(ms)
}

func TestBuildDeterministic(t *testing.T) {
	builders := []Builder{
		String().Sorted(true).CaseSensitive(false),
		Text().Analyzer("stop"),
		Integer().Boost(2),
		Double(),
		BigInt().Digits(10),
		Boolean(),
		Date().Pattern("2006-01-02"),
		UUID(),
		Inet(),
		Blob(),
		GeoPoint("lat", "lon").Levels(6),
	}
	for _, b := range builders {
		t.Run(b.Type(), func(t *testing.T) {
			m1, err := b.Build("field")
			require.NoError(t, err)
			m2, err := b.Build("field")
			require.NoError(t, err)
			assert.Equal(t, m1, m2)
			assert.Equal(t, "field", m1.Name())
			assert.Equal(t, b.Type(), m1.Type())
		})
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name  string
		b     Builder
		param string
	}{
		{"empty name", String(), "name"},
		{"missing latitude", GeoPoint("", "lon"), "latitude"},
		{"missing longitude", GeoPoint("lat", ""), "longitude"},
		{"max levels", GeoPoint("lat", "lon").Levels(0), "max_levels"},
		{"digits", BigInt().Digits(-1), "digits"},
		{"boost", Float().Boost(-1), "boost"},
		{"analyzer", Text().Analyzer("klingon"), "analyzer"},
		{"pattern", Date().Pattern("not a layout"), "pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := "field"
			if tt.param == "name" {
				name = ""
			}
			_, err := tt.b.Build(name)
			var mce *model.MappingConfigurationError
			require.ErrorAs(t, err, &mce)
			assert.Equal(t, tt.param, mce.Param)
		})
	}
}

func TestSupports(t *testing.T) {
	m, err := String().Indexed(false).Build("name")
	require.NoError(t, err)
	assert.False(t, m.Supports(Match))
	assert.False(t, m.Supports(Sort))
	assert.NotZero(t, m.Capabilities()&Match)

	m, err = String().Sorted(true).Build("name")
	require.NoError(t, err)
	assert.True(t, m.Supports(Match))
	assert.True(t, m.Supports(Sort))
	assert.False(t, m.Supports(Geo))

	m, err = Text().Build("body")
	require.NoError(t, err)
	assert.True(t, m.Supports(Phrase))
	assert.False(t, m.Supports(Sort))
	assert.Equal(t, "match|contains|prefix|wildcard|regexp|fuzzy|phrase", m.Capabilities().String())
}

func TestStringMapperCaseFolding(t *testing.T) {
	m, err := String().CaseSensitive(false).Sorted(true).Build("name")
	require.NoError(t, err)

	ix := indexed(t, m, map[string]model.Value{"name": model.String("Alice")})
	q, err := m.(Matcher).MatchQuery("ALICE")
	require.NoError(t, err)
	assert.Equal(t, 1, hits(t, ix, q))

	v, ok := ix.DocValue(0, "name")
	require.True(t, ok)
	assert.Equal(t, "s:alice", v.Key())
}

func TestNumberMapper(t *testing.T) {
	m, err := Integer().Column("age_col").Build("age")
	require.NoError(t, err)
	assert.Equal(t, []string{"age_col"}, m.Columns())

	ix := indexed(t, m, map[string]model.Value{"age_col": model.Int(30)})
	r := m.(Ranger)

	tests := []struct {
		name         string
		lower, upper any
		incL, incU   bool
		want         int
	}{
		{"inclusive", 30, 30, true, true, 1},
		{"exclusive lower", 30, nil, false, false, 0},
		{"exclusive upper", nil, 31, false, false, 1},
		{"string literal", "29", "31.5", true, true, 1},
		{"open", nil, nil, false, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.RangeQuery(tt.lower, tt.upper, tt.incL, tt.incU)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hits(t, ix, q))
		})
	}

	_, err = m.(Matcher).MatchQuery("thirty")
	var vce *model.ValueCoercionError
	require.ErrorAs(t, err, &vce)
	assert.Equal(t, "thirty", vce.Value)

	_, err = m.(Matcher).MatchQuery(int64(1) << 40)
	assert.ErrorAs(t, err, &vce)
}

func TestBigIntOrdering(t *testing.T) {
	m, err := BigInt().Digits(5).Build("n")
	require.NoError(t, err)
	tm := m.(Termer)

	values := []any{-99999, -10, "-9", 0, 7, "12345", 99999}
	prev := ""
	for i, v := range values {
		term, err := tm.Term(v)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, prev, term)
		}
		prev = term
	}

	_, err = tm.Term(123456)
	var vce *model.ValueCoercionError
	assert.ErrorAs(t, err, &vce)
}

func TestDateMapper(t *testing.T) {
	m, err := Date().Pattern("2006-01-02").Sorted(true).Build("born")
	require.NoError(t, err)
	dm := m.(*DateMapper)

	ts, err := dm.Time("2020-05-17")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC), ts)

	ix := indexed(t, m, map[string]model.Value{"born": model.Time(ts)})
	q, err := dm.RangeQuery("2020-01-01", "2021-01-01", true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, hits(t, ix, q))

	q, err = dm.MatchQuery(ts.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, 1, hits(t, ix, q))

	_, err = dm.Time("17/05/2020")
	assert.Error(t, err)
}

func TestScalarMappers(t *testing.T) {
	tests := []struct {
		b     Builder
		value model.Value
		match any
	}{
		{Boolean(), model.Bool(true), "TRUE"},
		{UUID(), model.String("550E8400-E29B-41D4-A716-446655440000"), "550e8400-e29b-41d4-a716-446655440000"},
		{Inet(), model.String("::ffff:192.168.0.1"), "192.168.0.1"},
		{Blob(), model.Bytes([]byte{0xca, 0xfe}), "0xCAFE"},
	}
	for _, tt := range tests {
		t.Run(tt.b.Type(), func(t *testing.T) {
			m, err := tt.b.Build("f")
			require.NoError(t, err)
			ix := indexed(t, m, map[string]model.Value{"f": tt.value})
			q, err := m.(Matcher).MatchQuery(tt.match)
			require.NoError(t, err)
			assert.Equal(t, 1, hits(t, ix, q))
		})
	}
}

func TestGeoPointLazyColumns(t *testing.T) {
	m, err := GeoPoint("lat", "lon").Build("place")
	require.NoError(t, err, "column existence is not checked at build time")

	err = m.Encode(row(map[string]model.Value{"lat": model.Float(1)}), index.NewDocument())
	var mce *model.MappingConfigurationError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "longitude", mce.Param)

	err = m.Encode(row(map[string]model.Value{"lat": model.Float(91), "lon": model.Float(0)}), index.NewDocument())
	var vce *model.ValueCoercionError
	assert.ErrorAs(t, err, &vce)

	ix := indexed(t, m, map[string]model.Value{"lat": model.Float(40.4), "lon": model.Float(-3.7)})
	q := m.(Spatial).DistanceQuery(index.GeoPoint{Lat: 40.41, Lon: -3.71}, 0, 5000)
	assert.Equal(t, 1, hits(t, ix, q))
	assert.Equal(t, DefaultGeoMaxLevels, ix.Terms(index.GeohashField("place")))
}

func TestDecodeMarshal(t *testing.T) {
	b, err := Decode([]byte(`{"type":"string","column":"c","indexed":false,"case_sensitive":false}`))
	require.NoError(t, err)
	sb, ok := b.(*StringBuilder)
	require.True(t, ok)
	assert.Equal(t, String().Column("c").Indexed(false).CaseSensitive(false), *sb)

	data, err := Marshal(Integer().Sorted(true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"integer","sorted":true}`, string(data))

	b, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, b.Type())

	_, err = Decode([]byte(`{"type":"vector"}`))
	assert.Error(t, err)
	assert.Contains(t, Types(), TypeGeoPoint)
}
