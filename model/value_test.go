package model

import (
	"errors"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int less", Int(1), Int(2), -1},
		{"int equal", Int(7), Int(7), 0},
		{"int vs float", Int(2), Float(1.5), 1},
		{"float equal int", Float(3), Int(3), 0},
		{"strings", String("apple"), String("banana"), -1},
		{"bool", Bool(false), Bool(true), -1},
		{"bytes", Bytes([]byte{1}), Bytes([]byte{1, 0}), -1},
		{"null last", Null(), Int(-100), 1},
		{"value before null", String("z"), Null(), -1},
		{"null equal", Null(), Value{}, 0},
		{"time", Time(time.Unix(1, 0)), Time(time.Unix(2, 0)), -1},
		{"list prefix", List(Int(1)), List(Int(1), Int(0)), -1},
		{"kind order", String("a"), Bool(false), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(float64(2.5))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, v.Kind)

	v, err = FromAny([]any{"a", int64(1)})
	require.NoError(t, err)
	list, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, list, 2)
	s, _ := list[0].AsString()
	assert.Equal(t, "a", s)

	v, err = FromAny(gojson.Number("42"))
	require.NoError(t, err)
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestValueJSON(t *testing.T) {
	in := List(String("x"), Int(3), Bytes([]byte("ab")), Null())

	data, err := gojson.Marshal(in)
	require.NoError(t, err)

	var out Value
	require.NoError(t, gojson.Unmarshal(data, &out))
	assert.True(t, in.Equal(out))
	assert.Equal(t, `["x",3,0x6162,null]`, out.String())
}

func TestValueJSONWireForm(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Value
	}{
		{"null", `{"k":1}`, Null()},
		{"int", `{"k":2,"i":5}`, Int(5)},
		{"float", `{"k":3,"f":0.25}`, Float(0.25)},
		{"string", `{"k":4,"s":"madrid"}`, String("madrid")},
		{"bool", `{"k":5,"b":true}`, Bool(true)},
		{"bytes", `{"k":6,"r":"YWI="}`, Bytes([]byte("ab"))},
		{"time", `{"k":7,"i":1000}`, Time(time.Unix(0, 1000))},
		{"list", `{"k":8,"a":[{"k":2,"i":1},{"k":4,"s":"x"}]}`, List(Int(1), String("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Value
			require.NoError(t, gojson.Unmarshal([]byte(tt.data), &got))
			assert.True(t, tt.want.Equal(got), "got %s", got)

			data, err := gojson.Marshal(tt.want)
			require.NoError(t, err)
			var again Value
			require.NoError(t, gojson.Unmarshal(data, &again))
			assert.True(t, tt.want.Equal(again))
		})
	}

	// Decoding overwrites a previously held value.
	v := String("old")
	require.NoError(t, gojson.Unmarshal([]byte(`{"k":2,"i":9}`), &v))
	assert.True(t, Int(9).Equal(v))
}

func TestRowKeyID(t *testing.T) {
	a := RowKey{Token: 10, Partition: []byte("p1"), Clustering: ClusteringKey{Int(1)}}
	b := RowKey{Token: 10, Partition: []byte("p1"), Clustering: ClusteringKey{Int(1)}}
	c := RowKey{Token: 10, Partition: []byte("p1"), Clustering: ClusteringKey{Int(2)}}
	d := RowKey{Token: 10, Partition: []byte("p2")}

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
	assert.NotEqual(t, a.ID(), d.ID())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var shardErr *ShardExecutionError
	err := error(NewShardExecutionError(2, cause))
	require.ErrorAs(t, err, &shardErr)
	assert.Equal(t, 2, shardErr.Shard)
	assert.ErrorIs(t, err, cause)

	var coercion *ValueCoercionError
	err = NewValueCoercionError("age", "abc", "integer", cause)
	require.ErrorAs(t, err, &coercion)
	assert.Contains(t, err.Error(), "abc")

	err = NewMappingConfigurationError("location", "latitude", "is required")
	assert.Equal(t, `mapping "location": invalid latitude: is required`, err.Error())
}
