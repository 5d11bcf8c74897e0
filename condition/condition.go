// Package condition implements the declarative search predicates.
//
// Conditions are compiled in two phases. A Builder is a serializable
// description validated by Build without any schema. The resulting Condition
// is translated into an index.Query by Query, which resolves every field
// against a schema and delegates value coercion to the field's mapper.
package condition

import (
	"bytes"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
)

// Condition type names.
const (
	TypeAll         = "all"
	TypeNone        = "none"
	TypeBoolean     = "boolean"
	TypeMatch       = "match"
	TypeContains    = "contains"
	TypeRange       = "range"
	TypePrefix      = "prefix"
	TypeWildcard    = "wildcard"
	TypeRegexp      = "regexp"
	TypeFuzzy       = "fuzzy"
	TypePhrase      = "phrase"
	TypeGeoDistance = "geo_distance"
	TypeGeoBBox     = "geo_bbox"
)

// Resolver resolves field names to mappers. *schema.Schema implements it.
type Resolver interface {
	Mapper(field string) (mapping.Mapper, error)
}

// Builder is the declarative description of a condition.
type Builder interface {
	Type() string
	// Build validates the schema-independent parameters. It returns a
	// *model.InvalidConditionError on malformed input.
	Build() (Condition, error)
}

// Condition is a validated predicate.
type Condition interface {
	// Query translates the condition. It fails with *model.UnknownFieldError,
	// *model.UnsupportedOperationError or *model.ValueCoercionError.
	Query(r Resolver) (index.Query, error)
	// Fields returns the referenced field names.
	Fields() []string
	fmt.Stringer
}

var factories = map[string]func() Builder{
	TypeAll:         func() Builder { return &AllBuilder{} },
	TypeNone:        func() Builder { return &NoneBuilder{} },
	TypeBoolean:     func() Builder { return &BooleanBuilder{} },
	TypeMatch:       func() Builder { return &MatchBuilder{} },
	TypeContains:    func() Builder { return &ContainsBuilder{} },
	TypeRange:       func() Builder { return &RangeBuilder{} },
	TypePrefix:      func() Builder { return &PrefixBuilder{} },
	TypeWildcard:    func() Builder { return &WildcardBuilder{} },
	TypeRegexp:      func() Builder { return &RegexpBuilder{} },
	TypeFuzzy:       func() Builder { return &FuzzyBuilder{} },
	TypePhrase:      func() Builder { return &PhraseBuilder{} },
	TypeGeoDistance: func() Builder { return &GeoDistanceBuilder{} },
	TypeGeoBBox:     func() Builder { return &GeoBBoxBuilder{} },
}

// Types returns the supported condition type names, sorted.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode decodes a JSON condition selected by its "type" member. Numbers are
// kept as json.Number so that mappers see the literal unchanged.
func Decode(data []byte) (Builder, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := gojson.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	factory, ok := factories[head.Type]
	if !ok {
		return nil, fmt.Errorf("condition: unknown type %q", head.Type)
	}
	b := factory()
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(b); err != nil {
		return nil, fmt.Errorf("condition: decode %s: %w", head.Type, err)
	}
	return b, nil
}

// Marshal encodes a condition including its "type" member.
func Marshal(b Builder) ([]byte, error) {
	raw, err := gojson.Marshal(b)
	if err != nil {
		return nil, err
	}
	m := map[string]gojson.RawMessage{}
	if err := gojson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	t, err := gojson.Marshal(b.Type())
	if err != nil {
		return nil, err
	}
	m["type"] = t
	return gojson.Marshal(m)
}

// Builders is a list of conditions with polymorphic JSON encoding.
type Builders []Builder

// MarshalJSON implements json.Marshaler.
func (bs Builders) MarshalJSON() ([]byte, error) {
	raw := make([]gojson.RawMessage, 0, len(bs))
	for _, b := range bs {
		data, err := Marshal(b)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return gojson.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (bs *Builders) UnmarshalJSON(data []byte) error {
	var raw []gojson.RawMessage
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Builders, 0, len(raw))
	for _, msg := range raw {
		b, err := Decode(msg)
		if err != nil {
			return err
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// Compile builds b and translates it against r.
func Compile(b Builder, r Resolver) (index.Query, error) {
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.Query(r)
}

func invalid(typ, format string, args ...any) error {
	return &model.InvalidConditionError{Condition: typ, Reason: fmt.Sprintf(format, args...)}
}

func boostOf(typ string, p *float32) (float32, error) {
	if p == nil {
		return 1, nil
	}
	if *p < 0 {
		return 0, invalid(typ, "boost must not be negative, got %g", *p)
	}
	return *p, nil
}

func requireField(typ, field string) error {
	if field == "" {
		return invalid(typ, "field is required")
	}
	return nil
}

// resolve looks up field and checks that its mapper can serve the operation.
func resolve(r Resolver, field string, c mapping.Capability, op string) (mapping.Mapper, error) {
	m, err := r.Mapper(field)
	if err != nil {
		return nil, err
	}
	if m.Capabilities()&c != c {
		return nil, &model.UnsupportedOperationError{
			Field: field, Mapper: m.Type(), Operation: op,
			Reason: fmt.Sprintf("mapper supports %s", m.Capabilities()),
		}
	}
	if !m.Supports(c) {
		return nil, &model.UnsupportedOperationError{
			Field: field, Mapper: m.Type(), Operation: op,
			Reason: "field is not indexed",
		}
	}
	return m, nil
}

func unsupported(m mapping.Mapper, op string) error {
	return &model.UnsupportedOperationError{
		Field: m.Name(), Mapper: m.Type(), Operation: op,
		Reason: "mapper does not implement the operation",
	}
}
