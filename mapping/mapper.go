// Package mapping compiles declarative column mappings into mappers.
//
// A Builder is the declarative, serializable description of how one field is
// indexed. Build validates it and produces a Mapper, which knows how to
// encode row columns into index documents and how to translate literal
// values into index queries for that field. Building never touches storage.
package mapping

import (
	"strings"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/model"
)

// Capability is a query or sort operation a mapper can serve.
type Capability uint16

const (
	// Match is exact value matching.
	Match Capability = 1 << iota
	// Contains is matching any of several values.
	Contains
	// Range is bounded range matching.
	Range
	// Prefix is term prefix matching.
	Prefix
	// Wildcard is '*' and '?' pattern matching.
	Wildcard
	// Regexp is regular expression matching.
	Regexp
	// Fuzzy is edit-distance matching.
	Fuzzy
	// Phrase is ordered term sequence matching.
	Phrase
	// Geo is spatial matching.
	Geo
	// Sort is ordering results by the field.
	Sort
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{Match, "match"}, {Contains, "contains"}, {Range, "range"}, {Prefix, "prefix"},
	{Wildcard, "wildcard"}, {Regexp, "regexp"}, {Fuzzy, "fuzzy"}, {Phrase, "phrase"},
	{Geo, "geo"}, {Sort, "sort"},
}

// String implements fmt.Stringer.
func (c Capability) String() string {
	var parts []string
	for _, cn := range capabilityNames {
		if c&cn.c != 0 {
			parts = append(parts, cn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Mapper maps one index field onto one or more row columns.
// Mappers are immutable and safe for concurrent use.
type Mapper interface {
	// Name is the index field name.
	Name() string
	// Type is the mapper type name, as used in declarations.
	Type() string
	// Columns returns the row columns the mapper reads.
	Columns() []string
	// Indexed reports whether the field is searchable.
	Indexed() bool
	// Sorted reports whether the field can be used for sorting.
	Sorted() bool
	// Capabilities returns the operations the mapper type declares,
	// regardless of the indexed and sorted flags.
	Capabilities() Capability
	// Supports reports whether c can be served, honouring the indexed and
	// sorted flags.
	Supports(c Capability) bool
	// Encode adds the row's values for this field to doc.
	Encode(row model.Row, doc *index.Document) error
}

// Matcher builds exact-match queries.
type Matcher interface {
	MatchQuery(value any) (index.Query, error)
}

// Ranger builds range queries. A nil bound is open.
type Ranger interface {
	RangeQuery(lower, upper any, includeLower, includeUpper bool) (index.Query, error)
}

// Termer is implemented by mappers that index terms which pattern queries
// (prefix, wildcard, regexp, fuzzy) can scan.
type Termer interface {
	// Term coerces a literal into its indexed form.
	Term(value any) (string, error)
	// FoldsCase reports whether indexed terms are lowercased.
	FoldsCase() bool
}

// Phraser builds phrase queries over analysed text.
type Phraser interface {
	PhraseQuery(value string, slop int) (index.Query, error)
}

// Spatial builds geographic queries.
type Spatial interface {
	DistanceQuery(center index.GeoPoint, minMeters, maxMeters float64) index.Query
	BBoxQuery(minLat, maxLat, minLon, maxLon float64) index.Query
}

// Analyzed is implemented by mappers of full-text fields.
type Analyzed interface {
	Analyzer() lexical.Analyzer
}

// base carries the attributes every single-column mapper shares.
type base struct {
	name    string
	typ     string
	column  string
	indexed bool
	sorted  bool
	caps    Capability
}

func (b *base) Name() string             { return b.name }
func (b *base) Type() string             { return b.typ }
func (b *base) Columns() []string        { return []string{b.column} }
func (b *base) Indexed() bool            { return b.indexed }
func (b *base) Sorted() bool             { return b.sorted }
func (b *base) Capabilities() Capability { return b.caps }

func (b *base) Supports(c Capability) bool {
	if c == 0 || b.caps&c != c {
		return false
	}
	if c&Sort != 0 && !b.sorted {
		return false
	}
	if c&^Sort != 0 && !b.indexed {
		return false
	}
	return true
}

// values returns the non-null values of the mapper's column.
func (b *base) values(row model.Row) []model.Value {
	v, ok := row.Column(b.column)
	if !ok {
		return nil
	}
	return v.Elements()
}

func (b *base) coercionError(value any, cause error) error {
	return model.NewValueCoercionError(b.name, value, b.typ, cause)
}

func newBase(name, typ, column string, indexed, sorted *bool, caps Capability) (base, error) {
	if strings.TrimSpace(name) == "" {
		return base{}, model.NewMappingConfigurationError(name, "name", "must not be empty")
	}
	if column == "" {
		column = name
	}
	return base{
		name:    name,
		typ:     typ,
		column:  column,
		indexed: boolOr(indexed, DefaultIndexed),
		sorted:  boolOr(sorted, DefaultSorted),
		caps:    caps,
	}, nil
}

const (
	// DefaultIndexed is the default of the indexed option.
	DefaultIndexed = true
	// DefaultSorted is the default of the sorted option.
	DefaultSorted = false
	// DefaultCaseSensitive is the default of the case_sensitive option.
	DefaultCaseSensitive = true
)

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
