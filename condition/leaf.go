package condition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/mapping"
)

// Fuzzy defaults.
const (
	DefaultMaxEdits      = 2
	DefaultPrefixLength  = 0
	DefaultMaxExpansions = 50
)

// MatchBuilder matches rows whose field equals a value.
type MatchBuilder struct {
	Field      string   `json:"field"`
	Value      any      `json:"value"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Match returns a MatchBuilder.
func Match(field string, value any) MatchBuilder { return MatchBuilder{Field: field, Value: value} }

// Boost sets the score multiplier.
func (b MatchBuilder) Boost(v float32) MatchBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (MatchBuilder) Type() string { return TypeMatch }

// Build implements Builder.
func (b MatchBuilder) Build() (Condition, error) {
	if err := requireField(TypeMatch, b.Field); err != nil {
		return nil, err
	}
	if b.Value == nil {
		return nil, invalid(TypeMatch, "value is required")
	}
	boost, err := boostOf(TypeMatch, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &match{field: b.Field, value: b.Value, boost: boost}, nil
}

type match struct {
	field string
	value any
	boost float32
}

func (c *match) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.field, mapping.Match, TypeMatch)
	if err != nil {
		return nil, err
	}
	mm, ok := m.(mapping.Matcher)
	if !ok {
		return nil, unsupported(m, TypeMatch)
	}
	q, err := mm.MatchQuery(c.value)
	if err != nil {
		return nil, err
	}
	return index.Boost(q, c.boost), nil
}

func (c *match) Fields() []string { return []string{c.field} }
func (c *match) String() string   { return fmt.Sprintf("%s=%v", c.field, c.value) }

// ContainsBuilder matches rows whose field equals any of the values.
type ContainsBuilder struct {
	Field      string   `json:"field"`
	Values     []any    `json:"values"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Contains returns a ContainsBuilder.
func Contains(field string, values ...any) ContainsBuilder {
	return ContainsBuilder{Field: field, Values: values}
}

// Boost sets the score multiplier.
func (b ContainsBuilder) Boost(v float32) ContainsBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (ContainsBuilder) Type() string { return TypeContains }

// Build implements Builder.
func (b ContainsBuilder) Build() (Condition, error) {
	if err := requireField(TypeContains, b.Field); err != nil {
		return nil, err
	}
	if len(b.Values) == 0 {
		return nil, invalid(TypeContains, "at least one value is required")
	}
	for i, v := range b.Values {
		if v == nil {
			return nil, invalid(TypeContains, "value %d is null", i)
		}
	}
	boost, err := boostOf(TypeContains, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &contains{field: b.Field, values: append([]any(nil), b.Values...), boost: boost}, nil
}

type contains struct {
	field  string
	values []any
	boost  float32
}

func (c *contains) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.field, mapping.Contains, TypeContains)
	if err != nil {
		return nil, err
	}
	mm, ok := m.(mapping.Matcher)
	if !ok {
		return nil, unsupported(m, TypeContains)
	}
	should := make([]index.Query, 0, len(c.values))
	for _, v := range c.values {
		q, err := mm.MatchQuery(v)
		if err != nil {
			return nil, err
		}
		should = append(should, q)
	}
	if len(should) == 1 {
		return index.Boost(should[0], c.boost), nil
	}
	return index.Boost(index.BooleanQuery{Should: should}, c.boost), nil
}

func (c *contains) Fields() []string { return []string{c.field} }
func (c *contains) String() string   { return fmt.Sprintf("%s in %v", c.field, c.values) }

// RangeBuilder matches rows whose field lies within bounds. A nil bound is
// open; bounds are exclusive unless included.
type RangeBuilder struct {
	Field        string   `json:"field"`
	LowerValue   any      `json:"lower,omitempty"`
	UpperValue   any      `json:"upper,omitempty"`
	IncludeLower bool     `json:"include_lower,omitempty"`
	IncludeUpper bool     `json:"include_upper,omitempty"`
	BoostValue   *float32 `json:"boost,omitempty"`
}

// Range returns an unbounded RangeBuilder.
func Range(field string) RangeBuilder { return RangeBuilder{Field: field} }

// Lower sets the lower bound.
func (b RangeBuilder) Lower(v any, inclusive bool) RangeBuilder {
	b.LowerValue, b.IncludeLower = v, inclusive
	return b
}

// Upper sets the upper bound.
func (b RangeBuilder) Upper(v any, inclusive bool) RangeBuilder {
	b.UpperValue, b.IncludeUpper = v, inclusive
	return b
}

// Boost sets the score multiplier.
func (b RangeBuilder) Boost(v float32) RangeBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (RangeBuilder) Type() string { return TypeRange }

// Build implements Builder.
func (b RangeBuilder) Build() (Condition, error) {
	if err := requireField(TypeRange, b.Field); err != nil {
		return nil, err
	}
	if b.LowerValue == nil && b.UpperValue == nil {
		return nil, invalid(TypeRange, "at least one bound is required")
	}
	boost, err := boostOf(TypeRange, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &rangeCond{RangeBuilder: b, boost: boost}, nil
}

type rangeCond struct {
	RangeBuilder
	boost float32
}

func (c *rangeCond) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.Field, mapping.Range, TypeRange)
	if err != nil {
		return nil, err
	}
	rm, ok := m.(mapping.Ranger)
	if !ok {
		return nil, unsupported(m, TypeRange)
	}
	q, err := rm.RangeQuery(c.LowerValue, c.UpperValue, c.IncludeLower, c.IncludeUpper)
	if err != nil {
		return nil, err
	}
	return index.Boost(q, c.boost), nil
}

func (c *rangeCond) Fields() []string { return []string{c.Field} }

func (c *rangeCond) String() string {
	open, closing := "{", "}"
	if c.IncludeLower {
		open = "["
	}
	if c.IncludeUpper {
		closing = "]"
	}
	lo, hi := any("*"), any("*")
	if c.LowerValue != nil {
		lo = c.LowerValue
	}
	if c.UpperValue != nil {
		hi = c.UpperValue
	}
	return fmt.Sprintf("%s:%s%v TO %v%s", c.Field, open, lo, hi, closing)
}

// pattern is the shared state of conditions scanning the term dictionary.
type pattern struct {
	field string
	value string
	boost float32
}

func (p *pattern) Fields() []string { return []string{p.field} }

// termer resolves the field and returns the literal in its indexed case.
func (p *pattern) termer(r Resolver, c mapping.Capability, op string) (mapping.Mapper, string, bool, error) {
	m, err := resolve(r, p.field, c, op)
	if err != nil {
		return nil, "", false, err
	}
	t, ok := m.(mapping.Termer)
	if !ok {
		return nil, "", false, unsupported(m, op)
	}
	if t.FoldsCase() {
		return m, strings.ToLower(p.value), true, nil
	}
	return m, p.value, false, nil
}

func buildPattern(typ, field, value string, boostValue *float32) (*pattern, error) {
	if err := requireField(typ, field); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, invalid(typ, "value is required")
	}
	boost, err := boostOf(typ, boostValue)
	if err != nil {
		return nil, err
	}
	return &pattern{field: field, value: value, boost: boost}, nil
}

// PrefixBuilder matches terms starting with a prefix.
type PrefixBuilder struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Prefix returns a PrefixBuilder.
func Prefix(field, value string) PrefixBuilder { return PrefixBuilder{Field: field, Value: value} }

// Boost sets the score multiplier.
func (b PrefixBuilder) Boost(v float32) PrefixBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (PrefixBuilder) Type() string { return TypePrefix }

// Build implements Builder.
func (b PrefixBuilder) Build() (Condition, error) {
	p, err := buildPattern(TypePrefix, b.Field, b.Value, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &prefix{p}, nil
}

type prefix struct{ *pattern }

func (c *prefix) Query(r Resolver) (index.Query, error) {
	m, v, _, err := c.termer(r, mapping.Prefix, TypePrefix)
	if err != nil {
		return nil, err
	}
	return index.Boost(index.PrefixQuery{Field: m.Name(), Prefix: v}, c.boost), nil
}

func (c *prefix) String() string { return fmt.Sprintf("%s:%s*", c.field, c.value) }

// WildcardBuilder matches terms against a pattern where '*' matches any
// sequence and '?' any single character.
type WildcardBuilder struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Wildcard returns a WildcardBuilder.
func Wildcard(field, value string) WildcardBuilder { return WildcardBuilder{Field: field, Value: value} }

// Boost sets the score multiplier.
func (b WildcardBuilder) Boost(v float32) WildcardBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (WildcardBuilder) Type() string { return TypeWildcard }

// Build implements Builder.
func (b WildcardBuilder) Build() (Condition, error) {
	p, err := buildPattern(TypeWildcard, b.Field, b.Value, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &wildcard{p}, nil
}

type wildcard struct{ *pattern }

func (c *wildcard) Query(r Resolver) (index.Query, error) {
	m, v, _, err := c.termer(r, mapping.Wildcard, TypeWildcard)
	if err != nil {
		return nil, err
	}
	return index.Boost(index.NewWildcardQuery(m.Name(), v), c.boost), nil
}

func (c *wildcard) String() string { return fmt.Sprintf("%s:%s", c.field, c.value) }

// RegexpBuilder matches terms fully matching a regular expression.
type RegexpBuilder struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Regexp returns a RegexpBuilder.
func Regexp(field, value string) RegexpBuilder { return RegexpBuilder{Field: field, Value: value} }

// Boost sets the score multiplier.
func (b RegexpBuilder) Boost(v float32) RegexpBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (RegexpBuilder) Type() string { return TypeRegexp }

// Build implements Builder.
func (b RegexpBuilder) Build() (Condition, error) {
	p, err := buildPattern(TypeRegexp, b.Field, b.Value, b.BoostValue)
	if err != nil {
		return nil, err
	}
	if _, err := regexp.Compile(b.Value); err != nil {
		return nil, invalid(TypeRegexp, "%v", err)
	}
	return &regex{p}, nil
}

type regex struct{ *pattern }

func (c *regex) Query(r Resolver) (index.Query, error) {
	m, _, folds, err := c.termer(r, mapping.Regexp, TypeRegexp)
	if err != nil {
		return nil, err
	}
	expr := c.value
	if folds {
		expr = "(?i)" + expr
	}
	q, err := index.NewRegexpQuery(m.Name(), expr)
	if err != nil {
		return nil, invalid(TypeRegexp, "%v", err)
	}
	return index.Boost(q, c.boost), nil
}

func (c *regex) String() string { return fmt.Sprintf("%s:/%s/", c.field, c.value) }

// FuzzyBuilder matches terms within an edit distance of a value.
type FuzzyBuilder struct {
	Field             string   `json:"field"`
	Value             string   `json:"value"`
	MaxEditsValue     *int     `json:"max_edits,omitempty"`
	PrefixLengthValue *int     `json:"prefix_length,omitempty"`
	MaxExpansionsVal  *int     `json:"max_expansions,omitempty"`
	TranspositionsVal *bool    `json:"transpositions,omitempty"`
	BoostValue        *float32 `json:"boost,omitempty"`
}

// Fuzzy returns a FuzzyBuilder with default tuning.
func Fuzzy(field, value string) FuzzyBuilder { return FuzzyBuilder{Field: field, Value: value} }

// MaxEdits sets the maximum edit distance, 0 to 2.
func (b FuzzyBuilder) MaxEdits(n int) FuzzyBuilder { b.MaxEditsValue = &n; return b }

// PrefixLength sets the number of leading characters that must match exactly.
func (b FuzzyBuilder) PrefixLength(n int) FuzzyBuilder { b.PrefixLengthValue = &n; return b }

// MaxExpansions bounds the number of matching terms.
func (b FuzzyBuilder) MaxExpansions(n int) FuzzyBuilder { b.MaxExpansionsVal = &n; return b }

// Transpositions sets whether a swap of adjacent characters counts as one edit.
func (b FuzzyBuilder) Transpositions(v bool) FuzzyBuilder { b.TranspositionsVal = &v; return b }

// Boost sets the score multiplier.
func (b FuzzyBuilder) Boost(v float32) FuzzyBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (FuzzyBuilder) Type() string { return TypeFuzzy }

// Build implements Builder.
func (b FuzzyBuilder) Build() (Condition, error) {
	p, err := buildPattern(TypeFuzzy, b.Field, b.Value, b.BoostValue)
	if err != nil {
		return nil, err
	}
	c := &fuzzy{
		pattern:        p,
		maxEdits:       DefaultMaxEdits,
		prefixLength:   DefaultPrefixLength,
		maxExpansions:  DefaultMaxExpansions,
		transpositions: true,
	}
	if b.MaxEditsValue != nil {
		if *b.MaxEditsValue < 0 || *b.MaxEditsValue > 2 {
			return nil, invalid(TypeFuzzy, "max_edits must be in [0, 2], got %d", *b.MaxEditsValue)
		}
		c.maxEdits = *b.MaxEditsValue
	}
	if b.PrefixLengthValue != nil {
		if *b.PrefixLengthValue < 0 {
			return nil, invalid(TypeFuzzy, "prefix_length must not be negative")
		}
		c.prefixLength = *b.PrefixLengthValue
	}
	if b.MaxExpansionsVal != nil {
		if *b.MaxExpansionsVal <= 0 {
			return nil, invalid(TypeFuzzy, "max_expansions must be positive")
		}
		c.maxExpansions = *b.MaxExpansionsVal
	}
	if b.TranspositionsVal != nil {
		c.transpositions = *b.TranspositionsVal
	}
	return c, nil
}

type fuzzy struct {
	*pattern
	maxEdits       int
	prefixLength   int
	maxExpansions  int
	transpositions bool
}

func (c *fuzzy) Query(r Resolver) (index.Query, error) {
	m, v, _, err := c.termer(r, mapping.Fuzzy, TypeFuzzy)
	if err != nil {
		return nil, err
	}
	q := index.FuzzyQuery{
		Field:          m.Name(),
		Term:           v,
		MaxEdits:       c.maxEdits,
		PrefixLength:   c.prefixLength,
		MaxExpansions:  c.maxExpansions,
		Transpositions: c.transpositions,
	}
	return index.Boost(q, c.boost), nil
}

func (c *fuzzy) String() string { return fmt.Sprintf("%s:%s~%d", c.field, c.value, c.maxEdits) }

// PhraseBuilder matches analysed text containing a phrase.
type PhraseBuilder struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	SlopValue  int      `json:"slop,omitempty"`
	BoostValue *float32 `json:"boost,omitempty"`
}

// Phrase returns a PhraseBuilder.
func Phrase(field, value string) PhraseBuilder { return PhraseBuilder{Field: field, Value: value} }

// Slop sets the allowed position displacement.
func (b PhraseBuilder) Slop(n int) PhraseBuilder { b.SlopValue = n; return b }

// Boost sets the score multiplier.
func (b PhraseBuilder) Boost(v float32) PhraseBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (PhraseBuilder) Type() string { return TypePhrase }

// Build implements Builder.
func (b PhraseBuilder) Build() (Condition, error) {
	p, err := buildPattern(TypePhrase, b.Field, b.Value, b.BoostValue)
	if err != nil {
		return nil, err
	}
	if b.SlopValue < 0 {
		return nil, invalid(TypePhrase, "slop must not be negative")
	}
	return &phrase{pattern: p, slop: b.SlopValue}, nil
}

type phrase struct {
	*pattern
	slop int
}

func (c *phrase) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.field, mapping.Phrase, TypePhrase)
	if err != nil {
		return nil, err
	}
	pm, ok := m.(mapping.Phraser)
	if !ok {
		return nil, unsupported(m, TypePhrase)
	}
	q, err := pm.PhraseQuery(c.value, c.slop)
	if err != nil {
		return nil, err
	}
	return index.Boost(q, c.boost), nil
}

func (c *phrase) String() string { return fmt.Sprintf("%s:%q~%d", c.field, c.value, c.slop) }
