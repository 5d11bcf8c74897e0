package condition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/kvsearch/index"
)

// AllBuilder matches every row.
type AllBuilder struct {
	BoostValue *float32 `json:"boost,omitempty"`
}

// All returns a condition matching every row.
func All() AllBuilder { return AllBuilder{} }

// Boost sets the score multiplier.
func (b AllBuilder) Boost(v float32) AllBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (AllBuilder) Type() string { return TypeAll }

// Build implements Builder.
func (b AllBuilder) Build() (Condition, error) {
	boost, err := boostOf(TypeAll, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &all{boost: boost}, nil
}

type all struct{ boost float32 }

func (c *all) Query(Resolver) (index.Query, error) {
	return index.Boost(index.MatchAllQuery{}, c.boost), nil
}

func (c *all) Fields() []string { return nil }
func (c *all) String() string   { return "all" }

// NoneBuilder matches no row.
type NoneBuilder struct {
	BoostValue *float32 `json:"boost,omitempty"`
}

// None returns a condition matching no row.
func None() NoneBuilder { return NoneBuilder{} }

// Type implements Builder.
func (NoneBuilder) Type() string { return TypeNone }

// Build implements Builder.
func (b NoneBuilder) Build() (Condition, error) {
	if _, err := boostOf(TypeNone, b.BoostValue); err != nil {
		return nil, err
	}
	return none{}, nil
}

type none struct{}

func (none) Query(Resolver) (index.Query, error) { return index.MatchNoneQuery{}, nil }
func (none) Fields() []string                    { return nil }
func (none) String() string                      { return "none" }

// BooleanBuilder combines conditions. Rows must satisfy every Must clause,
// at least MinimumShouldMatch Should clauses when there is no Must clause,
// and no Not clause.
type BooleanBuilder struct {
	MustClauses        Builders `json:"must,omitempty"`
	ShouldClauses      Builders `json:"should,omitempty"`
	NotClauses         Builders `json:"not,omitempty"`
	MinimumShouldMatch int      `json:"minimum_should_match,omitempty"`
	BoostValue         *float32 `json:"boost,omitempty"`
}

// Bool returns an empty BooleanBuilder.
func Bool() BooleanBuilder { return BooleanBuilder{} }

// Must appends required clauses.
func (b BooleanBuilder) Must(cs ...Builder) BooleanBuilder {
	b.MustClauses = append(append(Builders(nil), b.MustClauses...), cs...)
	return b
}

// Should appends optional clauses.
func (b BooleanBuilder) Should(cs ...Builder) BooleanBuilder {
	b.ShouldClauses = append(append(Builders(nil), b.ShouldClauses...), cs...)
	return b
}

// Not appends excluding clauses.
func (b BooleanBuilder) Not(cs ...Builder) BooleanBuilder {
	b.NotClauses = append(append(Builders(nil), b.NotClauses...), cs...)
	return b
}

// MinShouldMatch sets how many Should clauses must match.
func (b BooleanBuilder) MinShouldMatch(n int) BooleanBuilder { b.MinimumShouldMatch = n; return b }

// Boost sets the score multiplier.
func (b BooleanBuilder) Boost(v float32) BooleanBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (BooleanBuilder) Type() string { return TypeBoolean }

// Build implements Builder.
func (b BooleanBuilder) Build() (Condition, error) {
	if len(b.MustClauses)+len(b.ShouldClauses)+len(b.NotClauses) == 0 {
		return nil, invalid(TypeBoolean, "at least one clause is required")
	}
	if b.MinimumShouldMatch < 0 || b.MinimumShouldMatch > len(b.ShouldClauses) {
		return nil, invalid(TypeBoolean, "minimum_should_match %d out of range [0, %d]", b.MinimumShouldMatch, len(b.ShouldClauses))
	}
	boost, err := boostOf(TypeBoolean, b.BoostValue)
	if err != nil {
		return nil, err
	}
	c := &boolean{minShould: b.MinimumShouldMatch, boost: boost}
	if c.must, err = buildAll(b.MustClauses); err != nil {
		return nil, err
	}
	if c.should, err = buildAll(b.ShouldClauses); err != nil {
		return nil, err
	}
	if c.not, err = buildAll(b.NotClauses); err != nil {
		return nil, err
	}
	return c, nil
}

func buildAll(bs Builders) ([]Condition, error) {
	out := make([]Condition, 0, len(bs))
	for i, b := range bs {
		if b == nil {
			return nil, invalid(TypeBoolean, "clause %d is empty", i)
		}
		c, err := b.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type boolean struct {
	must, should, not []Condition
	minShould         int
	boost             float32
}

func (c *boolean) Query(r Resolver) (index.Query, error) {
	var (
		q   index.BooleanQuery
		err error
	)
	if q.Must, err = queries(c.must, r); err != nil {
		return nil, err
	}
	if q.Should, err = queries(c.should, r); err != nil {
		return nil, err
	}
	if q.Not, err = queries(c.not, r); err != nil {
		return nil, err
	}
	q.MinimumShouldMatch = c.minShould
	return index.Boost(q, c.boost), nil
}

func queries(cs []Condition, r Resolver) ([]index.Query, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]index.Query, 0, len(cs))
	for _, c := range cs {
		q, err := c.Query(r)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *boolean) Fields() []string {
	seen := map[string]struct{}{}
	for _, group := range [][]Condition{c.must, c.should, c.not} {
		for _, sub := range group {
			for _, f := range sub.Fields() {
				seen[f] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (c *boolean) String() string {
	var parts []string
	add := func(op string, cs []Condition) {
		for _, sub := range cs {
			parts = append(parts, op+sub.String())
		}
	}
	add("+", c.must)
	add("", c.should)
	add("-", c.not)
	return fmt.Sprintf("(%s)", strings.Join(parts, " "))
}
