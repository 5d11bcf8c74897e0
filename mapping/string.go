package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/model"
)

// StringBuilder declares a field indexed as exact, untokenized strings.
type StringBuilder struct {
	ColumnName      string `json:"column,omitempty"`
	IsIndexed       *bool  `json:"indexed,omitempty"`
	IsSorted        *bool  `json:"sorted,omitempty"`
	IsCaseSensitive *bool  `json:"case_sensitive,omitempty"`
}

// String returns a StringBuilder with default options.
func String() StringBuilder { return StringBuilder{} }

// Column sets the mapped column. Defaults to the field name.
func (b StringBuilder) Column(c string) StringBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b StringBuilder) Indexed(v bool) StringBuilder { b.IsIndexed = &v; return b }

// Sorted sets whether the field is sortable.
func (b StringBuilder) Sorted(v bool) StringBuilder { b.IsSorted = &v; return b }

// CaseSensitive sets whether terms keep their case.
func (b StringBuilder) CaseSensitive(v bool) StringBuilder { b.IsCaseSensitive = &v; return b }

// Type implements Builder.
func (StringBuilder) Type() string { return TypeString }

// Build implements Builder.
func (b StringBuilder) Build(name string) (Mapper, error) {
	bs, err := newBase(name, TypeString, b.ColumnName, b.IsIndexed, b.IsSorted,
		Match|Contains|Range|Prefix|Wildcard|Regexp|Fuzzy|Sort)
	if err != nil {
		return nil, err
	}
	return &StringMapper{base: bs, caseSensitive: boolOr(b.IsCaseSensitive, DefaultCaseSensitive)}, nil
}

// StringMapper indexes column values as single exact terms.
type StringMapper struct {
	base
	caseSensitive bool
}

// CaseSensitive reports whether terms keep their case.
func (m *StringMapper) CaseSensitive() bool { return m.caseSensitive }

// FoldsCase implements Termer.
func (m *StringMapper) FoldsCase() bool { return !m.caseSensitive }

// Term implements Termer.
func (m *StringMapper) Term(value any) (string, error) {
	s, err := toString(value)
	if err != nil {
		return "", m.coercionError(value, err)
	}
	if !m.caseSensitive {
		s = strings.ToLower(s)
	}
	return s, nil
}

// Encode implements Mapper.
func (m *StringMapper) Encode(row model.Row, doc *index.Document) error {
	for _, v := range m.values(row) {
		term, err := m.Term(v)
		if err != nil {
			return err
		}
		if m.indexed {
			doc.AddTerm(m.name, term)
		}
		if m.sorted {
			doc.SetDocValue(m.name, model.String(term))
		}
	}
	return nil
}

// MatchQuery implements Matcher.
func (m *StringMapper) MatchQuery(value any) (index.Query, error) {
	term, err := m.Term(value)
	if err != nil {
		return nil, err
	}
	return index.TermQuery{Field: m.name, Term: term}, nil
}

// RangeQuery implements Ranger.
func (m *StringMapper) RangeQuery(lower, upper any, includeLower, includeUpper bool) (index.Query, error) {
	return termRange(m, m.name, lower, upper, includeLower, includeUpper)
}

func termRange(t Termer, field string, lower, upper any, includeLower, includeUpper bool) (index.Query, error) {
	q := index.TermRangeQuery{Field: field, IncludeLower: includeLower, IncludeUpper: includeUpper}
	if lower != nil {
		lo, err := t.Term(lower)
		if err != nil {
			return nil, err
		}
		q.Lower = &lo
	}
	if upper != nil {
		hi, err := t.Term(upper)
		if err != nil {
			return nil, err
		}
		q.Upper = &hi
	}
	return q, nil
}

// TextBuilder declares a full-text field whose values are analysed into
// terms.
type TextBuilder struct {
	ColumnName   string `json:"column,omitempty"`
	IsIndexed    *bool  `json:"indexed,omitempty"`
	AnalyzerName string `json:"analyzer,omitempty"`
}

// Text returns a TextBuilder with default options.
func Text() TextBuilder { return TextBuilder{} }

// Column sets the mapped column. Defaults to the field name.
func (b TextBuilder) Column(c string) TextBuilder { b.ColumnName = c; return b }

// Indexed sets whether the field is searchable.
func (b TextBuilder) Indexed(v bool) TextBuilder { b.IsIndexed = &v; return b }

// Analyzer sets the analyzer name. Defaults to the schema's default analyzer.
func (b TextBuilder) Analyzer(name string) TextBuilder { b.AnalyzerName = name; return b }

// Type implements Builder.
func (TextBuilder) Type() string { return TypeText }

// Build implements Builder. Only built-in analyzers can be resolved.
func (b TextBuilder) Build(name string) (Mapper, error) {
	return b.BuildWithAnalyzers(name, lexical.DefaultAnalyzer, lexical.Lookup)
}

// BuildWithAnalyzers builds the mapper resolving analyzer names through
// lookup; fallback names the analyzer used when none is declared.
func (b TextBuilder) BuildWithAnalyzers(name, fallback string, lookup func(string) (lexical.Analyzer, bool)) (Mapper, error) {
	bs, err := newBase(name, TypeText, b.ColumnName, b.IsIndexed, nil,
		Match|Contains|Prefix|Wildcard|Regexp|Fuzzy|Phrase)
	if err != nil {
		return nil, err
	}
	an := b.AnalyzerName
	if an == "" {
		an = fallback
	}
	a, ok := lookup(an)
	if !ok {
		return nil, model.NewMappingConfigurationError(name, "analyzer", fmt.Sprintf("unknown analyzer %q", an))
	}
	return &TextMapper{base: bs, analyzer: a}, nil
}

// TextMapper indexes analysed text.
type TextMapper struct {
	base
	analyzer lexical.Analyzer
}

// Analyzer implements Analyzed.
func (m *TextMapper) Analyzer() lexical.Analyzer { return m.analyzer }

// FoldsCase implements Termer.
func (m *TextMapper) FoldsCase() bool {
	switch m.analyzer.(type) {
	case lexical.Keyword, lexical.Whitespace:
		return false
	}
	return true
}

// Term implements Termer. Pattern literals are only case folded, never
// tokenized.
func (m *TextMapper) Term(value any) (string, error) {
	s, err := toString(value)
	if err != nil {
		return "", m.coercionError(value, err)
	}
	if m.FoldsCase() {
		s = strings.ToLower(s)
	}
	return s, nil
}

// Encode implements Mapper.
func (m *TextMapper) Encode(row model.Row, doc *index.Document) error {
	if !m.indexed {
		return nil
	}
	for _, v := range m.values(row) {
		s, err := toString(v)
		if err != nil {
			return m.coercionError(v, err)
		}
		doc.AddText(m.name, m.analyzer.Analyze(s))
	}
	return nil
}

// MatchQuery implements Matcher. Multi-term literals match any of their
// terms.
func (m *TextMapper) MatchQuery(value any) (index.Query, error) {
	terms, err := m.analyze(value)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return index.TermQuery{Field: m.name, Term: terms[0]}, nil
	}
	should := make([]index.Query, len(terms))
	for i, t := range terms {
		should[i] = index.TermQuery{Field: m.name, Term: t}
	}
	return index.BooleanQuery{Should: should}, nil
}

// PhraseQuery implements Phraser.
func (m *TextMapper) PhraseQuery(value string, slop int) (index.Query, error) {
	terms, err := m.analyze(value)
	if err != nil {
		return nil, err
	}
	return index.PhraseQuery{Field: m.name, Terms: terms, Slop: slop}, nil
}

func (m *TextMapper) analyze(value any) ([]string, error) {
	s, err := toString(value)
	if err != nil {
		return nil, m.coercionError(value, err)
	}
	terms := lexical.Texts(m.analyzer.Analyze(s))
	if len(terms) == 0 {
		return nil, m.coercionError(value, errors.New("analysis produced no terms"))
	}
	return terms, nil
}
