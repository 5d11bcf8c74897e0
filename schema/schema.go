// Package schema holds the compiled field mappings of an index.
//
// A Schema is immutable once built and can be shared by any number of
// concurrent readers and writers.
package schema

import (
	"fmt"
	"sort"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
)

// Schema maps index field names to mappers.
type Schema struct {
	name            string
	mappers         map[string]mapping.Mapper
	fields          []string
	columns         map[string]struct{}
	analyzers       map[string]lexical.Analyzer
	defaultAnalyzer string
	source          *Builder
}

// Name returns the index name.
func (s *Schema) Name() string { return s.name }

// Mapper resolves a field name. It fails with *model.UnknownFieldError when
// the field is not mapped.
func (s *Schema) Mapper(field string) (mapping.Mapper, error) {
	m, ok := s.mappers[field]
	if !ok {
		return nil, &model.UnknownFieldError{Field: field}
	}
	return m, nil
}

// Fields returns the mapped field names, sorted.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// MapsColumn reports whether any mapper reads the column.
func (s *Schema) MapsColumn(column string) bool {
	_, ok := s.columns[column]
	return ok
}

// Columns returns every column read by some mapper, sorted.
func (s *Schema) Columns() []string {
	out := make([]string, 0, len(s.columns))
	for c := range s.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Analyzer returns a named analyzer available to the schema's text fields.
func (s *Schema) Analyzer(name string) (lexical.Analyzer, bool) {
	if a, ok := s.analyzers[name]; ok {
		return a, true
	}
	return lexical.Lookup(name)
}

// DefaultAnalyzer returns the name of the analyzer used by text fields that
// do not declare one.
func (s *Schema) DefaultAnalyzer() string { return s.defaultAnalyzer }

// Source returns the declaration the schema was built from.
func (s *Schema) Source() *Builder { return s.source }

// Encode builds the index document of a row.
func (s *Schema) Encode(row model.Row) (*index.Document, error) {
	doc := index.NewDocument()
	for _, name := range s.fields {
		if err := s.mappers[name].Encode(row, doc); err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", s.name, name, err)
		}
	}
	return doc, nil
}

// String implements fmt.Stringer.
func (s *Schema) String() string {
	return fmt.Sprintf("schema(%s, fields=%v)", s.name, s.fields)
}
