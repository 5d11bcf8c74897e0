package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
)

// ErrInvalidDocument is returned when a schema document does not conform to
// the document structure.
var ErrInvalidDocument = errors.New("invalid schema document")

// AnalyzerBuilder declares a custom analyzer. Type names a built-in analyzer;
// Words overrides the stop words of the "stop" analyzer.
type AnalyzerBuilder struct {
	Type  string   `json:"type"`
	Words []string `json:"words,omitempty"`
}

func (a AnalyzerBuilder) build(name string) (lexical.Analyzer, error) {
	if a.Type == "stop" {
		return lexical.NewStop(a.Words...), nil
	}
	if len(a.Words) > 0 {
		return nil, model.NewMappingConfigurationError(name, "words", "only supported by the stop analyzer")
	}
	an, ok := lexical.Lookup(a.Type)
	if !ok {
		return nil, model.NewMappingConfigurationError(name, "type", fmt.Sprintf("unknown analyzer type %q", a.Type))
	}
	return an, nil
}

// Fields is the set of field declarations of a schema.
type Fields map[string]mapping.Builder

// MarshalJSON implements json.Marshaler.
func (f Fields) MarshalJSON() ([]byte, error) {
	raw := make(map[string]gojson.RawMessage, len(f))
	for name, b := range f {
		data, err := mapping.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		raw[name] = data
	}
	return gojson.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]gojson.RawMessage
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for name, msg := range raw {
		b, err := mapping.Decode(msg)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = b
	}
	*f = out
	return nil
}

// Builder is the declarative description of a schema.
type Builder struct {
	DefaultAnalyzer string                     `json:"default_analyzer,omitempty"`
	Analyzers       map[string]AnalyzerBuilder `json:"analyzers,omitempty"`
	Fields          Fields                     `json:"fields"`
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{Fields: Fields{}}
}

// Field declares a field mapping.
func (b *Builder) Field(name string, m mapping.Builder) *Builder {
	if b.Fields == nil {
		b.Fields = Fields{}
	}
	b.Fields[name] = m
	return b
}

// Analyzer declares a custom analyzer.
func (b *Builder) Analyzer(name string, a AnalyzerBuilder) *Builder {
	if b.Analyzers == nil {
		b.Analyzers = map[string]AnalyzerBuilder{}
	}
	b.Analyzers[name] = a
	return b
}

// WithDefaultAnalyzer sets the analyzer used by text fields that do not
// declare one.
func (b *Builder) WithDefaultAnalyzer(name string) *Builder {
	b.DefaultAnalyzer = name
	return b
}

type analyzerAware interface {
	BuildWithAnalyzers(name, fallback string, lookup func(string) (lexical.Analyzer, bool)) (mapping.Mapper, error)
}

// Build compiles the declaration. Every invalid field is reported; the
// returned error matches *model.MappingConfigurationError.
func (b *Builder) Build(name string) (*Schema, error) {
	if len(b.Fields) == 0 {
		return nil, model.NewMappingConfigurationError(name, "fields", "at least one field is required")
	}

	analyzers := make(map[string]lexical.Analyzer, len(b.Analyzers))
	var errs []error
	for _, an := range sortedKeys(b.Analyzers) {
		a, err := b.Analyzers[an].build(an)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		analyzers[an] = a
	}
	lookup := func(n string) (lexical.Analyzer, bool) {
		if a, ok := analyzers[n]; ok {
			return a, true
		}
		return lexical.Lookup(n)
	}

	def := b.DefaultAnalyzer
	if def == "" {
		def = lexical.DefaultAnalyzer
	}
	if _, ok := lookup(def); !ok {
		errs = append(errs, model.NewMappingConfigurationError(name, "default_analyzer", fmt.Sprintf("unknown analyzer %q", def)))
	}

	s := &Schema{
		name:            name,
		mappers:         make(map[string]mapping.Mapper, len(b.Fields)),
		columns:         make(map[string]struct{}),
		analyzers:       analyzers,
		defaultAnalyzer: def,
		source:          b.clone(),
	}
	for _, field := range sortedKeys(b.Fields) {
		fb := b.Fields[field]
		if fb == nil {
			errs = append(errs, model.NewMappingConfigurationError(field, "type", "missing mapping"))
			continue
		}
		var (
			m   mapping.Mapper
			err error
		)
		if aa, ok := fb.(analyzerAware); ok {
			m, err = aa.BuildWithAnalyzers(field, def, lookup)
		} else {
			m, err = fb.Build(field)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.mappers[field] = m
		s.fields = append(s.fields, field)
		for _, c := range m.Columns() {
			s.columns[c] = struct{}{}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (b *Builder) clone() *Builder {
	c := &Builder{DefaultAnalyzer: b.DefaultAnalyzer, Fields: make(Fields, len(b.Fields))}
	for k, v := range b.Fields {
		c.Fields[k] = v
	}
	if b.Analyzers != nil {
		c.Analyzers = make(map[string]AnalyzerBuilder, len(b.Analyzers))
		for k, v := range b.Analyzers {
			c.Analyzers[k] = v
		}
	}
	return c
}

// JSON encodes the declaration.
func (b *Builder) JSON() ([]byte, error) {
	return gojson.Marshal(b)
}

// Parse validates and decodes a JSON schema document.
func Parse(data []byte) (*Builder, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	b := NewBuilder()
	if err := gojson.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return b, nil
}

// Validate checks a JSON schema document against the document structure
// without compiling it.
func Validate(data []byte) error {
	js, err := documentSchema()
	if err != nil {
		return err
	}
	res, err := js.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

var documentSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	types, err := gojson.Marshal(mapping.Types())
	if err != nil {
		return nil, err
	}
	analyzers, err := gojson.Marshal(lexical.Names())
	if err != nil {
		return nil, err
	}
	doc := fmt.Sprintf(documentSchemaTemplate, analyzers, types)
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
})

const documentSchemaTemplate = `{
  "type": "object",
  "required": ["fields"],
  "additionalProperties": false,
  "properties": {
    "default_analyzer": {"type": "string"},
    "analyzers": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": %s},
          "words": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "fields": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": %s},
          "column": {"type": "string"},
          "indexed": {"type": "boolean"},
          "sorted": {"type": "boolean"},
          "case_sensitive": {"type": "boolean"},
          "analyzer": {"type": "string"},
          "boost": {"type": "number"},
          "digits": {"type": "integer"},
          "pattern": {"type": "string"},
          "latitude": {"type": "string"},
          "longitude": {"type": "string"},
          "max_levels": {"type": "integer"}
        }
      }
    }
  }
}`

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
