package mapping

import (
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"
)

// Mapper type names.
const (
	TypeString   = "string"
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeLong     = "long"
	TypeFloat    = "float"
	TypeDouble   = "double"
	TypeBigInt   = "bigint"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeUUID     = "uuid"
	TypeInet     = "inet"
	TypeBlob     = "blob"
	TypeGeoPoint = "geo_point"
)

// Builder is the declarative description of a field mapping.
//
// Build validates the declaration and compiles it into a Mapper named after
// the field. It is deterministic, free of side effects and returns a
// *model.MappingConfigurationError on invalid declarations.
type Builder interface {
	Type() string
	Build(name string) (Mapper, error)
}

var factories = map[string]func() Builder{
	TypeString:   func() Builder { b := String(); return &b },
	TypeText:     func() Builder { b := Text(); return &b },
	TypeInteger:  func() Builder { b := Integer(); return &b },
	TypeLong:     func() Builder { b := Long(); return &b },
	TypeFloat:    func() Builder { b := Float(); return &b },
	TypeDouble:   func() Builder { b := Double(); return &b },
	TypeBigInt:   func() Builder { b := BigInt(); return &b },
	TypeBoolean:  func() Builder { b := Boolean(); return &b },
	TypeDate:     func() Builder { b := Date(); return &b },
	TypeUUID:     func() Builder { b := UUID(); return &b },
	TypeInet:     func() Builder { b := Inet(); return &b },
	TypeBlob:     func() Builder { b := Blob(); return &b },
	TypeGeoPoint: func() Builder { b := GeoPointBuilder{}; return &b },
}

// Types returns the supported mapper type names, sorted.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode decodes a JSON mapping declaration selected by its "type" member.
func Decode(data []byte) (Builder, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := gojson.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("mapping: %w", err)
	}
	factory, ok := factories[head.Type]
	if !ok {
		return nil, fmt.Errorf("mapping: unknown type %q", head.Type)
	}
	b := factory()
	if err := gojson.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("mapping: decode %s: %w", head.Type, err)
	}
	return b, nil
}

// Marshal encodes a mapping declaration as JSON including its "type" member.
func Marshal(b Builder) ([]byte, error) {
	raw, err := gojson.Marshal(b)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := gojson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["type"] = b.Type()
	return gojson.Marshal(m)
}
