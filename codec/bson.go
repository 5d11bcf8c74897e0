package codec

import (
	"fmt"

	gojson "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
)

// BSON stores documents as BSON.
//
// Values are bridged through their JSON form so that types with custom JSON
// encodings (schema field builders, condition trees) round-trip unchanged.
// The top-level value must encode as a JSON object.
type BSON struct{}

// Marshal encodes the value to BSON.
func (BSON) Marshal(v any) ([]byte, error) {
	data, err := gojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("bson: %w", err)
	}
	return bson.Marshal(doc)
}

// Unmarshal decodes the BSON data into v.
func (BSON) Unmarshal(data []byte, v any) error {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("bson: %w", err)
	}
	js, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Errorf("bson: %w", err)
	}
	return gojson.Unmarshal(js, v)
}

// Name returns the unique name of the codec ("bson").
func (BSON) Name() string { return "bson" }
