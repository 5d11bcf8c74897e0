// Package search compiles declarative search requests into executable plans.
//
// A Plan bundles the index query, the sort fields and the single comparator
// that every shard and the merge must share. Compile validates the whole
// request against the schema before any shard is touched.
package search

import (
	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/kvsearch/condition"
)

// Request is a declarative search. Query contributes to relevance; Filter
// only restricts the matching rows.
type Request struct {
	Query  condition.Builder
	Filter condition.Builder
	Sort   []SortFieldBuilder
}

// NewRequest returns an empty request matching every row.
func NewRequest() *Request { return &Request{} }

// WithQuery sets the scored condition.
func (r *Request) WithQuery(b condition.Builder) *Request {
	r.Query = b
	return r
}

// WithFilter sets the unscored condition.
func (r *Request) WithFilter(b condition.Builder) *Request {
	r.Filter = b
	return r
}

// SortBy appends sort fields.
func (r *Request) SortBy(fields ...SortFieldBuilder) *Request {
	r.Sort = append(r.Sort, fields...)
	return r
}

type requestJSON struct {
	Query  gojson.RawMessage  `json:"query,omitempty"`
	Filter gojson.RawMessage  `json:"filter,omitempty"`
	Sort   []SortFieldBuilder `json:"sort,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	var (
		out requestJSON
		err error
	)
	if r.Query != nil {
		if out.Query, err = condition.Marshal(r.Query); err != nil {
			return nil, err
		}
	}
	if r.Filter != nil {
		if out.Filter, err = condition.Marshal(r.Filter); err != nil {
			return nil, err
		}
	}
	out.Sort = r.Sort
	return gojson.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	var in requestJSON
	if err := gojson.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Request{Sort: in.Sort}
	var err error
	if len(in.Query) > 0 && string(in.Query) != "null" {
		if r.Query, err = condition.Decode(in.Query); err != nil {
			return err
		}
	}
	if len(in.Filter) > 0 && string(in.Filter) != "null" {
		if r.Filter, err = condition.Decode(in.Filter); err != nil {
			return err
		}
	}
	return nil
}

// ParseRequest decodes a JSON search request.
func ParseRequest(data []byte) (*Request, error) {
	r := &Request{}
	if err := gojson.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
