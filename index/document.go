package index

import (
	"math"

	"github.com/hupe1980/kvsearch/lexical"
	"github.com/hupe1980/kvsearch/model"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Document is the indexable representation of one row, built by mappers.
type Document struct {
	terms     map[string][]string
	text      map[string][]lexical.Term
	numeric   map[string][]uint64
	points    map[string][]GeoPoint
	docValues map[string]model.Value
}

// NewDocument creates an empty Document.
func NewDocument() *Document {
	return &Document{}
}

// AddTerm indexes an exact (non-analysed) term.
func (d *Document) AddTerm(field, term string) {
	if d.terms == nil {
		d.terms = make(map[string][]string)
	}
	d.terms[field] = append(d.terms[field], term)
}

// AddText indexes analysed terms with positions. Successive calls for the
// same field continue positions with a gap so phrases never span values.
func (d *Document) AddText(field string, terms []lexical.Term) {
	if len(terms) == 0 {
		return
	}
	if d.text == nil {
		d.text = make(map[string][]lexical.Term)
	}
	prev := d.text[field]
	offset := 0
	if n := len(prev); n > 0 {
		offset = prev[n-1].Position + positionGap
	}
	for _, t := range terms {
		prev = append(prev, lexical.Term{Text: t.Text, Position: t.Position + offset})
	}
	d.text[field] = prev
}

// AddNumeric indexes a sortable numeric encoding (see EncodeInt64 and
// EncodeFloat64).
func (d *Document) AddNumeric(field string, v uint64) {
	if d.numeric == nil {
		d.numeric = make(map[string][]uint64)
	}
	d.numeric[field] = append(d.numeric[field], v)
}

// AddPoint indexes a geographic point.
func (d *Document) AddPoint(field string, p GeoPoint) {
	if d.points == nil {
		d.points = make(map[string][]GeoPoint)
	}
	d.points[field] = append(d.points[field], p)
}

// SetDocValue stores the value used for sorting on field. Only the first
// value set for a field is kept.
func (d *Document) SetDocValue(field string, v model.Value) {
	if d.docValues == nil {
		d.docValues = make(map[string]model.Value)
	}
	if _, ok := d.docValues[field]; ok {
		return
	}
	d.docValues[field] = v
}

// DocValue returns the stored sort value of field.
func (d *Document) DocValue(field string) (model.Value, bool) {
	v, ok := d.docValues[field]
	return v, ok
}

// Terms returns the exact terms indexed for field.
func (d *Document) Terms(field string) []string { return d.terms[field] }

// Text returns the analysed terms indexed for field.
func (d *Document) Text(field string) []lexical.Term { return d.text[field] }

// Numerics returns the numeric encodings indexed for field.
func (d *Document) Numerics(field string) []uint64 { return d.numeric[field] }

// Points returns the points indexed for field.
func (d *Document) Points(field string) []GeoPoint { return d.points[field] }

// Empty reports whether the document has nothing to index.
func (d *Document) Empty() bool {
	return len(d.terms) == 0 && len(d.text) == 0 && len(d.numeric) == 0 &&
		len(d.points) == 0 && len(d.docValues) == 0
}

const positionGap = 100

// EncodeInt64 maps an int64 to a uint64 preserving order.
func EncodeInt64(v int64) uint64 {
	return uint64(v) ^ (1 << 63) //nolint:gosec
}

// DecodeInt64 is the inverse of EncodeInt64.
func DecodeInt64(u uint64) int64 {
	return int64(u ^ (1 << 63)) //nolint:gosec
}

// EncodeFloat64 maps a float64 to a uint64 preserving order. NaN is not
// supported.
func EncodeFloat64(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// DecodeFloat64 is the inverse of EncodeFloat64.
func DecodeFloat64(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}
