package search

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/kvsearch/condition"
	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/model"
	"github.com/hupe1980/kvsearch/ordering"
)

// Sort field type names.
const (
	SortSimple      = "simple"
	SortGeoDistance = "geo_distance"
)

// SortFieldBuilder declares one sort criterion.
type SortFieldBuilder struct {
	Type      string  `json:"type,omitempty"`
	Field     string  `json:"field"`
	Reverse   bool    `json:"reverse,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Field sorts ascending by a sortable field.
func Field(name string) SortFieldBuilder { return SortFieldBuilder{Type: SortSimple, Field: name} }

// GeoDistance sorts ascending by distance to a point.
func GeoDistance(field string, latitude, longitude float64) SortFieldBuilder {
	return SortFieldBuilder{Type: SortGeoDistance, Field: field, Latitude: latitude, Longitude: longitude}
}

// Desc reverses the order.
func (b SortFieldBuilder) Desc() SortFieldBuilder { b.Reverse = true; return b }

// DocValues exposes the per-document values used for sorting. *index.Index
// implements it.
type DocValues interface {
	DocValue(doc uint32, field string) (model.Value, bool)
	Points(doc uint32, field string) []index.GeoPoint
}

// SortField is a compiled sort criterion.
type SortField interface {
	Key() ordering.SortKey
	// Value returns the sort value of a document; null when absent.
	Value(dv DocValues, doc uint32) model.Value
	fmt.Stringer
}

// Build resolves the sort field. Every failure is an
// *model.UnsupportedSortError.
func (b SortFieldBuilder) Build(r condition.Resolver) (SortField, error) {
	if b.Field == "" {
		return nil, model.NewUnsupportedSortError(b.Field, "field is required", nil)
	}
	m, err := r.Mapper(b.Field)
	if err != nil {
		return nil, model.NewUnsupportedSortError(b.Field, err.Error(), err)
	}
	switch b.Type {
	case "", SortSimple:
		if m.Capabilities()&mapping.Geo != 0 {
			return nil, model.NewUnsupportedSortError(b.Field, "geo fields sort by distance only", nil)
		}
		if !m.Supports(mapping.Sort) {
			return nil, model.NewUnsupportedSortError(b.Field, fmt.Sprintf("%s mapper is not sorted", m.Type()), nil)
		}
		return simpleSort{field: b.Field, reverse: b.Reverse}, nil
	case SortGeoDistance:
		if !m.Supports(mapping.Geo) {
			return nil, model.NewUnsupportedSortError(b.Field, fmt.Sprintf("%s mapper is not a geo point", m.Type()), nil)
		}
		if !index.ValidLatitude(b.Latitude) || !index.ValidLongitude(b.Longitude) {
			return nil, model.NewUnsupportedSortError(b.Field, "invalid origin",
				errors.New("latitude must be in [-90, 90] and longitude in [-180, 180]"))
		}
		return geoDistanceSort{
			field:   b.Field,
			origin:  index.GeoPoint{Lat: b.Latitude, Lon: b.Longitude},
			reverse: b.Reverse,
		}, nil
	default:
		return nil, model.NewUnsupportedSortError(b.Field, fmt.Sprintf("unknown sort type %q", b.Type), nil)
	}
}

type simpleSort struct {
	field   string
	reverse bool
}

func (s simpleSort) Key() ordering.SortKey {
	return ordering.SortKey{Field: s.field, Reverse: s.reverse}
}

func (s simpleSort) Value(dv DocValues, doc uint32) model.Value {
	v, ok := dv.DocValue(doc, s.field)
	if !ok {
		return model.Null()
	}
	return v
}

func (s simpleSort) String() string { return s.Key().String() }

type geoDistanceSort struct {
	field   string
	origin  index.GeoPoint
	reverse bool
}

func (s geoDistanceSort) Key() ordering.SortKey {
	return ordering.SortKey{
		Field:   fmt.Sprintf("%s@(%g,%g)", s.field, s.origin.Lat, s.origin.Lon),
		Reverse: s.reverse,
	}
}

// Value returns the distance in meters to the nearest point of the document.
func (s geoDistanceSort) Value(dv DocValues, doc uint32) model.Value {
	points := dv.Points(doc, s.field)
	if len(points) == 0 {
		return model.Null()
	}
	best := math.Inf(1)
	for _, p := range points {
		best = min(best, index.Distance(s.origin, p))
	}
	return model.Float(best)
}

func (s geoDistanceSort) String() string { return "geo_distance " + s.Key().String() }
