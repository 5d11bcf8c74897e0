package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/mapping"
)

// distanceUnits maps unit suffixes to meters. Longer suffixes are tried
// first.
var distanceUnits = []struct {
	suffix string
	meters float64
}{
	{"nmi", 1852},
	{"km", 1000},
	{"mm", 0.001},
	{"cm", 0.01},
	{"mi", 1609.344},
	{"yd", 0.9144},
	{"ft", 0.3048},
	{"in", 0.0254},
	{"m", 1},
}

// ParseDistance parses a distance such as "10km" or "3.5mi" into meters. A
// bare number is in meters.
func ParseDistance(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty distance")
	}
	factor := 1.0
	for _, u := range distanceUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, factor = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.meters
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid distance %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative distance %q", s)
	}
	return v * factor, nil
}

// GeoDistanceBuilder matches points within a distance band around a center.
type GeoDistanceBuilder struct {
	Field       string   `json:"field"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	MaxDistance string   `json:"max_distance"`
	MinDistance string   `json:"min_distance,omitempty"`
	BoostValue  *float32 `json:"boost,omitempty"`
}

// GeoDistance returns a GeoDistanceBuilder.
func GeoDistance(field string, latitude, longitude float64, maxDistance string) GeoDistanceBuilder {
	return GeoDistanceBuilder{Field: field, Latitude: latitude, Longitude: longitude, MaxDistance: maxDistance}
}

// Min sets the inner radius.
func (b GeoDistanceBuilder) Min(distance string) GeoDistanceBuilder { b.MinDistance = distance; return b }

// Boost sets the score multiplier.
func (b GeoDistanceBuilder) Boost(v float32) GeoDistanceBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (GeoDistanceBuilder) Type() string { return TypeGeoDistance }

// Build implements Builder.
func (b GeoDistanceBuilder) Build() (Condition, error) {
	if err := requireField(TypeGeoDistance, b.Field); err != nil {
		return nil, err
	}
	if !index.ValidLatitude(b.Latitude) {
		return nil, invalid(TypeGeoDistance, "latitude %g out of range [-90, 90]", b.Latitude)
	}
	if !index.ValidLongitude(b.Longitude) {
		return nil, invalid(TypeGeoDistance, "longitude %g out of range [-180, 180]", b.Longitude)
	}
	if b.MaxDistance == "" {
		return nil, invalid(TypeGeoDistance, "max_distance is required")
	}
	maxM, err := ParseDistance(b.MaxDistance)
	if err != nil {
		return nil, invalid(TypeGeoDistance, "max_distance: %v", err)
	}
	var minM float64
	if b.MinDistance != "" {
		if minM, err = ParseDistance(b.MinDistance); err != nil {
			return nil, invalid(TypeGeoDistance, "min_distance: %v", err)
		}
	}
	if minM > maxM {
		return nil, invalid(TypeGeoDistance, "min_distance %s exceeds max_distance %s", b.MinDistance, b.MaxDistance)
	}
	boost, err := boostOf(TypeGeoDistance, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &geoDistance{
		field:  b.Field,
		center: index.GeoPoint{Lat: b.Latitude, Lon: b.Longitude},
		min:    minM,
		max:    maxM,
		boost:  boost,
	}, nil
}

type geoDistance struct {
	field    string
	center   index.GeoPoint
	min, max float64
	boost    float32
}

func (c *geoDistance) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.field, mapping.Geo, TypeGeoDistance)
	if err != nil {
		return nil, err
	}
	sm, ok := m.(mapping.Spatial)
	if !ok {
		return nil, unsupported(m, TypeGeoDistance)
	}
	return index.Boost(sm.DistanceQuery(c.center, c.min, c.max), c.boost), nil
}

func (c *geoDistance) Fields() []string { return []string{c.field} }

func (c *geoDistance) String() string {
	return fmt.Sprintf("%s within [%gm, %gm] of (%g, %g)", c.field, c.min, c.max, c.center.Lat, c.center.Lon)
}

// GeoBBoxBuilder matches points within a bounding box. A minimum longitude
// greater than the maximum describes a box crossing the antimeridian.
type GeoBBoxBuilder struct {
	Field        string   `json:"field"`
	MinLatitude  float64  `json:"min_latitude"`
	MaxLatitude  float64  `json:"max_latitude"`
	MinLongitude float64  `json:"min_longitude"`
	MaxLongitude float64  `json:"max_longitude"`
	BoostValue   *float32 `json:"boost,omitempty"`
}

// GeoBBox returns a GeoBBoxBuilder.
func GeoBBox(field string, minLat, maxLat, minLon, maxLon float64) GeoBBoxBuilder {
	return GeoBBoxBuilder{Field: field, MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: minLon, MaxLongitude: maxLon}
}

// Boost sets the score multiplier.
func (b GeoBBoxBuilder) Boost(v float32) GeoBBoxBuilder { b.BoostValue = &v; return b }

// Type implements Builder.
func (GeoBBoxBuilder) Type() string { return TypeGeoBBox }

// Build implements Builder.
func (b GeoBBoxBuilder) Build() (Condition, error) {
	if err := requireField(TypeGeoBBox, b.Field); err != nil {
		return nil, err
	}
	for _, lat := range []float64{b.MinLatitude, b.MaxLatitude} {
		if !index.ValidLatitude(lat) {
			return nil, invalid(TypeGeoBBox, "latitude %g out of range [-90, 90]", lat)
		}
	}
	for _, lon := range []float64{b.MinLongitude, b.MaxLongitude} {
		if !index.ValidLongitude(lon) {
			return nil, invalid(TypeGeoBBox, "longitude %g out of range [-180, 180]", lon)
		}
	}
	if b.MinLatitude > b.MaxLatitude {
		return nil, invalid(TypeGeoBBox, "min_latitude %g exceeds max_latitude %g", b.MinLatitude, b.MaxLatitude)
	}
	boost, err := boostOf(TypeGeoBBox, b.BoostValue)
	if err != nil {
		return nil, err
	}
	return &geoBBox{b: b, boost: boost}, nil
}

type geoBBox struct {
	b     GeoBBoxBuilder
	boost float32
}

func (c *geoBBox) Query(r Resolver) (index.Query, error) {
	m, err := resolve(r, c.b.Field, mapping.Geo, TypeGeoBBox)
	if err != nil {
		return nil, err
	}
	sm, ok := m.(mapping.Spatial)
	if !ok {
		return nil, unsupported(m, TypeGeoBBox)
	}
	q := sm.BBoxQuery(c.b.MinLatitude, c.b.MaxLatitude, c.b.MinLongitude, c.b.MaxLongitude)
	return index.Boost(q, c.boost), nil
}

func (c *geoBBox) Fields() []string { return []string{c.b.Field} }

func (c *geoBBox) String() string {
	return fmt.Sprintf("%s in [(%g, %g), (%g, %g)]", c.b.Field, c.b.MinLatitude, c.b.MinLongitude, c.b.MaxLatitude, c.b.MaxLongitude)
}
