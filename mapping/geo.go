package mapping

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kvsearch/index"
	"github.com/hupe1980/kvsearch/model"
)

// GeoPointBuilder declares a point field composed of a latitude and a
// longitude column.
type GeoPointBuilder struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	MaxLevels *int   `json:"max_levels,omitempty"`
}

// DefaultGeoMaxLevels is the default geohash depth of point fields.
const DefaultGeoMaxLevels = 11

// GeoPoint returns a GeoPointBuilder for the given columns.
func GeoPoint(latitude, longitude string) GeoPointBuilder {
	return GeoPointBuilder{Latitude: latitude, Longitude: longitude}
}

// Levels sets the geohash depth used to pre-filter spatial queries.
func (b GeoPointBuilder) Levels(n int) GeoPointBuilder { b.MaxLevels = &n; return b }

// Type implements Builder.
func (GeoPointBuilder) Type() string { return TypeGeoPoint }

// Build implements Builder.
func (b GeoPointBuilder) Build(name string) (Mapper, error) {
	bs, err := newBase(name, TypeGeoPoint, "", nil, nil, Geo|Sort)
	if err != nil {
		return nil, err
	}
	if b.Latitude == "" {
		return nil, model.NewMappingConfigurationError(name, "latitude", "is required")
	}
	if b.Longitude == "" {
		return nil, model.NewMappingConfigurationError(name, "longitude", "is required")
	}
	levels := DefaultGeoMaxLevels
	if b.MaxLevels != nil {
		levels = *b.MaxLevels
		if levels < 1 || levels > index.MaxGeohashLevels {
			return nil, model.NewMappingConfigurationError(name, "max_levels",
				fmt.Sprintf("must be between 1 and %d", index.MaxGeohashLevels))
		}
	}
	bs.sorted = true
	return &GeoPointMapper{base: bs, latitude: b.Latitude, longitude: b.Longitude, levels: levels}, nil
}

// GeoPointMapper indexes a point built from two columns. Column existence
// is only verified when rows are encoded.
type GeoPointMapper struct {
	base
	latitude  string
	longitude string
	levels    int
}

// Columns implements Mapper.
func (m *GeoPointMapper) Columns() []string { return []string{m.latitude, m.longitude} }

// Levels returns the indexed geohash depth.
func (m *GeoPointMapper) Levels() int { return m.levels }

// Encode implements Mapper.
func (m *GeoPointMapper) Encode(row model.Row, doc *index.Document) error {
	latV, ok := row.Column(m.latitude)
	if !ok {
		return model.NewMappingConfigurationError(m.name, "latitude", fmt.Sprintf("column %q not found", m.latitude))
	}
	lonV, ok := row.Column(m.longitude)
	if !ok {
		return model.NewMappingConfigurationError(m.name, "longitude", fmt.Sprintf("column %q not found", m.longitude))
	}
	if latV.IsNull() && lonV.IsNull() {
		return nil
	}
	if latV.IsNull() || lonV.IsNull() {
		return m.coercionError(model.List(latV, lonV), errors.New("latitude and longitude must both be set"))
	}

	p, err := m.Point(latV, lonV)
	if err != nil {
		return err
	}
	doc.AddPoint(m.name, p)
	field := index.GeohashField(m.name)
	hash := index.Geohash(p, m.levels)
	for l := 1; l <= m.levels; l++ {
		doc.AddTerm(field, hash[:l])
	}
	return nil
}

// Point coerces two literals into a validated point.
func (m *GeoPointMapper) Point(latitude, longitude any) (index.GeoPoint, error) {
	lat, err := toFloat64(latitude)
	if err != nil {
		return index.GeoPoint{}, m.coercionError(latitude, err)
	}
	if !index.ValidLatitude(lat) {
		return index.GeoPoint{}, m.coercionError(latitude, errors.New("latitude must be in [-90, 90]"))
	}
	lon, err := toFloat64(longitude)
	if err != nil {
		return index.GeoPoint{}, m.coercionError(longitude, err)
	}
	if !index.ValidLongitude(lon) {
		return index.GeoPoint{}, m.coercionError(longitude, errors.New("longitude must be in [-180, 180]"))
	}
	return index.GeoPoint{Lat: lat, Lon: lon}, nil
}

// DistanceQuery implements Spatial.
func (m *GeoPointMapper) DistanceQuery(center index.GeoPoint, minMeters, maxMeters float64) index.Query {
	return index.GeoDistanceQuery{Field: m.name, Center: center, MinMeters: minMeters, MaxMeters: maxMeters, Levels: m.levels}
}

// BBoxQuery implements Spatial.
func (m *GeoPointMapper) BBoxQuery(minLat, maxLat, minLon, maxLon float64) index.Query {
	return index.GeoBBoxQuery{Field: m.name, MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon, Levels: m.levels}
}
