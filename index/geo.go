package index

import "math"

const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ValidLatitude reports whether lat is within [-90, 90].
func ValidLatitude(lat float64) bool { return lat >= -90 && lat <= 90 }

// ValidLongitude reports whether lon is within [-180, 180].
func ValidLongitude(lon float64) bool { return lon >= -180 && lon <= 180 }

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxGeohashLevels is the longest geohash cell the index stores.
const MaxGeohashLevels = 12

// Geohash encodes p as a geohash of the given length.
func Geohash(p GeoPoint, length int) string {
	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	out := make([]byte, 0, length)
	even := true
	bit, ch := 0, 0
	for len(out) < length {
		if even {
			mid := (lonLo + lonHi) / 2
			if p.Lon >= mid {
				ch = ch<<1 | 1
				lonLo = mid
			} else {
				ch <<= 1
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if p.Lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch <<= 1
				latHi = mid
			}
		}
		even = !even
		bit++
		if bit == 5 {
			out = append(out, geohashAlphabet[ch])
			bit, ch = 0, 0
		}
	}
	return string(out)
}

// GeohashField is the hidden field holding the geohash cells of a point field.
func GeohashField(field string) string { return field + "$geohash" }

// boundingBox returns the box enclosing a circle around center.
func boundingBox(center GeoPoint, radius float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radius / earthRadiusMeters * 180 / math.Pi
	minLat = math.Max(-90, center.Lat-dLat)
	maxLat = math.Min(90, center.Lat+dLat)
	if minLat == -90 || maxLat == 90 {
		return minLat, maxLat, -180, 180
	}
	dLon := dLat / math.Cos(center.Lat*math.Pi/180)
	minLon = center.Lon - dLon
	maxLon = center.Lon + dLon
	if minLon < -180 || maxLon > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLon, maxLon
}

// coveringCell returns the longest geohash (up to levels) that contains the
// whole box, or "" if none does.
func coveringCell(minLat, maxLat, minLon, maxLon float64, levels int) string {
	if levels <= 0 {
		return ""
	}
	a := Geohash(GeoPoint{Lat: minLat, Lon: minLon}, levels)
	b := Geohash(GeoPoint{Lat: maxLat, Lon: maxLon}, levels)
	n := 0
	for n < len(a) && a[n] == b[n] {
		n++
	}
	return a[:n]
}
