package geospatial

import (
	"math"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// PathLength sums the great-circle distance in meters along points,
// stepping over invalid fixes.
func PathLength(points []domain.GeoPoint) float64 {
	var total float64
	var prev *domain.GeoPoint
	for i := range points {
		p := &points[i]
		if !p.Valid() {
			continue
		}
		if prev != nil {
			total += Haversine(prev.Lat, prev.Lon, p.Lat, p.Lon)
		}
		prev = p
	}
	return total
}

// Bounds returns the smallest box containing the valid points; ok is false
// when there are none.
func Bounds(points []domain.GeoPoint) (b domain.Bounds, ok bool) {
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		if !ok {
			b = domain.Bounds{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon}
			ok = true
			continue
		}
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b, ok
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
