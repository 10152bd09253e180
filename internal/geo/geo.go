// Package geo holds the great-circle math behind nearest-officer matching.
// Everything here is a pure computation over coordinates.
package geo

import "math"

const earthRadiusKM = 6371.0

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceKM returns the haversine great-circle distance between two points
// in kilometres.
func DistanceKM(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// NearestIndex returns the index of the point closest to origin. Ties keep
// the first encountered minimum, so the result is stable for a given input
// order. The second return is false when points is empty.
func NearestIndex(origin Point, points []Point) (int, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for i, p := range points {
		if d := DistanceKM(origin, p); d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
