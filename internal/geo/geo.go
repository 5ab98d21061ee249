// Package geo implements the distance capability the engine consumes. The
// engine never calls it directly with raw entities; callers pass coordinates.
package geo

import "math"

const earthRadiusKM = 6371.0

// Haversine computes the great-circle distance in kilometers between two
// coordinate pairs, rounded to two decimals.
type Haversine struct{}

// Distance returns the distance in km and whether it could be computed.
// Zero-valued coordinates on either side count as unknown.
func (Haversine) Distance(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	if (lat1 == 0 && lon1 == 0) || (lat2 == 0 && lon2 == 0) {
		return 0, false
	}

	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(earthRadiusKM*c*100) / 100, true
}
