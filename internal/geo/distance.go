// Package geo computes great-circle distances between GPS positions.
package geo

import "math"

// EarthRadiusM is the mean Earth radius used by Distance, in meters.
const EarthRadiusM = 6371000.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceTo returns the haversine distance from p to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	return Distance(p.Lat, p.Lon, q.Lat, q.Lon)
}

// Distance returns the haversine great-circle distance in meters between two
// positions given in degrees. Inputs are not range checked.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := radians(lat1)
	φ2 := radians(lat2)
	Δφ := radians(lat2 - lat1)
	Δλ := radians(lon2 - lon1)

	sinΔφ := math.Sin(Δφ / 2)
	sinΔλ := math.Sin(Δλ / 2)
	a := sinΔφ*sinΔφ + math.Cos(φ1)*math.Cos(φ2)*sinΔλ*sinΔλ
	// rounding can push a slightly past 1 for antipodal points
	if a > 1 {
		a = 1
	}
	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
