// Package analytics derives speed and schedule lateness from vehicle position trajectories
package analytics

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean earth radius used for great circle distances
const EarthRadiusKm = 6371.0

const degreesToRadians = math.Pi / 180

// Distance returns the haversine great circle distance in kilometers between two coordinates.
// Coordinates are not range checked.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * degreesToRadians
	phi2 := lat2 * degreesToRadians
	dPhi := (lat2 - lat1) * degreesToRadians
	dLambda := (lon2 - lon1) * degreesToRadians

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// SecondsSinceMidnight returns the time of day of t in seconds, 0 to 86399.
// Dates are ignored so the same time of day on different dates normalizes identically.
func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
