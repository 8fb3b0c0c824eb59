package geo

import (
	"math"
	"time"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// ResponderSpeedMetersPerHour assumes 30 km/h average travel speed in an
	// urban emergency.
	ResponderSpeedMetersPerHour = 30000.0
)

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Distance returns the great-circle distance between two points in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DistanceBetween is Distance over two Points.
func DistanceBetween(a, b Point) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// ETAMinutes estimates arrival time in whole minutes for a responder
// travelling distanceMeters at the assumed average speed.
func ETAMinutes(distanceMeters float64) int {
	if distanceMeters <= 0 {
		return 0
	}
	hours := distanceMeters / ResponderSpeedMetersPerHour
	return int(math.Ceil(hours * 60))
}

// ETA returns the estimated arrival timestamp from now.
func ETA(distanceMeters float64, now time.Time) time.Time {
	return now.Add(time.Duration(ETAMinutes(distanceMeters)) * time.Minute)
}

// BoundingBox returns a lat/lon box that fully contains the circle of
// radiusMeters around the center. Used to pre-filter candidates before the
// exact haversine check.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radiusMeters / EarthRadiusMeters * 180 / math.Pi
	lonDelta := latDelta
	if cos := math.Cos(lat * math.Pi / 180); cos > 1e-9 {
		lonDelta = latDelta / cos
	}
	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}
