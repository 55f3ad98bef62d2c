// Package geo provides privacy-coarsened geocoding and great-circle
// distance math for the matching pipeline.
package geo

import "math"

// earthRadiusKm is the mean radius of the Earth.
const earthRadiusKm = 6371.0

// coarseFactor rounds coordinates to 2 decimal degrees, roughly 1 km.
const coarseFactor = 100

// Coarsen reduces a coordinate to 2 decimal degrees of precision. Every
// coordinate coming from a provider must pass through here before it is
// returned or persisted anywhere; member and need locations are never
// stored at higher precision.
func Coarsen(v float64) float64 {
	return math.Round(v*coarseFactor) / coarseFactor
}

// Haversine returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
