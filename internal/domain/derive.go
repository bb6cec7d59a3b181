package domain

import "math"

// EarthRadiusKm is the sphere radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Derive fills the computed fields of a validated trip: signed duration
// in seconds, haversine distance, average speed, and the pickup
// hour/weekday. Duration and distance are computed first because speed
// depends on both. A non-positive duration leaves SpeedKmh nil; speed is
// an explicit optional, never a sentinel value.
func Derive(t Trip) Trip {
	t.DurationSec = t.DropoffTime.Sub(t.PickupTime).Seconds()
	t.DistanceKm = Haversine(t.PickupLat, t.PickupLon, t.DropoffLat, t.DropoffLon)

	t.SpeedKmh = nil
	if t.DurationSec > 0 {
		speed := t.DistanceKm / (t.DurationSec / 3600.0)
		t.SpeedKmh = &speed
	}

	t.PickupHour = t.PickupTime.Hour()
	t.PickupDay = t.PickupTime.Weekday().String()
	return t
}

// Haversine returns the great-circle distance in kilometers between two
// points given as (lat, lon) degree pairs. The distance from a point to
// itself is zero and the function is symmetric in its endpoints. NaN
// coordinates propagate to a NaN distance.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
