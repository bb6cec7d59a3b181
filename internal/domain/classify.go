package domain

import "math"

// MaxSpeedKmh is the exclusion threshold for implausible average speeds.
const MaxSpeedKmh = 120.0

// Reason labels why a derived trip was excluded from the cleaned output.
// The string values appear verbatim in the exclusion log's
// exclude_reason column.
type Reason string

// Exclusion reasons in the priority order Classify applies them. A trip
// matching several receives only the first.
const (
	ReasonNegativeOrZeroDuration Reason = "negative_or_zero_duration"
	ReasonMissingOrInvalidCoords Reason = "missing_or_invalid_coords"
	ReasonZeroOrNegativeDistance Reason = "zero_or_negative_distance"
	ReasonUnrealisticSpeed       Reason = "unrealistic_speed"
	ReasonExtremeCoords          Reason = "extreme_coords"
)

// Reasons lists every exclusion reason in priority order.
var Reasons = []Reason{
	ReasonNegativeOrZeroDuration,
	ReasonMissingOrInvalidCoords,
	ReasonZeroOrNegativeDistance,
	ReasonUnrealisticSpeed,
	ReasonExtremeCoords,
}

// Classify returns the first exclusion reason a derived trip matches, or
// false when the trip is clean. NaN comparisons are false, so a NaN
// distance or speed never trips a threshold check; NaN coordinates are
// caught by ReasonMissingOrInvalidCoords before any check that would
// involve them. The nil-speed guard is unreachable through the priority
// order (a non-positive duration matches first) but keeps the check
// total.
func Classify(t Trip) (Reason, bool) {
	switch {
	case t.DurationSec <= 0:
		return ReasonNegativeOrZeroDuration, true
	case t.HasInvalidCoords():
		return ReasonMissingOrInvalidCoords, true
	case t.DistanceKm <= 0:
		return ReasonZeroOrNegativeDistance, true
	case t.SpeedKmh != nil && *t.SpeedKmh > MaxSpeedKmh:
		return ReasonUnrealisticSpeed, true
	case math.Abs(t.PickupLat) > 90 || math.Abs(t.DropoffLat) > 90 ||
		math.Abs(t.PickupLon) > 180 || math.Abs(t.DropoffLon) > 180:
		return ReasonExtremeCoords, true
	default:
		return "", false
	}
}
