package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw dataset columns the pipeline depends on.
const (
	ColPickupDatetime   = "pickup_datetime"
	ColDropoffDatetime  = "dropoff_datetime"
	ColPickupLongitude  = "pickup_longitude"
	ColPickupLatitude   = "pickup_latitude"
	ColDropoffLongitude = "dropoff_longitude"
	ColDropoffLatitude  = "dropoff_latitude"
)

// Columns written by the pipeline.
const (
	ColTripDuration    = "trip_duration"
	ColTripDistanceKm  = "trip_distance_km"
	ColSpeedKmph       = "speed_kmph"
	ColPickupHour      = "pickup_hour"
	ColPickupDayofweek = "pickup_dayofweek"
	ColExcludeReason   = "exclude_reason"
)

// RequiredColumns lists the raw columns a usable row must populate, in
// the order they are validated and reported.
var RequiredColumns = []string{
	ColPickupDatetime,
	ColDropoffDatetime,
	ColPickupLongitude,
	ColPickupLatitude,
	ColDropoffLongitude,
	ColDropoffLatitude,
}

// DerivedColumns lists the columns Derive produces, in the order they
// are added to the cleaned output.
var DerivedColumns = []string{
	ColTripDuration,
	ColTripDistanceKm,
	ColSpeedKmph,
	ColPickupHour,
	ColPickupDayofweek,
}

// NormalizedColumns lists the coordinate columns that receive a
// standardized companion column, suffixed ZSuffix, in this order.
var NormalizedColumns = []string{
	ColPickupLongitude,
	ColPickupLatitude,
	ColDropoffLongitude,
	ColDropoffLatitude,
}

// ZSuffix is appended to a coordinate column name to form its
// standardized companion, e.g. pickup_latitude -> pickup_latitude_z.
const ZSuffix = "_z"

// TimestampLayout is the canonical form pickup/dropoff times are
// re-serialized into on output.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampLayouts are the accepted input forms, tried in order. The
// fractional-second digits are optional. The data is timezone-naive, so
// no offset forms are accepted and everything parses in UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Trip is the typed form of one raw row after validation. Coordinates
// hold NaN when the source cell was present but not numeric; rows with
// empty required cells or unparseable timestamps never become Trips.
type Trip struct {
	PickupTime  time.Time
	DropoffTime time.Time
	PickupLon   float64
	PickupLat   float64
	DropoffLon  float64
	DropoffLat  float64

	// Filled by Derive.
	DurationSec float64
	DistanceKm  float64
	SpeedKmh    *float64 // nil unless duration is positive
	PickupHour  int
	PickupDay   string
}

// DropCause labels why a row was structurally dropped before
// classification. Dropped rows are counted, not logged per row.
type DropCause string

const (
	DropMissingRequired DropCause = "missing_required_value"
	DropBadTimestamp    DropCause = "unparseable_timestamp"
)

// ParseTrip validates one row through the get accessor, which returns
// the cell for a column name. A row is dropped when any required cell is
// empty after trimming, or when a timestamp fails to parse; the returned
// DropCause distinguishes the two. Non-empty coordinate cells that are
// not numeric become NaN so classification can report them.
func ParseTrip(get func(column string) string) (Trip, DropCause, bool) {
	for _, col := range RequiredColumns {
		if strings.TrimSpace(get(col)) == "" {
			return Trip{}, DropMissingRequired, false
		}
	}

	pickup, ok := ParseTimestamp(get(ColPickupDatetime))
	if !ok {
		return Trip{}, DropBadTimestamp, false
	}
	dropoff, ok := ParseTimestamp(get(ColDropoffDatetime))
	if !ok {
		return Trip{}, DropBadTimestamp, false
	}

	return Trip{
		PickupTime:  pickup,
		DropoffTime: dropoff,
		PickupLon:   parseCoordinate(get(ColPickupLongitude)),
		PickupLat:   parseCoordinate(get(ColPickupLatitude)),
		DropoffLon:  parseCoordinate(get(ColDropoffLongitude)),
		DropoffLat:  parseCoordinate(get(ColDropoffLatitude)),
	}, "", true
}

// ParseTimestamp parses a timestamp cell against the accepted layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseCoordinate maps non-numeric content to NaN rather than failing
// the run. ParseFloat also accepts literal "NaN", which maps the same.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// HasInvalidCoords reports whether any coordinate failed numeric parsing.
func (t Trip) HasInvalidCoords() bool {
	return math.IsNaN(t.PickupLat) || math.IsNaN(t.PickupLon) ||
		math.IsNaN(t.DropoffLat) || math.IsNaN(t.DropoffLon)
}

// Coordinate returns the coordinate field named by a raw column.
func (t Trip) Coordinate(col string) (float64, bool) {
	switch col {
	case ColPickupLongitude:
		return t.PickupLon, true
	case ColPickupLatitude:
		return t.PickupLat, true
	case ColDropoffLongitude:
		return t.DropoffLon, true
	case ColDropoffLatitude:
		return t.DropoffLat, true
	}
	return 0, false
}
