// Package domain models NYC taxi trip records and the pure per-row
// transforms of the cleaning pipeline: validation, feature derivation,
// exclusion classification, and coordinate standardization.
//
// # Data Source
//
// Raw rows follow the Kaggle "NYC Taxi Trip Duration" layout exported
// from the TLC trip records:
//
//	id, vendor_id, pickup_datetime, dropoff_datetime, passenger_count,
//	pickup_longitude, pickup_latitude, dropoff_longitude,
//	dropoff_latitude, store_and_fwd_flag, trip_duration
//
// Only the six RequiredColumns are interpreted here; everything else
// passes through the pipeline untouched. The raw trip_duration column,
// when present, is overwritten by the recomputed value so the output is
// internally consistent.
//
// # Timestamps
//
// Timestamps are timezone-naive local times, parsed in UTC. The primary
// form is "2006-01-02 15:04:05"; a 'T' separator, optional fractional
// seconds, and bare dates are also accepted. Anything else makes the row
// structurally unusable: it is dropped and counted, not logged as an
// exclusion, because no feature can be derived from it.
//
// # Derived Fields
//
//	trip_duration     dropoff - pickup in seconds, signed. Negative
//	                  values are preserved for classification rather
//	                  than clamped.
//	trip_distance_km  haversine distance on a 6371.0 km sphere.
//	speed_kmph        distance / (duration/3600), only defined for
//	                  positive durations. Modeled as *float64: nil means
//	                  undefined, never a magic number.
//	pickup_hour       0-23.
//	pickup_dayofweek  English weekday name, "Monday" through "Sunday".
//
// # Exclusion Taxonomy
//
// A derived trip is excluded for the first matching reason, checked in
// this order:
//
//	negative_or_zero_duration  duration <= 0
//	missing_or_invalid_coords  any coordinate NaN (non-numeric cell)
//	zero_or_negative_distance  distance <= 0
//	unrealistic_speed          speed > 120 km/h
//	extreme_coords             |lat| > 90 or |lon| > 180
//
// NaN never satisfies a comparison, so rows with undefined speed or
// distance fall through those checks instead of matching them.
//
// # Standardization
//
// The four coordinate columns receive z-scored companions (suffix "_z")
// computed with the population standard deviation over retained rows
// only, after all exclusions are final. A zero-variance column is
// reported as ErrDegenerateInput instead of emitting infinities.
package domain
