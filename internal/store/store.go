// Package store persists cleaned trips in a relational database and
// serves them back to the read API. Two backends implement the same
// interface: SQLite (modernc, pure Go, the default) and Postgres (pgx).
//
// The schema follows the original warehouse layout: a vendors dimension,
// a trips fact table keyed by a deterministic trip_id, and a locations
// table holding the coordinate pairs, with indexes on the datetime and
// coordinate columns. Loading is idempotent: trips that already exist
// are skipped, so a reload after a failed batch never duplicates rows.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

// TripRow is the insert shape for one cleaned trip: the trips-table
// columns plus the coordinates destined for the locations table.
// Pointer fields persist as NULL when nil.
type TripRow struct {
	TripID          int64
	VendorID        *int64
	PickupDatetime  time.Time
	DropoffDatetime time.Time
	PassengerCount  *int64
	StoreAndFwdFlag *string
	TripDuration    int64
	TripDistanceKm  float64
	SpeedKmph       *float64
	PickupHour      int
	PickupDayofweek int

	PickupLongitude  float64
	PickupLatitude   float64
	DropoffLongitude float64
	DropoffLatitude  float64
}

// Trip is the read shape returned by ListTrips. Field names marshal to
// the column names, and NULL columns marshal to JSON null. Datetimes
// are serialized in the dataset's canonical layout.
type Trip struct {
	TripID          int64    `json:"trip_id"`
	VendorID        *int64   `json:"vendor_id"`
	PickupDatetime  string   `json:"pickup_datetime"`
	DropoffDatetime string   `json:"dropoff_datetime"`
	PassengerCount  *int64   `json:"passenger_count"`
	StoreAndFwdFlag *string  `json:"store_and_fwd_flag"`
	TripDuration    int64    `json:"trip_duration"`
	TripDistanceKm  float64  `json:"trip_distance_km"`
	SpeedKmph       *float64 `json:"speed_kmph"`
	PickupHour      int      `json:"pickup_hour"`
	PickupDayofweek int      `json:"pickup_dayofweek"`
}

// TripStore is the persistence interface shared by both backends.
type TripStore interface {
	// EnsureSchema creates the tables and indexes if they do not exist.
	EnsureSchema(ctx context.Context) error

	// InsertTrips inserts the rows in one transaction, skipping trips
	// whose trip_id is already present. Returns the number inserted.
	InsertTrips(ctx context.Context, rows []TripRow) (int, error)

	// ListTrips returns up to limit trips ordered by pickup time.
	ListTrips(ctx context.Context, limit int) ([]Trip, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend by driver name, sqlite or postgres.
func Open(driver, sqlitePath, databaseURL string, logger *slog.Logger) (TripStore, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(sqlitePath, logger)
	case "postgres":
		return OpenPostgres(databaseURL, logger)
	}
	return nil, fmt.Errorf("unknown db driver %q", driver)
}

var weekdayIndexes = map[string]int{
	"Monday":    0,
	"Tuesday":   1,
	"Wednesday": 2,
	"Thursday":  3,
	"Friday":    4,
	"Saturday":  5,
	"Sunday":    6,
}

// WeekdayIndex maps a weekday name to its stored index, Monday 0
// through Sunday 6.
func WeekdayIndex(name string) (int, bool) {
	i, ok := weekdayIndexes[name]
	return i, ok
}

// TripID derives a stable positive identifier from a trip's identity
// string, so reloading the same cleaned file maps every row to the same
// primary key.
func TripID(identity string) int64 {
	sum := sha256.Sum256([]byte(identity))
	return int64(binary.BigEndian.Uint64(sum[:8]) & math.MaxInt64)
}

// RowsFromTable parses a cleaned dataset into insert rows. The table
// must carry the required and derived columns of the cleaned layout;
// vendor_id, passenger_count, store_and_fwd_flag, and id are optional.
// The trip identity is the id cell when present, otherwise the joined
// timestamp and coordinate cells.
func RowsFromTable(table *dataset.Table) ([]TripRow, error) {
	indexes := make(map[string]int, len(domain.RequiredColumns)+len(domain.DerivedColumns))
	var missing []string
	for _, col := range domain.RequiredColumns {
		i, ok := table.ColumnIndex(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		indexes[col] = i
	}
	for _, col := range domain.DerivedColumns {
		i, ok := table.ColumnIndex(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		indexes[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSchema, strings.Join(missing, ", "))
	}

	optional := func(name string) int {
		if i, ok := table.ColumnIndex(name); ok {
			return i
		}
		return -1
	}
	idCol := optional("id")
	vendorCol := optional("vendor_id")
	passengerCol := optional("passenger_count")
	flagCol := optional("store_and_fwd_flag")

	rows := make([]TripRow, 0, len(table.Rows))
	for i, cells := range table.Rows {
		row, err := rowFromCells(cells, indexes, idCol, vendorCol, passengerCol, flagCol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowFromCells(cells []string, indexes map[string]int, idCol, vendorCol, passengerCol, flagCol int) (TripRow, error) {
	get := func(col string) string { return cells[indexes[col]] }
	num := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			return 0, fmt.Errorf("bad %s %q", col, get(col))
		}
		return v, nil
	}

	pickup, ok := domain.ParseTimestamp(get(domain.ColPickupDatetime))
	if !ok {
		return TripRow{}, fmt.Errorf("bad %s %q", domain.ColPickupDatetime, get(domain.ColPickupDatetime))
	}
	dropoff, ok := domain.ParseTimestamp(get(domain.ColDropoffDatetime))
	if !ok {
		return TripRow{}, fmt.Errorf("bad %s %q", domain.ColDropoffDatetime, get(domain.ColDropoffDatetime))
	}

	pickupLon, err := num(domain.ColPickupLongitude)
	if err != nil {
		return TripRow{}, err
	}
	pickupLat, err := num(domain.ColPickupLatitude)
	if err != nil {
		return TripRow{}, err
	}
	dropoffLon, err := num(domain.ColDropoffLongitude)
	if err != nil {
		return TripRow{}, err
	}
	dropoffLat, err := num(domain.ColDropoffLatitude)
	if err != nil {
		return TripRow{}, err
	}

	duration, err := num(domain.ColTripDuration)
	if err != nil {
		return TripRow{}, err
	}
	distance, err := num(domain.ColTripDistanceKm)
	if err != nil {
		return TripRow{}, err
	}

	var speed *float64
	if get(domain.ColSpeedKmph) != "" {
		v, err := num(domain.ColSpeedKmph)
		if err != nil {
			return TripRow{}, err
		}
		speed = &v
	}

	hour, err := strconv.Atoi(get(domain.ColPickupHour))
	if err != nil {
		return TripRow{}, fmt.Errorf("bad %s %q", domain.ColPickupHour, get(domain.ColPickupHour))
	}
	day, ok := WeekdayIndex(get(domain.ColPickupDayofweek))
	if !ok {
		return TripRow{}, fmt.Errorf("bad %s %q", domain.ColPickupDayofweek, get(domain.ColPickupDayofweek))
	}

	identity := ""
	if idCol >= 0 {
		identity = strings.TrimSpace(cells[idCol])
	}
	if identity == "" {
		identity = strings.Join([]string{
			get(domain.ColPickupDatetime), get(domain.ColDropoffDatetime),
			get(domain.ColPickupLongitude), get(domain.ColPickupLatitude),
			get(domain.ColDropoffLongitude), get(domain.ColDropoffLatitude),
		}, "|")
	}

	row := TripRow{
		TripID:          TripID(identity),
		PickupDatetime:  pickup,
		DropoffDatetime: dropoff,
		TripDuration:    int64(math.Round(duration)),
		TripDistanceKm:  distance,
		SpeedKmph:       speed,
		PickupHour:      hour,
		PickupDayofweek: day,

		PickupLongitude:  pickupLon,
		PickupLatitude:   pickupLat,
		DropoffLongitude: dropoffLon,
		DropoffLatitude:  dropoffLat,
	}

	if vendorCol >= 0 && cells[vendorCol] != "" {
		v, err := strconv.ParseInt(cells[vendorCol], 10, 64)
		if err != nil {
			return TripRow{}, fmt.Errorf("bad vendor_id %q", cells[vendorCol])
		}
		row.VendorID = &v
	}
	if passengerCol >= 0 && cells[passengerCol] != "" {
		v, err := strconv.ParseInt(cells[passengerCol], 10, 64)
		if err != nil {
			return TripRow{}, fmt.Errorf("bad passenger_count %q", cells[passengerCol])
		}
		row.PassengerCount = &v
	}
	if flagCol >= 0 && cells[flagCol] != "" {
		v := cells[flagCol]
		row.StoreAndFwdFlag = &v
	}

	return row, nil
}
