package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

// SQLite is the default, file-backed TripStore. Datetimes are stored as
// canonical-layout text, which sorts chronologically.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the database file with WAL mode and
// foreign keys enabled. SQLite allows one writer at a time, so the pool
// is capped at a single connection.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	logger.Debug("opened sqlite store", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQLite); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.Debug("ensured sqlite schema")
	return nil
}

func (s *SQLite) InsertTrips(ctx context.Context, rows []TripRow) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	vendorStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO vendors (vendor_id) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare vendor insert: %w", err)
	}
	defer vendorStmt.Close()

	tripStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trips (
			trip_id, vendor_id, pickup_datetime, dropoff_datetime,
			passenger_count, store_and_fwd_flag, trip_duration,
			trip_distance_km, speed_kmph, pickup_hour, pickup_dayofweek
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare trip insert: %w", err)
	}
	defer tripStmt.Close()

	locationStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locations (
			trip_id, pickup_longitude, pickup_latitude,
			dropoff_longitude, dropoff_latitude
		) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare location insert: %w", err)
	}
	defer locationStmt.Close()

	inserted := 0
	for _, row := range rows {
		if row.VendorID != nil {
			if _, err := vendorStmt.ExecContext(ctx, *row.VendorID); err != nil {
				return 0, fmt.Errorf("insert vendor %d: %w", *row.VendorID, err)
			}
		}

		res, err := tripStmt.ExecContext(ctx,
			row.TripID, row.VendorID,
			row.PickupDatetime.Format(domain.TimestampLayout),
			row.DropoffDatetime.Format(domain.TimestampLayout),
			row.PassengerCount, row.StoreAndFwdFlag,
			row.TripDuration, row.TripDistanceKm, row.SpeedKmph,
			row.PickupHour, row.PickupDayofweek,
		)
		if err != nil {
			return 0, fmt.Errorf("insert trip %d: %w", row.TripID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert trip %d: %w", row.TripID, err)
		}
		if n == 0 {
			// Already loaded; skip the location row too.
			continue
		}
		inserted++

		if _, err := locationStmt.ExecContext(ctx,
			row.TripID, row.PickupLongitude, row.PickupLatitude,
			row.DropoffLongitude, row.DropoffLatitude,
		); err != nil {
			return 0, fmt.Errorf("insert location for trip %d: %w", row.TripID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

func (s *SQLite) ListTrips(ctx context.Context, limit int) ([]Trip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, vendor_id, pickup_datetime, dropoff_datetime,
		       passenger_count, store_and_fwd_flag, trip_duration,
		       trip_distance_km, speed_kmph, pickup_hour, pickup_dayofweek
		FROM trips
		ORDER BY pickup_datetime, trip_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		var vendor, passengers sql.NullInt64
		var flag sql.NullString
		var speed sql.NullFloat64
		if err := rows.Scan(
			&t.TripID, &vendor, &t.PickupDatetime, &t.DropoffDatetime,
			&passengers, &flag, &t.TripDuration,
			&t.TripDistanceKm, &speed, &t.PickupHour, &t.PickupDayofweek,
		); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.VendorID = nullableInt(vendor)
		t.PassengerCount = nullableInt(passengers)
		t.StoreAndFwdFlag = nullableString(flag)
		t.SpeedKmph = nullableFloat(speed)
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return trips, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func nullableString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func nullableFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
