package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

//go:embed schema_postgres.sql
var schemaPostgres string

// Postgres is the TripStore for shared deployments.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Debug("opened postgres store")
	return &Postgres{db: db, logger: logger}, nil
}

// EnsureSchema runs the embedded DDL one statement at a time; the
// extended query protocol rejects multi-statement strings.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaPostgres, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	p.logger.Debug("ensured postgres schema")
	return nil
}

func (p *Postgres) InsertTrips(ctx context.Context, rows []TripRow) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	vendorStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vendors (vendor_id) VALUES ($1) ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare vendor insert: %w", err)
	}
	defer vendorStmt.Close()

	tripStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trips (
			trip_id, vendor_id, pickup_datetime, dropoff_datetime,
			passenger_count, store_and_fwd_flag, trip_duration,
			trip_distance_km, speed_kmph, pickup_hour, pickup_dayofweek
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trip_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare trip insert: %w", err)
	}
	defer tripStmt.Close()

	locationStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locations (
			trip_id, pickup_longitude, pickup_latitude,
			dropoff_longitude, dropoff_latitude
		) VALUES ($1, $2, $3, $4, $5)`)
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
			row.PickupDatetime, row.DropoffDatetime,
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

func (p *Postgres) ListTrips(ctx context.Context, limit int) ([]Trip, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT trip_id, vendor_id, pickup_datetime, dropoff_datetime,
		       passenger_count, store_and_fwd_flag, trip_duration,
		       trip_distance_km, speed_kmph, pickup_hour, pickup_dayofweek
		FROM trips
		ORDER BY pickup_datetime, trip_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		var pickup, dropoff time.Time
		var vendor, passengers sql.NullInt64
		var flag sql.NullString
		var speed sql.NullFloat64
		if err := rows.Scan(
			&t.TripID, &vendor, &pickup, &dropoff,
			&passengers, &flag, &t.TripDuration,
			&t.TripDistanceKm, &speed, &t.PickupHour, &t.PickupDayofweek,
		); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.PickupDatetime = pickup.Format(domain.TimestampLayout)
		t.DropoffDatetime = dropoff.Format(domain.TimestampLayout)
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

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
