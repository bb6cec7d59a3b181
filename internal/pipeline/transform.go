package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

// Result carries the transformed tables and the row accounting for one
// run. Excluded is always populated, header-only when nothing was
// excluded.
type Result struct {
	Cleaned  *dataset.Table
	Excluded *dataset.Table

	DuplicatesRemoved      int
	DroppedMissingRequired int
	DroppedBadTimestamp    int
	CoordRevalidationDrops int
	ExcludedByReason       map[domain.Reason]int
}

// tripRow pairs a surviving raw row with its parsed, derived trip.
type tripRow struct {
	cells []string
	trip  domain.Trip
}

// Transform applies the full cleaning sequence to a loaded table:
// dedup, required-column check, row validation, feature derivation,
// exclusion classification, coordinate standardization, and rounding.
// The input table is not modified. Statistics for the z columns are
// computed over the retained rows only, after all exclusions are final,
// so the result is independent of processing order.
func Transform(table *dataset.Table, logger *slog.Logger) (*Result, error) {
	work := table.Clone()
	result := &Result{ExcludedByReason: make(map[domain.Reason]int)}

	result.DuplicatesRemoved = work.Dedup()
	logger.Info("deduplicated", "removed", result.DuplicatesRemoved, "rows", len(work.Rows))

	colIdx, err := requiredIndexes(work)
	if err != nil {
		return nil, err
	}

	parsed := make([]tripRow, 0, len(work.Rows))
	for _, row := range work.Rows {
		row := row
		trip, cause, ok := domain.ParseTrip(func(col string) string { return row[colIdx[col]] })
		if !ok {
			switch cause {
			case domain.DropMissingRequired:
				result.DroppedMissingRequired++
			case domain.DropBadTimestamp:
				result.DroppedBadTimestamp++
			}
			continue
		}
		parsed = append(parsed, tripRow{cells: row, trip: domain.Derive(trip)})
	}
	logger.Info("validated rows",
		"dropped_missing_required", result.DroppedMissingRequired,
		"dropped_bad_timestamp", result.DroppedBadTimestamp,
		"rows", len(parsed),
	)

	var retained, excludedRows []tripRow
	var reasons []domain.Reason
	for _, tr := range parsed {
		if reason, excluded := domain.Classify(tr.trip); excluded {
			result.ExcludedByReason[reason]++
			excludedRows = append(excludedRows, tr)
			reasons = append(reasons, reason)
			continue
		}
		retained = append(retained, tr)
	}
	logger.Info("classified exclusions", "excluded", len(excludedRows), "retained", len(retained))

	// Defensive re-validation: classification already routed every NaN
	// coordinate to the exclusion log, so this prunes nothing unless
	// that invariant is broken.
	kept := retained[:0]
	for _, tr := range retained {
		if tr.trip.HasInvalidCoords() {
			result.CoordRevalidationDrops++
			continue
		}
		kept = append(kept, tr)
	}
	retained = kept
	if result.CoordRevalidationDrops > 0 {
		logger.Warn("dropped retained rows with invalid coordinates", "rows", result.CoordRevalidationDrops)
	}

	shape := buildShape(work.Columns, colIdx)
	result.Excluded = buildExcluded(shape, excludedRows, reasons)

	cleaned, err := buildCleaned(shape, retained)
	if err != nil {
		return nil, err
	}
	result.Cleaned = cleaned
	logger.Info("standardized coordinates", "cleaned_rows", len(cleaned.Rows))

	return result, nil
}

// requiredIndexes resolves the six required columns, reporting every
// missing one in a single schema error.
func requiredIndexes(t *dataset.Table) (map[string]int, error) {
	idx := make(map[string]int, len(domain.RequiredColumns))
	var missing []string
	for _, col := range domain.RequiredColumns {
		i, ok := t.ColumnIndex(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		idx[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSchema, strings.Join(missing, ", "))
	}
	return idx, nil
}

// outputShape is the pre-normalization output layout: the raw columns
// with the derived columns assigned into them. A derived column that
// already exists in the raw header keeps its position; new ones are
// appended in derivation order.
type outputShape struct {
	columns []string

	pickup, dropoff                              int
	pickupLon, pickupLat, dropoffLon, dropoffLat int
	duration, distance, speed, hour, day         int
}

func buildShape(rawColumns []string, colIdx map[string]int) outputShape {
	t := &dataset.Table{Columns: append([]string(nil), rawColumns...)}
	shape := outputShape{
		pickup:     colIdx[domain.ColPickupDatetime],
		dropoff:    colIdx[domain.ColDropoffDatetime],
		pickupLon:  colIdx[domain.ColPickupLongitude],
		pickupLat:  colIdx[domain.ColPickupLatitude],
		dropoffLon: colIdx[domain.ColDropoffLongitude],
		dropoffLat: colIdx[domain.ColDropoffLatitude],
	}
	shape.duration = t.EnsureColumn(domain.ColTripDuration)
	shape.distance = t.EnsureColumn(domain.ColTripDistanceKm)
	shape.speed = t.EnsureColumn(domain.ColSpeedKmph)
	shape.hour = t.EnsureColumn(domain.ColPickupHour)
	shape.day = t.EnsureColumn(domain.ColPickupDayofweek)
	shape.columns = t.Columns
	return shape
}

// renderRow lays out one surviving row in the pre-normalization shape:
// passthrough cells verbatim, timestamps re-serialized canonically,
// coordinates re-formatted from their parsed values, and the derived
// features. rounded selects the cleaned output's rounding of distance
// and speed; the exclusion log keeps full precision.
func renderRow(shape outputShape, tr tripRow, rounded bool) []string {
	out := make([]string, len(shape.columns))
	copy(out, tr.cells)

	trip := tr.trip
	out[shape.pickup] = trip.PickupTime.Format(domain.TimestampLayout)
	out[shape.dropoff] = trip.DropoffTime.Format(domain.TimestampLayout)
	out[shape.pickupLon] = formatFloat(trip.PickupLon)
	out[shape.pickupLat] = formatFloat(trip.PickupLat)
	out[shape.dropoffLon] = formatFloat(trip.DropoffLon)
	out[shape.dropoffLat] = formatFloat(trip.DropoffLat)

	distance := trip.DistanceKm
	speed := trip.SpeedKmh
	if rounded {
		distance = domain.Round(distance, domain.DistancePrecision)
		if speed != nil {
			s := domain.Round(*speed, domain.SpeedPrecision)
			speed = &s
		}
	}
	out[shape.duration] = formatFloat(trip.DurationSec)
	out[shape.distance] = formatFloat(distance)
	out[shape.speed] = formatSpeed(speed)
	out[shape.hour] = strconv.Itoa(trip.PickupHour)
	out[shape.day] = trip.PickupDay
	return out
}

func buildExcluded(shape outputShape, rows []tripRow, reasons []domain.Reason) *dataset.Table {
	excluded := &dataset.Table{Columns: append([]string(nil), shape.columns...)}
	reasonIdx := excluded.EnsureColumn(domain.ColExcludeReason)
	for i, tr := range rows {
		row := renderRow(shape, tr, false)
		row = append(row, make([]string, len(excluded.Columns)-len(row))...)
		row[reasonIdx] = string(reasons[i])
		excluded.Rows = append(excluded.Rows, row)
	}
	return excluded
}

// buildCleaned appends the z-scored coordinate columns and renders the
// retained rows with rounded distance and speed. A zero-variance
// coordinate column over a non-empty retained set is fatal; an empty
// retained set skips standardization and yields a header-only table.
func buildCleaned(shape outputShape, retained []tripRow) (*dataset.Table, error) {
	cleaned := &dataset.Table{Columns: append([]string(nil), shape.columns...)}
	zIdx := make([]int, len(domain.NormalizedColumns))
	for i, col := range domain.NormalizedColumns {
		zIdx[i] = cleaned.EnsureColumn(col + domain.ZSuffix)
	}

	stats := make([]domain.Stats, len(domain.NormalizedColumns))
	if len(retained) > 0 {
		values := make([]float64, len(retained))
		for i, col := range domain.NormalizedColumns {
			for j, tr := range retained {
				values[j], _ = tr.trip.Coordinate(col)
			}
			s := domain.ColumnStats(values)
			if s.Std == 0 {
				return nil, fmt.Errorf("%w: zero variance in %s over %d retained rows",
					domain.ErrDegenerateInput, col, len(retained))
			}
			stats[i] = s
		}
	}

	for _, tr := range retained {
		row := renderRow(shape, tr, true)
		row = append(row, make([]string, len(cleaned.Columns)-len(row))...)
		for i, col := range domain.NormalizedColumns {
			v, _ := tr.trip.Coordinate(col)
			row[zIdx[i]] = formatFloat(domain.ZScore(v, stats[i]))
		}
		cleaned.Rows = append(cleaned.Rows, row)
	}
	return cleaned, nil
}

// formatFloat renders a numeric cell in the shortest exact decimal
// form. NaN renders as the empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSpeed(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
