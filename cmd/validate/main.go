// Command validate checks a finished pipeline run for internal
// consistency. The raw, cleaned, and excluded files must partition
// cleanly, every cleaned row must satisfy the cleaning rules, every
// excluded row must carry the reason its values imply, the standardized
// columns must have zero mean and unit variance, and rerunning the
// transform must reproduce both outputs byte for byte.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw data/raw/train.csv \
//	  -cleaned data/processed/cleaned_train.csv \
//	  -excluded logs/excluded_records.csv
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nycmobility/taxi-trip-etl/internal/adapter/csvfile"
	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
	"github.com/nycmobility/taxi-trip-etl/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	raw := flag.String("raw", "data/raw/train.csv", "path to the raw input CSV")
	cleaned := flag.String("cleaned", "data/processed/cleaned_train.csv", "path to the cleaned output CSV")
	excluded := flag.String("excluded", "logs/excluded_records.csv", "path to the exclusion log CSV")
	flag.Parse()

	os.Exit(run(*raw, *cleaned, *excluded))
}

func run(rawPath, cleanedPath, excludedPath string) int {
	fmt.Println("=== Trip Pipeline Integrity Validation ===")
	fmt.Println()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rawTable, err := csvfile.NewReader(rawPath, logger).Read(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw CSV: %v\n", err)
		return 1
	}
	cleanedTable, err := csvfile.NewReader(cleanedPath, logger).Read(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load cleaned CSV: %v\n", err)
		return 1
	}
	excludedTable, err := csvfile.NewReader(excludedPath, logger).Read(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load excluded CSV: %v\n", err)
		return 1
	}

	result, err := pipeline.Transform(rawTable, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: rerun transform: %v\n", err)
		return 1
	}

	phases := []*phase{
		validatePartition(rawTable, cleanedTable, excludedTable, result),
		validateCleanedRows(cleanedTable),
		validateExclusionLog(excludedTable),
		validateStandardization(cleanedTable),
		validateReproducibility(ctx, logger, result, cleanedPath, excludedPath),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d raw, %d cleaned, %d excluded\n",
		len(rawTable.Rows), len(cleanedTable.Rows), len(excludedTable.Rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Partition ──
// The published files must hold exactly the rows the transform produces,
// with the right headers and no row in both outputs.

func validatePartition(raw, cleaned, excluded *dataset.Table, result *pipeline.Result) *phase {
	p := &phase{name: "Phase 1: Partition (counts and headers)"}

	if got, want := len(cleaned.Rows), len(result.Cleaned.Rows); got != want {
		p.errorf("cleaned row count: file has %d, transform produced %d", got, want)
	}
	if got, want := len(excluded.Rows), len(result.Excluded.Rows); got != want {
		p.errorf("excluded row count: file has %d, transform produced %d", got, want)
	}

	retained := len(raw.Rows) - result.DuplicatesRemoved -
		result.DroppedMissingRequired - result.DroppedBadTimestamp -
		result.CoordRevalidationDrops
	if retained != len(result.Cleaned.Rows)+len(result.Excluded.Rows) {
		p.errorf("partition: %d retained rows but %d cleaned + %d excluded",
			retained, len(result.Cleaned.Rows), len(result.Excluded.Rows))
	}

	if !equalColumns(cleaned.Columns, result.Cleaned.Columns) {
		p.errorf("cleaned header: file has %v, transform produced %v",
			cleaned.Columns, result.Cleaned.Columns)
	}
	if !equalColumns(excluded.Columns, result.Excluded.Columns) {
		p.errorf("excluded header: file has %v, transform produced %v",
			excluded.Columns, result.Excluded.Columns)
	}

	// When the input carries an id column, no id may appear in both outputs.
	if _, ok := raw.ColumnIndex("id"); !ok {
		return p
	}
	cleanedIDs := map[string]bool{}
	if i, ok := cleaned.ColumnIndex("id"); ok {
		for _, row := range cleaned.Rows {
			cleanedIDs[row[i]] = true
		}
	}
	if i, ok := excluded.ColumnIndex("id"); ok {
		for _, row := range excluded.Rows {
			if cleanedIDs[row[i]] {
				p.errorf("id %q appears in both cleaned and excluded outputs", row[i])
			}
		}
	}
	return p
}

// ── Phase 2: Cleaned rows ──
// Every cleaned row must satisfy the rules the cleaner enforces.

func validateCleanedRows(cleaned *dataset.Table) *phase {
	p := &phase{name: "Phase 2: Cleaned rows (cleaning rules)"}

	cols, err := requireColumns(cleaned,
		domain.ColPickupDatetime, domain.ColDropoffDatetime,
		domain.ColPickupLongitude, domain.ColPickupLatitude,
		domain.ColDropoffLongitude, domain.ColDropoffLatitude,
		domain.ColTripDuration, domain.ColTripDistanceKm, domain.ColSpeedKmph,
		domain.ColPickupHour, domain.ColPickupDayofweek)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	for i, row := range cleaned.Rows {
		line := i + 2
		pickup, perr := parseCanonical(row[cols[domain.ColPickupDatetime]])
		if perr != nil {
			p.errorf("line %d: pickup_datetime: %v", line, perr)
			continue
		}
		dropoff, derr := parseCanonical(row[cols[domain.ColDropoffDatetime]])
		if derr != nil {
			p.errorf("line %d: dropoff_datetime: %v", line, derr)
			continue
		}

		durationSec := dropoff.Sub(pickup).Seconds()
		if durationSec <= 0 {
			p.errorf("line %d: non-positive duration %v", line, durationSec)
		}
		if got := row[cols[domain.ColTripDuration]]; got != formatFloat(durationSec) {
			p.errorf("line %d: trip_duration %q does not match interval %v", line, got, durationSec)
		}

		coords, ok := parseCoords(p, line, row, cols)
		if !ok {
			continue
		}
		if math.Abs(coords.plat) > 90 || math.Abs(coords.dlat) > 90 ||
			math.Abs(coords.plon) > 180 || math.Abs(coords.dlon) > 180 {
			p.errorf("line %d: coordinate out of range", line)
		}

		rawKm := domain.Haversine(coords.plat, coords.plon, coords.dlat, coords.dlon)

		distCell := row[cols[domain.ColTripDistanceKm]]
		dist, err := strconv.ParseFloat(distCell, 64)
		switch {
		case err != nil:
			p.errorf("line %d: trip_distance_km %q: %v", line, distCell, err)
		case dist <= 0:
			p.errorf("line %d: non-positive distance %v", line, dist)
		case decimals(distCell) > domain.DistancePrecision:
			p.errorf("line %d: trip_distance_km %q has more than %d decimals", line, distCell, domain.DistancePrecision)
		case dist != domain.Round(rawKm, domain.DistancePrecision):
			p.errorf("line %d: trip_distance_km %v does not match coordinates (want %v)",
				line, dist, domain.Round(rawKm, domain.DistancePrecision))
		}

		speedCell := row[cols[domain.ColSpeedKmph]]
		speed, err := strconv.ParseFloat(speedCell, 64)
		wantSpeed := domain.Round(rawKm/(durationSec/3600), domain.SpeedPrecision)
		switch {
		case err != nil:
			p.errorf("line %d: speed_kmph %q: %v", line, speedCell, err)
		case speed <= 0 || speed > domain.MaxSpeedKmh:
			p.errorf("line %d: speed_kmph %v outside (0, %v]", line, speed, domain.MaxSpeedKmh)
		case decimals(speedCell) > domain.SpeedPrecision:
			p.errorf("line %d: speed_kmph %q has more than %d decimals", line, speedCell, domain.SpeedPrecision)
		case speed != wantSpeed:
			p.errorf("line %d: speed_kmph %v does not match distance and duration (want %v)", line, speed, wantSpeed)
		}

		if got, want := row[cols[domain.ColPickupHour]], strconv.Itoa(pickup.Hour()); got != want {
			p.errorf("line %d: pickup_hour %q, want %q", line, got, want)
		}
		if got, want := row[cols[domain.ColPickupDayofweek]], pickup.Weekday().String(); got != want {
			p.errorf("line %d: pickup_dayofweek %q, want %q", line, got, want)
		}

		for _, base := range domain.NormalizedColumns {
			zIdx, ok := cleaned.ColumnIndex(base + domain.ZSuffix)
			if !ok {
				continue
			}
			z, err := strconv.ParseFloat(row[zIdx], 64)
			if err != nil || math.IsNaN(z) || math.IsInf(z, 0) {
				p.errorf("line %d: %s%s %q is not finite", line, base, domain.ZSuffix, row[zIdx])
			}
		}
	}
	return p
}

// ── Phase 3: Exclusion log ──
// Each excluded row's reason must match what its own values imply, and
// the derived columns must carry full unrounded precision.

func validateExclusionLog(excluded *dataset.Table) *phase {
	p := &phase{name: "Phase 3: Exclusion log (reasons)"}

	reasonIdx, ok := excluded.ColumnIndex(domain.ColExcludeReason)
	if !ok {
		p.errorf("missing %s column", domain.ColExcludeReason)
		return p
	}
	known := map[domain.Reason]bool{}
	for _, r := range domain.Reasons {
		known[r] = true
	}

	colIdx := map[string]int{}
	for i, c := range excluded.Columns {
		colIdx[c] = i
	}
	coordCols := map[string]bool{}
	for _, c := range domain.NormalizedColumns {
		coordCols[c] = true
	}

	for i, row := range excluded.Rows {
		line := i + 2
		reason := domain.Reason(row[reasonIdx])
		if !known[reason] {
			p.errorf("line %d: unknown exclude_reason %q", line, row[reasonIdx])
			continue
		}

		trip, dropCause, ok := domain.ParseTrip(func(col string) string {
			idx, ok := colIdx[col]
			if !ok || idx >= len(row) {
				return ""
			}
			// The log renders NaN coordinates as empty cells; map them
			// back so re-derivation sees the original invalid value.
			if row[idx] == "" && coordCols[col] {
				return "NaN"
			}
			return row[idx]
		})
		if !ok {
			p.errorf("line %d: row no longer parses (%s)", line, dropCause)
			continue
		}
		derived := domain.Derive(trip)

		want, excludedNow := domain.Classify(derived)
		if !excludedNow {
			p.errorf("line %d: row classifies as clean but was excluded as %q", line, reason)
			continue
		}
		if want != reason {
			p.errorf("line %d: exclude_reason %q, but values imply %q", line, reason, want)
		}

		if got, wantCell := row[colIdx[domain.ColTripDistanceKm]], formatFloat(derived.DistanceKm); got != wantCell {
			p.errorf("line %d: trip_distance_km %q is not the unrounded value %q", line, got, wantCell)
		}
		wantSpeed := ""
		if derived.SpeedKmh != nil {
			wantSpeed = formatFloat(*derived.SpeedKmh)
		}
		if got := row[colIdx[domain.ColSpeedKmph]]; got != wantSpeed {
			p.errorf("line %d: speed_kmph %q is not the unrounded value %q", line, got, wantSpeed)
		}
	}
	return p
}

// ── Phase 4: Standardization ──
// The _z columns must be the z-scores of their base columns, with zero
// mean and unit variance over the cleaned rows.

func validateStandardization(cleaned *dataset.Table) *phase {
	p := &phase{name: "Phase 4: Standardization (z-scores)"}
	const tolerance = 1e-9

	if len(cleaned.Rows) == 0 {
		return p
	}

	for _, base := range domain.NormalizedColumns {
		baseIdx, ok := cleaned.ColumnIndex(base)
		if !ok {
			p.errorf("missing column %s", base)
			continue
		}
		zIdx, ok := cleaned.ColumnIndex(base + domain.ZSuffix)
		if !ok {
			p.errorf("missing column %s%s", base, domain.ZSuffix)
			continue
		}

		values := make([]float64, 0, len(cleaned.Rows))
		zs := make([]float64, 0, len(cleaned.Rows))
		parseable := true
		for i, row := range cleaned.Rows {
			v, verr := strconv.ParseFloat(row[baseIdx], 64)
			z, zerr := strconv.ParseFloat(row[zIdx], 64)
			if verr != nil || zerr != nil {
				p.errorf("line %d: unparseable %s or %s%s", i+2, base, base, domain.ZSuffix)
				parseable = false
				break
			}
			values = append(values, v)
			zs = append(zs, z)
		}
		if !parseable {
			continue
		}

		var zMean float64
		for _, z := range zs {
			zMean += z
		}
		zMean /= float64(len(zs))
		var zVar float64
		for _, z := range zs {
			zVar += (z - zMean) * (z - zMean)
		}
		zStd := math.Sqrt(zVar / float64(len(zs)))

		if math.Abs(zMean) > tolerance {
			p.errorf("%s%s: mean %v, want 0", base, domain.ZSuffix, zMean)
		}
		if math.Abs(zStd-1) > tolerance {
			p.errorf("%s%s: std %v, want 1", base, domain.ZSuffix, zStd)
		}

		var mean float64
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(values)))
		if std == 0 {
			p.errorf("%s: zero variance across cleaned rows", base)
			continue
		}
		for i := range values {
			want := (values[i] - mean) / std
			if math.Abs(zs[i]-want) > tolerance {
				p.errorf("line %d: %s%s %v, want %v", i+2, base, domain.ZSuffix, zs[i], want)
			}
		}
	}
	return p
}

// ── Phase 5: Reproducibility ──
// Rerunning the transform and rewriting the outputs must reproduce the
// published files byte for byte.

func validateReproducibility(ctx context.Context, logger *slog.Logger, result *pipeline.Result, cleanedPath, excludedPath string) *phase {
	p := &phase{name: "Phase 5: Reproducibility (byte-identical)"}

	dir, err := os.MkdirTemp("", "validate-*")
	if err != nil {
		p.errorf("temp dir: %v", err)
		return p
	}
	defer os.RemoveAll(dir)

	checks := []struct {
		name      string
		table     *dataset.Table
		published string
	}{
		{"cleaned", result.Cleaned, cleanedPath},
		{"excluded", result.Excluded, excludedPath},
	}
	for _, c := range checks {
		rewritten := filepath.Join(dir, c.name+".csv")
		if err := csvfile.NewWriter(rewritten, logger).Write(ctx, c.table); err != nil {
			p.errorf("rewrite %s: %v", c.name, err)
			continue
		}
		want, err := os.ReadFile(rewritten)
		if err != nil {
			p.errorf("read rewritten %s: %v", c.name, err)
			continue
		}
		got, err := os.ReadFile(c.published)
		if err != nil {
			p.errorf("read published %s: %v", c.name, err)
			continue
		}
		if !bytes.Equal(got, want) {
			p.errorf("%s output differs from a fresh transform (%d vs %d bytes)",
				c.name, len(got), len(want))
		}
	}
	return p
}

// ── Helpers ──

func parseCanonical(cell string) (time.Time, error) {
	ts, err := time.Parse(domain.TimestampLayout, cell)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not in canonical layout", cell)
	}
	if ts.Format(domain.TimestampLayout) != cell {
		return time.Time{}, fmt.Errorf("%q does not round-trip the canonical layout", cell)
	}
	return ts, nil
}

type coords struct {
	plon, plat, dlon, dlat float64
}

func parseCoords(p *phase, line int, row []string, cols map[string]int) (coords, bool) {
	var c coords
	fields := []struct {
		col  string
		dest *float64
	}{
		{domain.ColPickupLongitude, &c.plon},
		{domain.ColPickupLatitude, &c.plat},
		{domain.ColDropoffLongitude, &c.dlon},
		{domain.ColDropoffLatitude, &c.dlat},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(row[cols[f.col]], 64)
		if err != nil || math.IsNaN(v) {
			p.errorf("line %d: %s %q is not a finite coordinate", line, f.col, row[cols[f.col]])
			return c, false
		}
		*f.dest = v
	}
	return c, true
}

func requireColumns(t *dataset.Table, names ...string) (map[string]int, error) {
	cols := make(map[string]int, len(names))
	var missing []string
	for _, name := range names {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func decimals(cell string) int {
	if i := strings.IndexByte(cell, '.'); i >= 0 {
		return len(cell) - i - 1
	}
	return 0
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
