package pipeline_test

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
	"github.com/nycmobility/taxi-trip-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fixtures ---

// rawColumns mirrors the Kaggle trip record layout, including the
// trip_duration label column that the cleaner overwrites in place.
func rawColumns() []string {
	return []string{
		"id", "vendor_id",
		domain.ColPickupDatetime, domain.ColDropoffDatetime,
		"passenger_count",
		domain.ColPickupLongitude, domain.ColPickupLatitude,
		domain.ColDropoffLongitude, domain.ColDropoffLatitude,
		"store_and_fwd_flag",
		domain.ColTripDuration,
	}
}

func tripRow(id, pickup, dropoff, plon, plat, dlon, dlat string) []string {
	return []string{id, "2", pickup, dropoff, "1", plon, plat, dlon, dlat, "N", "455"}
}

// validRows returns three trips with the coordinates and timestamps of
// real Manhattan rides, giving every coordinate column nonzero variance.
func validRows() [][]string {
	return [][]string{
		tripRow("id2875421", "2016-03-14 17:24:55", "2016-03-14 17:32:30",
			"-73.982155", "40.767937", "-73.96463", "40.765602"),
		tripRow("id2377394", "2016-06-12 00:43:35", "2016-06-12 00:54:38",
			"-73.980415", "40.738564", "-73.999481", "40.731152"),
		tripRow("id3858529", "2016-01-19 11:35:24", "2016-01-19 12:10:48",
			"-73.979027", "40.763939", "-74.005333", "40.710087"),
	}
}

// batchRows is the valid trips plus one exact duplicate, two
// structurally broken rows, and one row for each exclusion reason.
func batchRows() [][]string {
	rows := validRows()
	rows = append(rows, validRows()[0])
	rows = append(rows,
		tripRow("id1000001", "2016-03-14 17:24:55", "2016-03-14 17:32:30",
			"", "40.767937", "-73.96463", "40.765602"),
		tripRow("id1000002", "not a timestamp", "2016-03-14 17:32:30",
			"-73.982155", "40.767937", "-73.96463", "40.765602"),
		tripRow("id1000003", "2016-03-14 17:32:30", "2016-03-14 17:24:55",
			"-73.982155", "40.767937", "-73.96463", "40.765602"),
		tripRow("id1000004", "2016-03-14 17:24:55", "2016-03-14 17:32:30",
			"-73.982155", "garbage", "-73.96463", "40.765602"),
		tripRow("id1000005", "2016-03-14 17:24:55", "2016-03-14 17:32:30",
			"-73.982155", "40.767937", "-73.982155", "40.767937"),
		tripRow("id1000006", "2016-03-14 17:24:55", "2016-03-14 17:24:59",
			"-73.982155", "40.767937", "-73.96463", "40.765602"),
		tripRow("id1000007", "2016-03-14 00:00:00", "2016-03-18 04:00:00",
			"-73.982155", "95", "-73.96463", "40.765602"),
	)
	return rows
}

// --- tests ---

func TestTransform_CleansRealisticBatch(t *testing.T) {
	table := dataset.New(rawColumns(), batchRows())

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 1, result.DuplicatesRemoved)
	assert.Equal(t, 1, result.DroppedMissingRequired)
	assert.Equal(t, 1, result.DroppedBadTimestamp)
	require.Len(t, result.Cleaned.Rows, 3)
	require.Len(t, result.Excluded.Rows, 5)

	// Every surviving row lands in exactly one output.
	loaded := len(table.Rows)
	survived := loaded - result.DuplicatesRemoved - result.DroppedMissingRequired - result.DroppedBadTimestamp
	assert.Equal(t, survived, len(result.Cleaned.Rows)+len(result.Excluded.Rows))

	for _, reason := range domain.Reasons {
		assert.Equal(t, 1, result.ExcludedByReason[reason], "reason %s", reason)
	}

	// Exclusions preserve input order and record the first matching reason.
	excluded := result.Excluded
	for i, want := range []struct {
		id     string
		reason domain.Reason
	}{
		{"id1000003", domain.ReasonNegativeOrZeroDuration},
		{"id1000004", domain.ReasonMissingOrInvalidCoords},
		{"id1000005", domain.ReasonZeroOrNegativeDistance},
		{"id1000006", domain.ReasonUnrealisticSpeed},
		{"id1000007", domain.ReasonExtremeCoords},
	} {
		assert.Equal(t, want.id, excluded.Cell(i, "id"))
		assert.Equal(t, string(want.reason), excluded.Cell(i, domain.ColExcludeReason))
	}
}

func TestTransform_OutputHeaders(t *testing.T) {
	t.Run("duration column keeps its raw position", func(t *testing.T) {
		table := dataset.New(rawColumns(), validRows())

		result, err := pipeline.Transform(table, slog.Default())
		require.NoError(t, err)

		wantCleaned := []string{
			"id", "vendor_id",
			domain.ColPickupDatetime, domain.ColDropoffDatetime,
			"passenger_count",
			domain.ColPickupLongitude, domain.ColPickupLatitude,
			domain.ColDropoffLongitude, domain.ColDropoffLatitude,
			"store_and_fwd_flag",
			domain.ColTripDuration,
			domain.ColTripDistanceKm, domain.ColSpeedKmph,
			domain.ColPickupHour, domain.ColPickupDayofweek,
			domain.ColPickupLongitude + domain.ZSuffix,
			domain.ColPickupLatitude + domain.ZSuffix,
			domain.ColDropoffLongitude + domain.ZSuffix,
			domain.ColDropoffLatitude + domain.ZSuffix,
		}
		if diff := cmp.Diff(wantCleaned, result.Cleaned.Columns); diff != "" {
			t.Errorf("cleaned header mismatch (-want +got):\n%s", diff)
		}

		wantExcluded := append([]string(nil), wantCleaned[:15]...)
		wantExcluded = append(wantExcluded, domain.ColExcludeReason)
		if diff := cmp.Diff(wantExcluded, result.Excluded.Columns); diff != "" {
			t.Errorf("excluded header mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("derived columns append when absent from the raw header", func(t *testing.T) {
		cols := rawColumns()[:10] // without trip_duration
		rows := make([][]string, 0, 3)
		for _, row := range validRows() {
			rows = append(rows, row[:10])
		}
		table := dataset.New(cols, rows)

		result, err := pipeline.Transform(table, slog.Default())
		require.NoError(t, err)

		want := append(rawColumns()[:10], domain.DerivedColumns...)
		assert.Equal(t, want, result.Cleaned.Columns[:15])
	})
}

func TestTransform_MissingColumns(t *testing.T) {
	cols := []string{"id", domain.ColPickupDatetime, domain.ColPickupLongitude,
		domain.ColPickupLatitude, domain.ColDropoffLongitude}
	table := dataset.New(cols, [][]string{{"id1", "2016-03-14 17:24:55", "-73.98", "40.76", "-73.96"}})

	result, err := pipeline.Transform(table, slog.Default())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrSchema)
	assert.ErrorContains(t, err, domain.ColDropoffDatetime)
	assert.ErrorContains(t, err, domain.ColDropoffLatitude)
}

func TestTransform_CanonicalizesCells(t *testing.T) {
	rows := [][]string{
		tripRow("idT00001", "2016-03-14T17:24:55", "2016-03-14 17:32:30.000000",
			"-73.982155", "40.767937", "-73.964630", "40.765602"),
		validRows()[1],
	}
	table := dataset.New(rawColumns(), rows)

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)
	require.Len(t, result.Cleaned.Rows, 2)

	cleaned := result.Cleaned
	assert.Equal(t, "2016-03-14 17:24:55", cleaned.Cell(0, domain.ColPickupDatetime))
	assert.Equal(t, "2016-03-14 17:32:30", cleaned.Cell(0, domain.ColDropoffDatetime))

	// Coordinates are re-serialized from their parsed values, so the
	// trailing zero in the raw dropoff longitude disappears.
	assert.Equal(t, "-73.96463", cleaned.Cell(0, domain.ColDropoffLongitude))
	assert.Equal(t, "40.767937", cleaned.Cell(0, domain.ColPickupLatitude))

	// Passthrough columns keep their raw cells; the duration label is
	// overwritten with the derived value.
	assert.Equal(t, "idT00001", cleaned.Cell(0, "id"))
	assert.Equal(t, "N", cleaned.Cell(0, "store_and_fwd_flag"))
	assert.Equal(t, "455", cleaned.Cell(0, domain.ColTripDuration))

	assert.Equal(t, "17", cleaned.Cell(0, domain.ColPickupHour))
	assert.Equal(t, "Monday", cleaned.Cell(0, domain.ColPickupDayofweek))

	distance, err := strconv.ParseFloat(cleaned.Cell(0, domain.ColTripDistanceKm), 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.4985, distance, 0.001)
	assert.LessOrEqual(t, decimalPlaces(cleaned.Cell(0, domain.ColTripDistanceKm)), domain.DistancePrecision)

	speed, err := strconv.ParseFloat(cleaned.Cell(0, domain.ColSpeedKmph), 64)
	require.NoError(t, err)
	assert.InDelta(t, 11.856, speed, 0.01)
	assert.LessOrEqual(t, decimalPlaces(cleaned.Cell(0, domain.ColSpeedKmph)), domain.SpeedPrecision)
}

func TestTransform_ExcludedKeepsFullPrecision(t *testing.T) {
	table := dataset.New(rawColumns(), batchRows())

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)

	// id1000006 covers the first valid trip's route in four seconds, so
	// its exclusion row carries the unrounded distance and speed.
	wantDistance := domain.Haversine(40.767937, -73.982155, 40.765602, -73.96463)
	wantSpeed := wantDistance / (4.0 / 3600.0)

	excluded := result.Excluded
	require.Equal(t, "id1000006", excluded.Cell(3, "id"))
	assert.Equal(t, strconv.FormatFloat(wantDistance, 'f', -1, 64), excluded.Cell(3, domain.ColTripDistanceKm))
	assert.Equal(t, strconv.FormatFloat(wantSpeed, 'f', -1, 64), excluded.Cell(3, domain.ColSpeedKmph))

	// The cleaned counterpart of the same route is rounded.
	rounded := strconv.FormatFloat(domain.Round(wantDistance, domain.DistancePrecision), 'f', -1, 64)
	assert.Equal(t, rounded, result.Cleaned.Cell(0, domain.ColTripDistanceKm))

	// The invalid-coordinate row renders its NaN fields as empty cells.
	require.Equal(t, "id1000004", excluded.Cell(1, "id"))
	assert.Empty(t, excluded.Cell(1, domain.ColPickupLatitude))
	assert.Empty(t, excluded.Cell(1, domain.ColTripDistanceKm))
}

func TestTransform_StandardizesCoordinates(t *testing.T) {
	table := dataset.New(rawColumns(), batchRows())

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)

	for _, col := range domain.NormalizedColumns {
		values := columnFloats(t, result.Cleaned, col+domain.ZSuffix)
		require.Len(t, values, 3)

		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))

		var squares float64
		for _, v := range values {
			squares += (v - mean) * (v - mean)
		}
		std := math.Sqrt(squares / float64(len(values)))

		assert.InDelta(t, 0, mean, 1e-9, "column %s", col)
		assert.InDelta(t, 1, std, 1e-9, "column %s", col)
	}

	// The exclusion log never grows z columns.
	for _, col := range domain.NormalizedColumns {
		_, ok := result.Excluded.ColumnIndex(col + domain.ZSuffix)
		assert.False(t, ok, "column %s", col)
	}
}

func TestTransform_DegenerateVariance(t *testing.T) {
	t.Run("identical coordinates across rows", func(t *testing.T) {
		rows := [][]string{
			tripRow("id0000001", "2016-03-14 17:24:55", "2016-03-14 17:32:30",
				"-73.982155", "40.767937", "-73.96463", "40.765602"),
			tripRow("id0000002", "2016-03-15 09:00:00", "2016-03-15 09:10:00",
				"-73.982155", "40.767937", "-73.96463", "40.765602"),
		}
		table := dataset.New(rawColumns(), rows)

		result, err := pipeline.Transform(table, slog.Default())
		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrDegenerateInput)
		assert.ErrorContains(t, err, domain.ColPickupLongitude)
	})

	t.Run("single retained row", func(t *testing.T) {
		table := dataset.New(rawColumns(), validRows()[:1])

		result, err := pipeline.Transform(table, slog.Default())
		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrDegenerateInput)
	})
}

func TestTransform_HeaderOnlyInput(t *testing.T) {
	table := dataset.New(rawColumns(), nil)

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)
	assert.Empty(t, result.Cleaned.Rows)
	assert.Empty(t, result.Excluded.Rows)
	assert.Len(t, result.Cleaned.Columns, 19)
	assert.Len(t, result.Excluded.Columns, 16)
}

func TestTransform_AllRowsExcluded(t *testing.T) {
	rows := [][]string{
		tripRow("id0000001", "2016-03-14 17:32:30", "2016-03-14 17:24:55",
			"-73.982155", "40.767937", "-73.96463", "40.765602"),
		tripRow("id0000002", "2016-06-12 00:54:38", "2016-06-12 00:43:35",
			"-73.980415", "40.738564", "-73.999481", "40.731152"),
	}
	table := dataset.New(rawColumns(), rows)

	result, err := pipeline.Transform(table, slog.Default())
	require.NoError(t, err)
	assert.Empty(t, result.Cleaned.Rows)
	assert.Len(t, result.Excluded.Rows, 2)
	assert.Equal(t, 2, result.ExcludedByReason[domain.ReasonNegativeOrZeroDuration])
}

func TestTransform_PureFunction(t *testing.T) {
	input := dataset.New(rawColumns(), batchRows())
	snapshot := input.Clone()

	first, err := pipeline.Transform(input, slog.Default())
	require.NoError(t, err)
	second, err := pipeline.Transform(input, slog.Default())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Cleaned, second.Cleaned); diff != "" {
		t.Errorf("cleaned output not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Excluded, second.Excluded); diff != "" {
		t.Errorf("excluded output not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(snapshot, input); diff != "" {
		t.Errorf("input table modified (-before +after):\n%s", diff)
	}
}

// --- helpers ---

func columnFloats(t *testing.T, table *dataset.Table, col string) []float64 {
	t.Helper()
	values := make([]float64, len(table.Rows))
	for i := range table.Rows {
		v, err := strconv.ParseFloat(table.Cell(i, col), 64)
		require.NoError(t, err)
		values[i] = v
	}
	return values
}

func decimalPlaces(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
