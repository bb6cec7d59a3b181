package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowAccessor(cells map[string]string) func(string) string {
	return func(col string) string { return cells[col] }
}

func validCells() map[string]string {
	return map[string]string{
		ColPickupDatetime:   "2016-03-14 17:24:55",
		ColDropoffDatetime:  "2016-03-14 17:32:30",
		ColPickupLongitude:  "-73.982155",
		ColPickupLatitude:   "40.767937",
		ColDropoffLongitude: "-73.964630",
		ColDropoffLatitude:  "40.765602",
	}
}

func TestParseTrip(t *testing.T) {
	t.Run("valid row", func(t *testing.T) {
		trip, cause, ok := ParseTrip(rowAccessor(validCells()))

		require.True(t, ok)
		assert.Empty(t, cause)
		assert.Equal(t, time.Date(2016, 3, 14, 17, 24, 55, 0, time.UTC), trip.PickupTime)
		assert.Equal(t, time.Date(2016, 3, 14, 17, 32, 30, 0, time.UTC), trip.DropoffTime)
		assert.Equal(t, -73.982155, trip.PickupLon)
		assert.Equal(t, 40.767937, trip.PickupLat)
		assert.Equal(t, -73.964630, trip.DropoffLon)
		assert.Equal(t, 40.765602, trip.DropoffLat)
		assert.False(t, trip.HasInvalidCoords())
	})

	t.Run("empty required cell drops the row", func(t *testing.T) {
		for _, col := range RequiredColumns {
			t.Run(col, func(t *testing.T) {
				cells := validCells()
				cells[col] = "   "

				_, cause, ok := ParseTrip(rowAccessor(cells))

				assert.False(t, ok)
				assert.Equal(t, DropMissingRequired, cause)
			})
		}
	})

	t.Run("unparseable timestamp drops the row", func(t *testing.T) {
		cells := validCells()
		cells[ColDropoffDatetime] = "not-a-date"

		_, cause, ok := ParseTrip(rowAccessor(cells))

		assert.False(t, ok)
		assert.Equal(t, DropBadTimestamp, cause)
	})

	t.Run("missing value wins over bad timestamp", func(t *testing.T) {
		cells := validCells()
		cells[ColPickupDatetime] = "garbage"
		cells[ColPickupLatitude] = ""

		_, cause, ok := ParseTrip(rowAccessor(cells))

		assert.False(t, ok)
		assert.Equal(t, DropMissingRequired, cause)
	})

	t.Run("non-numeric coordinate becomes NaN", func(t *testing.T) {
		cells := validCells()
		cells[ColPickupLatitude] = "forty point seven"

		trip, _, ok := ParseTrip(rowAccessor(cells))

		require.True(t, ok)
		assert.True(t, math.IsNaN(trip.PickupLat))
		assert.True(t, trip.HasInvalidCoords())
		assert.Equal(t, -73.982155, trip.PickupLon)
	})

	t.Run("literal NaN coordinate is invalid", func(t *testing.T) {
		cells := validCells()
		cells[ColDropoffLongitude] = "NaN"

		trip, _, ok := ParseTrip(rowAccessor(cells))

		require.True(t, ok)
		assert.True(t, trip.HasInvalidCoords())
	})

	t.Run("surrounding whitespace is tolerated", func(t *testing.T) {
		cells := validCells()
		cells[ColPickupDatetime] = "  2016-03-14 17:24:55  "
		cells[ColPickupLongitude] = " -73.98 "

		trip, _, ok := ParseTrip(rowAccessor(cells))

		require.True(t, ok)
		assert.Equal(t, -73.98, trip.PickupLon)
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		ok       bool
	}{
		{
			"space separated",
			"2016-03-14 17:24:55",
			time.Date(2016, 3, 14, 17, 24, 55, 0, time.UTC),
			true,
		},
		{
			"T separated",
			"2016-03-14T17:24:55",
			time.Date(2016, 3, 14, 17, 24, 55, 0, time.UTC),
			true,
		},
		{
			"fractional seconds",
			"2016-03-14 17:24:55.500",
			time.Date(2016, 3, 14, 17, 24, 55, 500000000, time.UTC),
			true,
		},
		{
			"date only",
			"2016-03-14",
			time.Date(2016, 3, 14, 0, 0, 0, 0, time.UTC),
			true,
		},
		{"empty", "", time.Time{}, false},
		{"junk", "14/03/2016 17:24", time.Time{}, false},
		{"month out of range", "2016-13-01 00:00:00", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, result)
				assert.Equal(t, time.UTC, result.Location())
			}
		})
	}
}
