package domain

import "math"

// Output precision for the derived distance and speed columns.
const (
	DistancePrecision = 5
	SpeedPrecision    = 3
)

// Stats holds the population mean and standard deviation of one column.
type Stats struct {
	Mean float64
	Std  float64
}

// ColumnStats computes population statistics (not the sample estimator)
// over the values. An empty slice yields zero stats; callers skip
// standardization entirely in that case.
func ColumnStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var squares float64
	for _, v := range values {
		d := v - mean
		squares += d * d
	}

	return Stats{Mean: mean, Std: math.Sqrt(squares / float64(len(values)))}
}

// ZScore standardizes v against s. Callers must reject zero-variance
// columns first; dividing by a zero Std yields infinities.
func ZScore(v float64, s Stats) float64 {
	return (v - s.Mean) / s.Std
}

// Round rounds v to the given number of decimal places. NaN passes
// through unchanged.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) {
		return v
	}
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
