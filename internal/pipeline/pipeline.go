package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
	"github.com/nycmobility/taxi-trip-etl/internal/observability"
)

// Source loads the raw dataset.
type Source interface {
	Read(ctx context.Context) (*dataset.Table, error)
}

// Sink persists one output table.
type Sink interface {
	Write(ctx context.Context, table *dataset.Table) error
}

// Pipeline orchestrates one batch cleaning run: load, transform, write.
type Pipeline struct {
	source       Source
	cleanedSink  Sink
	excludedSink Sink
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
}

// New creates a Pipeline with the given stages and observability.
func New(source Source, cleanedSink, excludedSink Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:       source,
		cleanedSink:  cleanedSink,
		excludedSink: excludedSink,
		logger:       logger,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
	}
}

// SetClock replaces the wall clock. Pass nil to restore the real clock.
// Intended for tests that need deterministic report timestamps.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	if c == nil {
		p.clock = clockwork.NewRealClock()
		return
	}
	p.clock = c
}

// Report summarizes one run, stage by stage. The counts satisfy
// RowsLoaded - DuplicatesRemoved - DroppedMissingRequired -
// DroppedBadTimestamp = ExcludedRows + CleanedRows.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	RowsLoaded             int
	DuplicatesRemoved      int
	DroppedMissingRequired int
	DroppedBadTimestamp    int
	ExcludedByReason       map[domain.Reason]int
	ExcludedRows           int
	CleanedRows            int
}

// Run executes one complete batch run. Both output files are written
// only after the whole transform has succeeded; a fatal error leaves
// previous outputs untouched. The run is single-threaded and performs
// no retries.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: p.clock.Now().UTC(),
	}
	logger := p.logger.With("run_id", report.RunID)

	logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	loadStart := p.clock.Now()
	table, err := p.source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	p.metrics.StageDuration.WithLabelValues("load").Observe(p.clock.Since(loadStart).Seconds())

	report.RowsLoaded = len(table.Rows)
	p.metrics.RowsRead.Add(float64(report.RowsLoaded))
	logger.Info("loaded input", "rows", report.RowsLoaded, "columns", len(table.Columns))

	transformStart := p.clock.Now()
	result, err := Transform(table, logger)
	if err != nil {
		return nil, err
	}
	p.metrics.StageDuration.WithLabelValues("transform").Observe(p.clock.Since(transformStart).Seconds())

	report.DuplicatesRemoved = result.DuplicatesRemoved
	report.DroppedMissingRequired = result.DroppedMissingRequired
	report.DroppedBadTimestamp = result.DroppedBadTimestamp
	report.ExcludedByReason = result.ExcludedByReason
	report.ExcludedRows = len(result.Excluded.Rows)
	report.CleanedRows = len(result.Cleaned.Rows)
	p.observeCounts(report)

	writeStart := p.clock.Now()
	if err := p.excludedSink.Write(ctx, result.Excluded); err != nil {
		return nil, fmt.Errorf("write exclusion log: %w", err)
	}
	if err := p.cleanedSink.Write(ctx, result.Cleaned); err != nil {
		return nil, fmt.Errorf("write cleaned dataset: %w", err)
	}
	p.metrics.StageDuration.WithLabelValues("write").Observe(p.clock.Since(writeStart).Seconds())

	report.Duration = p.clock.Since(report.StartedAt)
	logger.Info("pipeline finished",
		"cleaned_rows", report.CleanedRows,
		"excluded_rows", report.ExcludedRows,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) observeCounts(report *Report) {
	p.metrics.DuplicatesRemoved.Add(float64(report.DuplicatesRemoved))
	p.metrics.RowsDropped.WithLabelValues(string(domain.DropMissingRequired)).Add(float64(report.DroppedMissingRequired))
	p.metrics.RowsDropped.WithLabelValues(string(domain.DropBadTimestamp)).Add(float64(report.DroppedBadTimestamp))
	for reason, n := range report.ExcludedByReason {
		p.metrics.RowsExcluded.WithLabelValues(string(reason)).Add(float64(n))
	}
	p.metrics.RowsCleaned.Add(float64(report.CleanedRows))
}
