// Package csvfile reads and writes the pipeline's tabular files.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

// Reader loads a CSV file into a dataset.Table.
// It implements pipeline.Source.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the given file path.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// Read parses the whole file into memory. A nonexistent file maps to
// domain.ErrMissingInput. Field counts are not enforced here; rows are
// normalized to the header width so later validation treats ragged rows
// as rows with missing values.
func (r *Reader) Read(ctx context.Context) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", r.path, domain.ErrMissingInput)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", r.path, err)
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", r.path, err)
	}

	r.logger.Debug("read input file", "path", r.path, "columns", len(header), "rows", len(rows))
	return dataset.New(header, rows), nil
}
