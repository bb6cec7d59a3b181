package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nycmobility/taxi-trip-etl/internal/dataset"
)

// Writer writes a dataset.Table to a CSV file.
// It implements pipeline.Sink.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for the given destination path. Parent
// directories are created on first write.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// Write serializes the table to a temp file in the destination
// directory and renames it into place, so readers never observe a
// partially written file.
func (w *Writer) Write(ctx context.Context, table *dataset.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", w.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCSV(tmp, table); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", w.path, err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename into %s: %w", w.path, err)
	}

	w.logger.Debug("wrote output file", "path", w.path, "rows", len(table.Rows))
	return nil
}

func writeCSV(out io.Writer, table *dataset.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
