package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
)

// CSV appends rows to a CSV file, writing the header only when the file is
// new or empty.
type CSV struct {
	path string
	run  domain.RunInfo
}

// NewCSV creates a CSV exporter for path.
func NewCSV(path string, run domain.RunInfo) *CSV {
	return &CSV{path: path, run: run}
}

// Export appends records in order.
func (c *CSV) Export(_ context.Context, records []domain.Record) error {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open export %s: %w", c.path, err)
	}
	defer f.Close() //nolint:errcheck // close after flush error is reported below

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat export %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("write export header: %w", err)
		}
	}
	for _, rec := range records {
		if err := w.Write(toRow(c.run, rec).strings()); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export %s: %w", c.path, err)
	}
	return f.Sync()
}
