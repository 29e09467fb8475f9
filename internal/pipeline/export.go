package pipeline

import (
	"context"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"
)

// Exporter writes the run's records to tabular storage once at shutdown,
// appending to anything already there.
type Exporter interface {
	Export(ctx context.Context, records []domain.Record) error
}
