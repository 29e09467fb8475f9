package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/anemometer-calibration/internal/domain"

	_ "modernc.org/sqlite"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS calibration_records (
		time TEXT NOT NULL,
		location TEXT NOT NULL,
		test_speed REAL NOT NULL,
		kind TEXT NOT NULL,
		wheel_speed REAL,
		wind_speed REAL,
		time_interval REAL,
		average_wind_speed REAL,
		deviation REAL,
		new_conversion_factor REAL
	);
`

const insertRecord = `
	INSERT INTO calibration_records (
		time, location, test_speed, kind,
		wheel_speed, wind_speed, time_interval,
		average_wind_speed, deviation, new_conversion_factor
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLite appends records to the calibration_records table of a SQLite file.
type SQLite struct {
	path string
	run  domain.RunInfo
}

// NewSQLite creates a SQLite exporter for the database at path.
func NewSQLite(path string, run domain.RunInfo) *SQLite {
	return &SQLite{path: path, run: run}
}

// Export inserts every record in a single transaction.
func (s *SQLite) Export(ctx context.Context, records []domain.Record) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open export %s: %w", s.path, err)
	}
	defer db.Close() //nolint:errcheck // read-only after commit

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create calibration_records: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // closed with the transaction

	for _, rec := range records {
		r := toRow(s.run, rec)
		args := []any{r.time.Format("2006-01-02T15:04:05.000000000Z07:00"), r.location, r.testSpeed, string(r.kind)}
		for _, v := range r.values {
			if v == nil {
				args = append(args, nil)
				continue
			}
			args = append(args, *v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s record: %w", rec.Kind, err)
		}
	}

	return tx.Commit()
}
