package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sightline-ai/sightline/engine/domain"
)

// SightingsTable is the relational sighting table. It carries fewer columns
// than the wide-column store; missing display fields are normalized to "N/A".
const SightingsTable = "vehicle_sightings"

// SQLiteSource reads sightings from a sqlite database file.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the sqlite database at path.
func NewSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("source: open sqlite %s: %w",
			path, errors.Join(domain.ErrSourceUnavailable, err))
	}
	// WAL allows concurrent readers while a writer is active.
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + SightingsTable + ` (
		camera_id TEXT NOT NULL,
		location TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		vehicle_number TEXT NOT NULL,
		snapshot_url TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("source: ensure schema: %w", err)
	}
	return &SQLiteSource{db: db, path: path}, nil
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// FetchAll returns every sighting row in the canonical record shape.
func (s *SQLiteSource) FetchAll(ctx context.Context) ([]domain.SightingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT camera_id, location, timestamp, vehicle_number, snapshot_url FROM `+SightingsTable)
	if err != nil {
		return nil, fmt.Errorf("source: query %s: %w",
			SightingsTable, errors.Join(domain.ErrSourceUnavailable, err))
	}
	defer rows.Close()

	var records []domain.SightingRecord
	for rows.Next() {
		var rec domain.SightingRecord
		var ts string
		if err := rows.Scan(&rec.CameraID, &rec.Location, &ts, &rec.VehicleNo, &rec.SnapshotPath); err != nil {
			return nil, fmt.Errorf("source: scan row: %w", err)
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("source: row for %s: %w", rec.CameraID, err)
		}
		rec.Timestamp = t
		records = append(records, rec.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: iterate rows: %w", err)
	}
	return records, nil
}

// Insert writes one sighting row. Used by the seeder.
func (s *SQLiteSource) Insert(ctx context.Context, rec domain.SightingRecord) error {
	rec = rec.Normalize()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+SightingsTable+` (camera_id, location, timestamp, vehicle_number, snapshot_url)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.CameraID, rec.Location, rec.TimestampText(), rec.VehicleNo, rec.SnapshotPath,
	); err != nil {
		return fmt.Errorf("source: insert sighting: %w", err)
	}
	return nil
}

// Truncate removes every sighting row. Used by the seeder.
func (s *SQLiteSource) Truncate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+SightingsTable); err != nil {
		return fmt.Errorf("source: truncate %s: %w", SightingsTable, err)
	}
	return nil
}

// parseTimestamp coerces a backend-native timestamp string to the canonical
// second-precision instant.
func parseTimestamp(ts string) (time.Time, error) {
	for _, layout := range []string{domain.TimestampLayout, time.RFC3339, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", ts)
}
