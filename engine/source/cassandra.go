package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sightline-ai/sightline/engine/domain"
)

// ReportTable is the wide-column sighting table, partitioned by vehicle with
// time-descending clustering for per-vehicle history queries.
const ReportTable = "vehicle_analysis_report"

// CassandraSource reads sightings from a Cassandra keyspace.
type CassandraSource struct {
	session  *gocql.Session
	keyspace string
}

// NewCassandra connects to a Cassandra host and keyspace.
func NewCassandra(host, keyspace string) (*CassandraSource, error) {
	cluster := gocql.NewCluster(host)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("source: connect cassandra %s/%s: %w",
			host, keyspace, errors.Join(domain.ErrSourceUnavailable, err))
	}
	return &CassandraSource{session: session, keyspace: keyspace}, nil
}

// Close releases the session.
func (c *CassandraSource) Close() {
	c.session.Close()
}

// FetchAll returns every sighting row, coerced to the canonical record shape.
// Cassandra timestamps are millisecond-precision; they are truncated to the
// second like every other timestamp in the system.
func (c *CassandraSource) FetchAll(ctx context.Context) ([]domain.SightingRecord, error) {
	iter := c.session.Query(
		`SELECT camera_id, camera_name, location, timestamp, vehicle_no, snapshotpath, videopath FROM ` + ReportTable,
	).WithContext(ctx).Iter()

	var records []domain.SightingRecord
	var rec domain.SightingRecord
	var ts time.Time
	for iter.Scan(&rec.CameraID, &rec.CameraName, &rec.Location, &ts, &rec.VehicleNo, &rec.SnapshotPath, &rec.VideoPath) {
		rec.Timestamp = ts.In(time.Local).Truncate(time.Second)
		records = append(records, rec.Normalize())
		rec = domain.SightingRecord{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("source: scan %s: %w",
			ReportTable, errors.Join(domain.ErrSourceUnavailable, err))
	}
	return records, nil
}

// EnsureSchema creates the report table and its secondary indexes. The
// keyspace itself must already exist.
func (c *CassandraSource) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + ReportTable + ` (
			vehicle_no text,
			timestamp timestamp,
			camera_id text,
			camera_name text,
			location text,
			snapshotpath text,
			videopath text,
			PRIMARY KEY (vehicle_no, timestamp)
		) WITH CLUSTERING ORDER BY (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS ON ` + ReportTable + ` (location)`,
		`CREATE INDEX IF NOT EXISTS ON ` + ReportTable + ` (camera_id)`,
	}
	for _, stmt := range stmts {
		if err := c.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("source: ensure schema: %w", err)
		}
	}
	return nil
}

// Insert writes one sighting row. Used by the seeder.
func (c *CassandraSource) Insert(ctx context.Context, rec domain.SightingRecord) error {
	rec = rec.Normalize()
	if err := c.session.Query(
		`INSERT INTO `+ReportTable+` (vehicle_no, timestamp, camera_id, camera_name, location, snapshotpath, videopath)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VehicleNo, rec.Timestamp, rec.CameraID, rec.CameraName, rec.Location, rec.SnapshotPath, rec.VideoPath,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("source: insert sighting: %w", err)
	}
	return nil
}

// Truncate removes every sighting row. Used by the seeder.
func (c *CassandraSource) Truncate(ctx context.Context) error {
	if err := c.session.Query(`TRUNCATE ` + ReportTable).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("source: truncate %s: %w", ReportTable, err)
	}
	return nil
}
