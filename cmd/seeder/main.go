// Package main seeds and verifies sighting data in the configured backend.
//
// Usage: seeder [flags] insert|verify|sync|clear
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/sightline-ai/sightline/engine/domain"
	"github.com/sightline-ai/sightline/engine/source"
)

// seedStore is the write surface the seeder needs from either backend.
type seedStore interface {
	FetchAll(ctx context.Context) ([]domain.SightingRecord, error)
	Insert(ctx context.Context, rec domain.SightingRecord) error
	Truncate(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	dbType := flag.String("db", envOr("DB_TYPE", "cassandra"), "backend: cassandra or sqlite")
	host := flag.String("host", envOr("CASSANDRA_HOST", "127.0.0.1"), "cassandra host")
	keyspace := flag.String("keyspace", envOr("CASSANDRA_KEYSPACE", "ilens_ladakh"), "cassandra keyspace")
	path := flag.String("path", envOr("SQLITE_PATH", "vehicles.db"), "sqlite database path")
	flag.Parse()

	action := flag.Arg(0)
	if action == "" {
		fmt.Fprintln(os.Stderr, "usage: seeder [flags] insert|verify|sync|clear")
		os.Exit(2)
	}

	if err := run(*dbType, *host, *keyspace, *path, action); err != nil {
		fmt.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(dbType, host, keyspace, path, action string) error {
	ctx := context.Background()

	var store seedStore
	switch dbType {
	case "sqlite":
		s, err := source.NewSQLite(path)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	case "cassandra":
		c, err := source.NewCassandra(host, keyspace)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.EnsureSchema(ctx); err != nil {
			return err
		}
		store = c
	default:
		return fmt.Errorf("unknown backend %q", dbType)
	}

	switch action {
	case "insert":
		return insertData(ctx, store)
	case "verify":
		return verifyData(ctx, store)
	case "sync":
		if err := insertData(ctx, store); err != nil {
			return err
		}
		return verifyData(ctx, store)
	case "clear":
		fmt.Println("[+] Clearing all vehicle sighting records...")
		return store.Truncate(ctx)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// sampleSightings returns the demo records anchored to the current date so
// that relative-date queries (today, yesterday) have data to hit.
func sampleSightings(now time.Time) []domain.SightingRecord {
	today := now
	yesterday := now.AddDate(0, 0, -1)
	dayBefore := now.AddDate(0, 0, -2)

	at := func(day time.Time, hour, minute, sec int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, sec, 0, time.Local)
	}
	rec := func(veh string, ts time.Time, n int, suffix string) domain.SightingRecord {
		return domain.SightingRecord{
			CameraID:     fmt.Sprintf("CAM_%d", n),
			CameraName:   fmt.Sprintf("Camera_%d", n),
			Location:     fmt.Sprintf("Location_%d", n),
			Timestamp:    ts,
			VehicleNo:    veh,
			SnapshotPath: fmt.Sprintf("/snapshots/car_%d%s.jpg", n, suffix),
			VideoPath:    fmt.Sprintf("/videos/car_%d%s.mp4", n, suffix),
		}
	}

	return []domain.SightingRecord{
		rec("TN09AB105", at(yesterday, 8, 30, 20), 6, ""),
		rec("TN09AB101", at(yesterday, 8, 35, 20), 2, ""),
		rec("TN09AB109", at(yesterday, 17, 15, 20), 10, ""),
		rec("TN09AB105", at(today, 10, 0, 20), 6, "_2"),
		rec("TN09AB102", at(dayBefore, 14, 0, 0), 3, ""),
		rec("TN09AB102", at(yesterday, 10, 30, 0), 3, "_2"),
		rec("TN09AB104", at(yesterday, 11, 15, 0), 5, ""),
		rec("TN09AB105", at(today, 13, 0, 0), 6, "_3"),
		rec("TN09AB100", at(today, 13, 5, 0), 1, ""),
		rec("TN09AB107", at(today, 3, 15, 0), 8, ""),
	}
}

func insertData(ctx context.Context, store seedStore) error {
	fmt.Println("[+] Syncing sample sighting records...")
	fmt.Println("    Clearing existing records...")
	if err := store.Truncate(ctx); err != nil {
		return err
	}

	records := sampleSightings(time.Now())
	for _, rec := range records {
		if err := store.Insert(ctx, rec); err != nil {
			return err
		}
	}
	fmt.Printf("[+] Successfully inserted %d records.\n", len(records))
	return nil
}

func verifyData(ctx context.Context, store seedStore) error {
	fmt.Println("\n[+] Verifying sighting records...")
	records, err := store.FetchAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("    Total records: %d\n", len(records))

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if len(records) > 5 {
		records = records[:5]
	}

	fmt.Println("\n    Latest 5 Records:")
	fmt.Printf("    %-15s %-25s %-10s %-15s %-15s %s\n",
		"Vehicle", "Timestamp", "Camera ID", "Camera Name", "Location", "Snapshot")
	fmt.Println("    " + dashes(115))
	for _, r := range records {
		fmt.Printf("    %-15s %-25s %-10s %-15s %-15s %s\n",
			r.VehicleNo, r.TimestampText(), r.CameraID, r.CameraName, r.Location, r.SnapshotPath)
	}
	fmt.Println()
	return nil
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
