package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sightline-ai/sightline/engine/domain"
	"github.com/sightline-ai/sightline/engine/semantic"
)

// fakeIndex serves preset hits in order and records the pool size each query
// asked for.
type fakeIndex struct {
	hits      []semantic.Hit
	locations []string

	lastK   int
	rebuilt []domain.SightingRecord
}

func (f *fakeIndex) Rebuild(_ context.Context, records []domain.SightingRecord) error {
	f.rebuilt = records
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ string, k int) ([]semantic.Hit, error) {
	f.lastK = k
	if k > len(f.hits) {
		k = len(f.hits)
	}
	return f.hits[:k], nil
}

func (f *fakeIndex) Locations() []string { return f.locations }
func (f *fakeIndex) Count() int          { return len(f.hits) }

type fakeSource struct {
	records []domain.SightingRecord
	err     error
}

func (f *fakeSource) FetchAll(context.Context) ([]domain.SightingRecord, error) {
	return f.records, f.err
}

func sightingAt(plate, camera, location string, ts time.Time) domain.SightingRecord {
	return domain.SightingRecord{
		CameraID:  camera,
		Location:  location,
		Timestamp: ts,
		VehicleNo: plate,
	}
}

func hitsWithScores(scores ...float64) []semantic.Hit {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	hits := make([]semantic.Hit, len(scores))
	for i, s := range scores {
		hits[i] = semantic.Hit{
			Record: sightingAt("MH12XY9999", "CAM_001", "Main Gate", ts),
			Score:  s,
		}
	}
	return hits
}

func newTestService(idx *fakeIndex) *Service {
	return New(idx, &fakeSource{}, DefaultOptions(), nil)
}

func TestSearchEmptyIndex(t *testing.T) {
	s := newTestService(&fakeIndex{})
	got, err := s.Search(context.Background(), "any vehicle", 5, 0.2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Errorf("got %v from empty index, want nil", got)
	}
}

func TestSearchDefaults(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithScores(0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3)}
	s := newTestService(idx)

	// topK 0 and negative threshold select the configured defaults.
	got, err := s.Search(context.Background(), "vehicle activity", 0, -1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d results, want default top 5", len(got))
	}
	if idx.lastK != 5 {
		t.Errorf("pool size = %d, want 5 without filters", idx.lastK)
	}
	for _, m := range got {
		if m.Score < 0.20 {
			t.Errorf("score %v below default threshold", m.Score)
		}
	}
}

func TestSearchCallerThreshold(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithScores(0.9, 0.6, 0.4, 0.3)}
	s := newTestService(idx)

	got, err := s.Search(context.Background(), "vehicle activity", 10, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 above threshold 0.5", len(got))
	}
	for _, m := range got {
		if m.Score < 0.5 {
			t.Errorf("score %v below caller threshold", m.Score)
		}
	}
}

func TestSearchScoreRounding(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithScores(0.123456)}
	s := newTestService(idx)

	got, err := s.Search(context.Background(), "vehicle activity", 1, 0.1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Score != 0.1235 {
		t.Errorf("got %+v, want single match scored 0.1235", got)
	}
}

func TestSearchOverfetchOnFilters(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	idx := &fakeIndex{hits: []semantic.Hit{
		{Record: sightingAt("TN09AB105", "CAM_001", "Main Gate", ts), Score: 0.9},
	}}
	s := newTestService(idx)

	if _, err := s.Search(context.Background(), "TN09AB105 sightings", 5, 0.2); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if idx.lastK != 5*50 {
		t.Errorf("pool size = %d, want 250 with hard filters active", idx.lastK)
	}
}

func TestSearchVehicleFilter(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	idx := &fakeIndex{hits: []semantic.Hit{
		{Record: sightingAt("KA05CD1234", "CAM_002", "Main Gate", ts), Score: 0.95},
		{Record: sightingAt("TN09AB105", "CAM_001", "Main Gate", ts), Score: 0.90},
		{Record: sightingAt("MH12XY9999", "CAM_003", "Warehouse", ts), Score: 0.85},
		{Record: sightingAt("TN09AB105", "CAM_002", "Warehouse", ts), Score: 0.80},
	}}
	s := newTestService(idx)

	got, err := s.Search(context.Background(), "TN09AB105 sightings", 10, 0.2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 for the queried plate", len(got))
	}
	for _, m := range got {
		if m.Record.VehicleNo != "TN09AB105" {
			t.Errorf("plate filter leaked %s", m.Record.VehicleNo)
		}
	}
	if got[0].Score < got[1].Score {
		t.Error("results not in semantic-rank order")
	}
}

func TestSearchSuspiciousHours(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	at := func(hour, minute int) time.Time {
		return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}
	idx := &fakeIndex{hits: []semantic.Hit{
		{Record: sightingAt("AA11BB22", "CAM_001", "Gate", at(2, 0)), Score: 0.9},
		{Record: sightingAt("CC33DD44", "CAM_001", "Gate", at(5, 59)), Score: 0.8},
		{Record: sightingAt("EE55FF66", "CAM_001", "Gate", at(6, 0)), Score: 0.7},
		{Record: sightingAt("GG77HH88", "CAM_001", "Gate", at(23, 0)), Score: 0.6},
	}}
	s := newTestService(idx)

	got, err := s.Search(context.Background(), "suspicious activity", 10, 0.2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want the two pre-6am sightings", len(got))
	}
	if got[0].Record.Hour() != 2 || got[1].Record.Hour() != 5 {
		t.Errorf("wrong sightings survived: %+v", got)
	}
}

func TestSearchComprehensiveDated(t *testing.T) {
	now := time.Date(2024, 3, 20, 14, 0, 0, 0, time.Local)
	today := time.Date(2024, 3, 20, 9, 0, 0, 0, time.Local)
	idx := &fakeIndex{hits: []semantic.Hit{
		{Record: sightingAt("AA11BB22", "CAM_001", "Gate", today), Score: 0.30},
		{Record: sightingAt("CC33DD44", "CAM_001", "Gate", today), Score: 0.06},
		{Record: sightingAt("EE55FF66", "CAM_001", "Gate", today), Score: 0.04},
	}}
	s := newTestService(idx)
	s.now = func() time.Time { return now }

	got, err := s.Search(context.Background(), "show all vehicles today", 5, 0.2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Comprehensive plus a date scope drops the floor to 0.05, so the 0.06 hit
	// survives and only the 0.04 hit is cut.
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 above the comprehensive floor", len(got))
	}
	if got[1].Score != 0.06 {
		t.Errorf("second score = %v, want 0.06", got[1].Score)
	}
	// topK was raised to the comprehensive floor and then over-fetched for the
	// date filter.
	if idx.lastK != 50*50 {
		t.Errorf("pool size = %d, want 2500", idx.lastK)
	}
}

func TestSearchDateScope(t *testing.T) {
	now := time.Date(2024, 3, 20, 14, 0, 0, 0, time.Local)
	yesterday := time.Date(2024, 3, 19, 8, 30, 0, 0, time.Local)
	today := time.Date(2024, 3, 20, 8, 30, 0, 0, time.Local)
	idx := &fakeIndex{hits: []semantic.Hit{
		{Record: sightingAt("TN09AB105", "CAM_006", "Main Gate", yesterday), Score: 0.9},
		{Record: sightingAt("TN09AB105", "CAM_002", "Warehouse", today), Score: 0.85},
		{Record: sightingAt("KA05CD1234", "CAM_006", "Main Gate", yesterday), Score: 0.8},
	}}
	s := newTestService(idx)
	s.now = func() time.Time { return now }

	got, err := s.Search(context.Background(), "TN09AB105 movements yesterday", 5, 0.2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want exactly the yesterday sighting of the plate", len(got))
	}
	if got[0].Record.CameraID != "CAM_006" || got[0].Record.Date() != "2024-03-19" {
		t.Errorf("wrong record survived: %+v", got[0].Record)
	}
}

func TestRefresh(t *testing.T) {
	ts := time.Now()
	records := []domain.SightingRecord{
		sightingAt("TN09AB105", "CAM_001", "Gate", ts),
		sightingAt("KA05CD1234", "CAM_002", "Dock", ts),
	}
	idx := &fakeIndex{}
	s := New(idx, &fakeSource{records: records}, DefaultOptions(), nil)

	n, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 2 {
		t.Errorf("Refresh returned %d, want 2", n)
	}
	if len(idx.rebuilt) != 2 {
		t.Errorf("index rebuilt with %d records, want 2", len(idx.rebuilt))
	}
}

func TestRefreshSourceFailure(t *testing.T) {
	idx := &fakeIndex{}
	src := &fakeSource{err: domain.ErrSourceUnavailable}
	s := New(idx, src, DefaultOptions(), nil)

	if _, err := s.Refresh(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Errorf("Refresh error = %v, want ErrSourceUnavailable", err)
	}
	if idx.rebuilt != nil {
		t.Error("index was rebuilt despite source failure")
	}
}
