// Package search orchestrates hybrid retrieval: it extracts structured
// constraints from the query text, pulls a semantic candidate pool from the
// vector index, then applies the constraints as hard post-filters with
// threshold policy and result capping.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/sightline-ai/sightline/engine/domain"
	"github.com/sightline-ai/sightline/engine/semantic"
	"github.com/sightline-ai/sightline/engine/source"
	"github.com/sightline-ai/sightline/pkg/querynlp"
)

// Options configures search policy. The tuning constants were calibrated
// against the reference corpus; change them only with measurements in hand.
type Options struct {
	// TopK is the result cap used when the caller passes none.
	TopK int
	// Threshold is the similarity floor used when the caller passes none.
	Threshold float64
	// ComprehensiveFloor is the minimum effective topK for comprehensive
	// queries, so enumeration intents are not starved by a small default.
	ComprehensiveFloor int
	// OverfetchFactor multiplies the candidate pool when hard filters are
	// active, compensating for filters rejecting semantic top matches.
	OverfetchFactor int
	// ComprehensiveThreshold replaces the similarity floor for comprehensive
	// date-scoped queries, where the intent is enumeration, not ranking.
	ComprehensiveThreshold float64
}

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		TopK:                   5,
		Threshold:              0.20,
		ComprehensiveFloor:     50,
		OverfetchFactor:        50,
		ComprehensiveThreshold: 0.05,
	}
}

// Match is a sighting annotated with its similarity score.
type Match struct {
	Record domain.SightingRecord
	Score  float64
}

// Service is the hybrid search service. Many Search calls may run
// concurrently; Refresh is the sole mutator and is serialized.
type Service struct {
	index  semantic.Index
	src    source.Source
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	refreshMu sync.Mutex
}

// New creates a search service over the given index and record source.
func New(index semantic.Index, src source.Source, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.ComprehensiveFloor <= 0 {
		opts.ComprehensiveFloor = DefaultOptions().ComprehensiveFloor
	}
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = DefaultOptions().OverfetchFactor
	}
	return &Service{
		index:  index,
		src:    src,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh reloads every record from the source and rebuilds the index. On
// source failure the index keeps serving its previous corpus. Returns the
// number of records indexed.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ctx, span := otel.Tracer("engine/search").Start(ctx, "search.Refresh")
	defer span.End()

	records, err := s.src.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("search: fetch records: %w", err)
	}
	if err := s.index.Rebuild(ctx, records); err != nil {
		return 0, fmt.Errorf("search: rebuild index: %w", err)
	}
	return len(records), nil
}

// Count returns the number of currently indexed records.
func (s *Service) Count() int {
	return s.index.Count()
}

// Search runs the hybrid retrieval pass. topK <= 0 and threshold < 0 select
// the configured defaults. Results come back in semantic-rank order among the
// candidates that survive filtering, capped at the effective topK.
func (s *Service) Search(ctx context.Context, query string, topK int, threshold float64) ([]Match, error) {
	ctx, span := otel.Tracer("engine/search").Start(ctx, "search.Search")
	defer span.End()

	if s.index.Count() == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if threshold < 0 {
		threshold = s.opts.Threshold
	}

	cons := querynlp.Extract(query, s.index.Locations(), s.now())
	s.logConstraints(cons)

	if cons.Comprehensive && topK < s.opts.ComprehensiveFloor {
		topK = s.opts.ComprehensiveFloor
	}

	// Hard filters are applied after semantic ranking and may reject most of
	// the semantic top matches, so over-fetch the candidate pool.
	searchK := topK
	if cons.HasFilters() {
		searchK = topK * s.opts.OverfetchFactor
	}

	hits, err := s.index.Query(ctx, query, searchK)
	if err != nil {
		return nil, err
	}

	effectiveThreshold := threshold
	if cons.Comprehensive && len(cons.Dates) > 0 {
		effectiveThreshold = s.opts.ComprehensiveThreshold
	}

	var results []Match
	for _, hit := range hits {
		if hit.Score < effectiveThreshold {
			continue
		}
		if !accept(hit.Record, cons) {
			continue
		}
		results = append(results, Match{
			Record: hit.Record,
			Score:  math.Round(hit.Score*1e4) / 1e4,
		})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

// suspiciousHourLimit bounds the suspicious-query hard filter: hours in
// [0, suspiciousHourLimit) pass. Deliberately one hour wider than the
// synthesizer's night phrasing bucket.
const suspiciousHourLimit = 6

// accept applies every active hard filter to one candidate.
func accept(rec domain.SightingRecord, cons querynlp.Constraints) bool {
	if cons.Suspicious && rec.Hour() >= suspiciousHourLimit {
		return false
	}
	if len(cons.Cameras) > 0 && !cons.Cameras[rec.CameraID] {
		return false
	}
	if len(cons.Dates) > 0 && !cons.Dates[rec.Date()] {
		return false
	}
	if len(cons.Vehicles) > 0 && !cons.Vehicles[rec.VehicleNo] {
		return false
	}
	if len(cons.Locations) > 0 && !cons.Locations[rec.Location] {
		return false
	}
	return true
}

func (s *Service) logConstraints(cons querynlp.Constraints) {
	if len(cons.Cameras) > 0 {
		s.logger.Debug("extracted camera filters", "cameras", setKeys(cons.Cameras))
	}
	if len(cons.Dates) > 0 {
		s.logger.Debug("extracted date filters", "dates", setKeys(cons.Dates))
	}
	if len(cons.Vehicles) > 0 {
		s.logger.Debug("extracted vehicle filters", "vehicles", setKeys(cons.Vehicles))
	}
	if len(cons.Locations) > 0 {
		s.logger.Debug("extracted location filters", "locations", setKeys(cons.Locations))
	}
	if cons.Comprehensive {
		s.logger.Debug("comprehensive query detected, expanding top_k")
	}
}

func setKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
