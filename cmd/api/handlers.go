package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sightline-ai/sightline/engine/domain"
	"github.com/sightline-ai/sightline/engine/search"
	"github.com/sightline-ai/sightline/pkg/metrics"
)

type serverMetrics struct {
	searches       *metrics.Counter
	searchErrors   *metrics.Counter
	searchLatency  *metrics.Histogram
	refreshes      *metrics.Counter
	refreshErrors  *metrics.Counter
	recordsIndexed *metrics.Gauge
}

func newServerMetrics(reg *metrics.Registry) *serverMetrics {
	return &serverMetrics{
		searches:       reg.Counter("sightline_searches_total", "Search requests served"),
		searchErrors:   reg.Counter("sightline_search_errors_total", "Search requests that failed"),
		searchLatency:  reg.Histogram("sightline_search_duration_seconds", "Search latency", nil),
		refreshes:      reg.Counter("sightline_refreshes_total", "Successful index rebuilds"),
		refreshErrors:  reg.Counter("sightline_refresh_errors_total", "Failed index rebuilds"),
		recordsIndexed: reg.Gauge("sightline_records_indexed", "Records in the current corpus"),
	}
}

type apiServer struct {
	svc      *search.Service
	cfg      Config
	database string
	model    string
	nats     *nats.Conn
	metrics  *serverMetrics
	logger   *slog.Logger
}

// searchRequest is the JSON body for POST /search. Absent top_k and
// threshold select the configured defaults.
type searchRequest struct {
	Query     string   `json:"query"`
	TopK      *int     `json:"top_k"`
	Threshold *float64 `json:"threshold"`
}

// matchJSON mirrors a SightingRecord plus its similarity score.
type matchJSON struct {
	CameraID     string  `json:"camera_id"`
	CameraName   string  `json:"camera_name"`
	Location     string  `json:"location"`
	Timestamp    string  `json:"timestamp"`
	VehicleNo    string  `json:"vehicle_no"`
	SnapshotPath string  `json:"snapshotpath"`
	VideoPath    string  `json:"videopath"`
	Score        float64 `json:"score"`
}

type searchResponse struct {
	Count           int         `json:"count"`
	Query           string      `json:"query"`
	Matches         []matchJSON `json:"matches"`
	ExecutionTimeMS float64     `json:"execution_time_ms"`
}

func (a *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Query) < 2 {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}

	topK := 0
	if req.TopK != nil {
		if *req.TopK < 1 || *req.TopK > 20 {
			writeError(w, http.StatusBadRequest, "top_k must be between 1 and 20")
			return
		}
		topK = *req.TopK
	}
	threshold := -1.0
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
			return
		}
		threshold = *req.Threshold
	}

	start := time.Now()
	matches, err := a.svc.Search(r.Context(), req.Query, topK, threshold)
	a.metrics.searchLatency.Since(start)
	if err != nil {
		a.metrics.searchErrors.Inc()
		a.logger.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	a.metrics.searches.Inc()

	out := make([]matchJSON, len(matches))
	for i, m := range matches {
		out[i] = matchJSON{
			CameraID:     m.Record.CameraID,
			CameraName:   m.Record.CameraName,
			Location:     m.Record.Location,
			Timestamp:    m.Record.TimestampText(),
			VehicleNo:    m.Record.VehicleNo,
			SnapshotPath: m.Record.SnapshotPath,
			VideoPath:    m.Record.VideoPath,
			Score:        m.Score,
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Count:           len(matches),
		Query:           req.Query,
		Matches:         out,
		ExecutionTimeMS: math.Round(float64(time.Since(start).Microseconds())/10) / 100,
	})
}

type refreshResponse struct {
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	Count           int     `json:"count"`
}

func (a *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	count, err := a.svc.Refresh(r.Context())
	if err != nil {
		a.metrics.refreshErrors.Inc()
		a.logger.Error("refresh failed", "err", err)
		// The index keeps serving its previous corpus.
		if errors.Is(err, domain.ErrSourceUnavailable) {
			writeError(w, http.StatusBadGateway, "record source unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	took := time.Since(start)
	a.metrics.refreshes.Inc()
	a.metrics.recordsIndexed.Set(int64(count))
	announceIndexed(r.Context(), a.nats, count, took, a.logger)

	writeJSON(w, http.StatusOK, refreshResponse{
		Status:          "refreshed",
		DurationSeconds: math.Round(took.Seconds()*1000) / 1000,
		Count:           count,
	})
}

type healthResponse struct {
	Status         string `json:"status"`
	RecordsIndexed int    `json:"records_indexed"`
	Model          string `json:"model"`
	Database       string `json:"database"`
}

func (a *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "online",
		RecordsIndexed: a.svc.Count(),
		Model:          a.model,
		Database:       a.database,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
