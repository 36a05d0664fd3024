// Package main is a terminal client for the analytics API: it submits a
// search and renders the matches as a human-readable report.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sightline-ai/sightline/engine/domain"
	"github.com/sightline-ai/sightline/engine/search"
	"github.com/sightline-ai/sightline/pkg/report"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "analytics API base URL")
	topK := flag.Int("top-k", 0, "max results (0 uses the server default)")
	threshold := flag.Float64("threshold", -1, "minimum similarity (negative uses the server default)")
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: query [flags] <natural language query>")
		os.Exit(2)
	}

	if err := run(*baseURL, query, *topK, *threshold); err != nil {
		fmt.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		os.Exit(1)
	}
}

type searchRequest struct {
	Query     string   `json:"query"`
	TopK      *int     `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

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

func run(baseURL, query string, topK int, threshold float64) error {
	req := searchRequest{Query: query}
	if topK > 0 {
		req.TopK = &topK
	}
	if threshold >= 0 {
		req.Threshold = &threshold
	}
	body, _ := json.Marshal(req)

	resp, err := http.Post(baseURL+"/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("search returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	matches := make([]search.Match, 0, len(sr.Matches))
	for _, m := range sr.Matches {
		ts, err := time.ParseInLocation(domain.TimestampLayout, m.Timestamp, time.Local)
		if err != nil {
			return fmt.Errorf("match timestamp %q: %w", m.Timestamp, err)
		}
		matches = append(matches, search.Match{
			Record: domain.SightingRecord{
				CameraID:     m.CameraID,
				CameraName:   m.CameraName,
				Location:     m.Location,
				Timestamp:    ts,
				VehicleNo:    m.VehicleNo,
				SnapshotPath: m.SnapshotPath,
				VideoPath:    m.VideoPath,
			},
			Score: m.Score,
		})
	}

	fmt.Println(report.Render(matches, sr.Query))
	fmt.Printf("\n(%d matches in %.2f ms)\n", sr.Count, sr.ExecutionTimeMS)
	return nil
}
