// Package querynlp extracts structured sighting constraints from free-form
// query text using regex patterns. No external dependencies. Every extractor
// is a total function: malformed input yields an empty constraint, never an
// error.
package querynlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Constraints is the structured interpretation of one query. Empty sets mean
// "no constraint of this kind", not "match nothing". Built fresh per search
// and discarded after the call returns.
type Constraints struct {
	Cameras   map[string]bool
	Dates     map[string]bool
	Vehicles  map[string]bool
	Locations map[string]bool

	// Soft intent flags. They change search policy (pool size, threshold)
	// rather than filtering results directly.
	Comprehensive bool
	Suspicious    bool
}

// HasFilters reports whether any hard filter is active. The suspicious flag
// counts: it rejects records outside the early-morning window.
func (c Constraints) HasFilters() bool {
	return len(c.Cameras) > 0 || len(c.Dates) > 0 || len(c.Vehicles) > 0 ||
		len(c.Locations) > 0 || c.Suspicious
}

// Extract runs every sub-extractor over the query. knownLocations is the set
// of distinct location names observed at the last index build; now anchors
// relative date terms.
func Extract(query string, knownLocations []string, now time.Time) Constraints {
	q := strings.ToLower(query)
	return Constraints{
		Cameras:       Cameras(query),
		Dates:         Dates(query, now),
		Vehicles:      Vehicles(query),
		Locations:     Locations(query, knownLocations),
		Comprehensive: containsAny(q, "all ", "complete", "everything", "every "),
		Suspicious:    containsAny(q, "suspicious", "late night", "unusual"),
	}
}

func containsAny(q string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

var cameraRe = regexp.MustCompile(`cam(?:era)?[\s_]*([0-9]+)`)

// Cameras finds camera mentions like "cam 3", "cam_004" or "camera3" and
// normalizes each to the stable CAM_NNN identifier form.
func Cameras(query string) map[string]bool {
	found := make(map[string]bool)
	for _, m := range cameraRe.FindAllStringSubmatch(strings.ToLower(query), -1) {
		num := strings.TrimLeft(m[1], "0")
		if num == "" {
			num = "0"
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		found[fmt.Sprintf("CAM_%03d", n)] = true
	}
	return found
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	localDateRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	lastDaysRe  = regexp.MustCompile(`last (\d+) days`)
)

// Dates detects relative terms (today, yesterday, day before yesterday),
// explicit ISO dates, day-first localized dates, and "last N days" ranges.
// All matched forms land in one set of ISO date strings.
func Dates(query string, now time.Time) map[string]bool {
	q := strings.ToLower(query)
	found := make(map[string]bool)

	if strings.Contains(q, "today") {
		found[now.Format("2006-01-02")] = true
	}
	if strings.Contains(q, "yesterday") {
		found[now.AddDate(0, 0, -1).Format("2006-01-02")] = true
	}
	if strings.Contains(q, "day before yesterday") {
		found[now.AddDate(0, 0, -2).Format("2006-01-02")] = true
	}

	// ISO dates are captured verbatim, without calendar validation.
	for _, m := range isoDateRe.FindAllStringSubmatch(q, -1) {
		found[m[1]] = true
	}

	// D/M/YYYY or DD-MM-YYYY, parsed day-first. Invalid calendar dates are
	// silently discarded.
	for _, m := range localDateRe.FindAllStringSubmatch(q, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if dt.Year() != year || dt.Month() != time.Month(month) || dt.Day() != day {
			continue
		}
		found[dt.Format("2006-01-02")] = true
	}

	// "last N days" expands to the N+1 dates from today back N days.
	if m := lastDaysRe.FindStringSubmatch(q); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			for i := 0; i <= days; i++ {
				found[now.AddDate(0, 0, -i).Format("2006-01-02")] = true
			}
		}
	}

	return found
}

var plateRe = regexp.MustCompile(`[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{1,4}`)

// Vehicles finds registration plates in the query, plus the UNKNOWN sentinel
// when the query asks about unidentified vehicles.
func Vehicles(query string) map[string]bool {
	q := strings.ToUpper(query)
	found := make(map[string]bool)
	for _, m := range plateRe.FindAllString(q, -1) {
		found[m] = true
	}
	if strings.Contains(q, "UNKNOWN") || strings.Contains(q, "NO PLATE") ||
		strings.Contains(q, "UNIDENTIFIED") {
		found["UNKNOWN"] = true
	}
	return found
}

var locationSplitRe = regexp.MustCompile(`[\s_]+`)

// Locations matches the query against known location names in two tiers.
// Tier 1 takes any location whose full name appears in the query. Tier 2 runs
// only when tier 1 found nothing: it matches single keywords (longer than 4
// characters) from each location name. The ordering keeps a shared keyword
// from over-matching when an exact name is present.
func Locations(query string, known []string) map[string]bool {
	q := strings.ToLower(query)
	found := make(map[string]bool)

	for _, loc := range known {
		if strings.Contains(q, strings.ToLower(loc)) {
			found[loc] = true
		}
	}
	if len(found) > 0 {
		return found
	}

	for _, loc := range known {
		for _, kw := range locationSplitRe.Split(strings.ToLower(loc), -1) {
			if len(kw) > 4 && strings.Contains(q, kw) {
				found[loc] = true
				break
			}
		}
	}
	return found
}
