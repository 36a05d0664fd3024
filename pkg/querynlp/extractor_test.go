package querynlp

import (
	"testing"
	"time"
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool)
	for _, it := range items {
		m[it] = true
	}
	return m
}

func sameSet(t *testing.T, got, want map[string]bool) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCameras(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"show cam 3 and camera_004", []string{"CAM_003", "CAM_004"}},
		{"camera3 footage", []string{"CAM_003"}},
		{"CAM_006 activity", []string{"CAM_006"}},
		{"cam 0 and cam 000", []string{"CAM_000"}},
		{"cam 12 overview", []string{"CAM_012"}},
		{"no cameras mentioned", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sameSet(t, Cameras(tt.input), setOf(tt.want...))
		})
	}
}

func TestDates(t *testing.T) {
	// A fixed evaluation instant keeps relative terms deterministic.
	now := time.Date(2024, 3, 20, 15, 0, 0, 0, time.Local)

	tests := []struct {
		input string
		want  []string
	}{
		{"what happened today", []string{"2024-03-20"}},
		{"movements yesterday", []string{"2024-03-19"}},
		{"day before yesterday at the gate", []string{"2024-03-18", "2024-03-19"}},
		{"sightings on 2024-03-15", []string{"2024-03-15"}},
		{"sightings on 15/3/2024", []string{"2024-03-15"}},
		{"sightings on 15-03-2024", []string{"2024-03-15"}},
		{"invalid 31/2/2024 date", nil},
		{"last 2 days", []string{"2024-03-20", "2024-03-19", "2024-03-18"}},
		{"nothing temporal", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sameSet(t, Dates(tt.input, now), setOf(tt.want...))
		})
	}
}

func TestDatesISOVerbatim(t *testing.T) {
	// ISO-shaped dates are captured without calendar validation; an
	// impossible date just becomes a constraint that matches nothing.
	got := Dates("check 2024-13-45", time.Now())
	sameSet(t, got, setOf("2024-13-45"))
}

func TestVehicles(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"TN09AB105 seen", []string{"TN09AB105"}},
		{"tn09ab105 lowercase", []string{"TN09AB105"}},
		{"unidentified vehicle at gate", []string{"UNKNOWN"}},
		{"no plate visible", []string{"UNKNOWN"}},
		{"unknown car near warehouse", []string{"UNKNOWN"}},
		{"TN09AB105 and KA05CD1234", []string{"TN09AB105", "KA05CD1234"}},
		{"just some text", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sameSet(t, Vehicles(tt.input), setOf(tt.want...))
		})
	}
}

func TestLocationsExactMatch(t *testing.T) {
	known := []string{"Main Gate", "Warehouse District", "Location_6"}

	got := Locations("any vehicles at the main gate today", known)
	sameSet(t, got, setOf("Main Gate"))

	got = Locations("activity near Location_6", known)
	sameSet(t, got, setOf("Location_6"))
}

func TestLocationsKeywordFallback(t *testing.T) {
	known := []string{"Warehouse District", "North Parking"}

	// No full name present: keyword tier kicks in on words longer than
	// four characters.
	got := Locations("suspicious activity at the warehouse yesterday", known)
	sameSet(t, got, setOf("Warehouse District"))

	// Words of four characters or fewer never qualify as keywords.
	got = Locations("vehicles on the east side", []string{"East Dock"})
	sameSet(t, got, setOf())
}

func TestLocationsTierPrecedence(t *testing.T) {
	known := []string{"Main Gate Entrance", "Warehouse District"}

	// "entrance" would keyword-match Main Gate Entrance anyway, but the
	// point is that an exact hit suppresses tier 2 entirely: "district"
	// must not drag in Warehouse District here.
	got := Locations("cars at main gate entrance and the district office", known)
	sameSet(t, got, setOf("Main Gate Entrance"))
}

func TestExtractFlags(t *testing.T) {
	now := time.Now()
	tests := []struct {
		input             string
		wantComprehensive bool
		wantSuspicious    bool
	}{
		{"show all vehicles today", true, false},
		{"complete history for cam 3", true, false},
		{"everything from yesterday", true, false},
		{"every sighting at the gate", true, false},
		{"suspicious activity at the warehouse", false, true},
		{"late night movements", false, true},
		{"unusual vehicle behaviour", false, true},
		{"normal query", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := Extract(tt.input, nil, now)
			if c.Comprehensive != tt.wantComprehensive {
				t.Errorf("Comprehensive = %v, want %v", c.Comprehensive, tt.wantComprehensive)
			}
			if c.Suspicious != tt.wantSuspicious {
				t.Errorf("Suspicious = %v, want %v", c.Suspicious, tt.wantSuspicious)
			}
		})
	}
}

func TestHasFilters(t *testing.T) {
	if (Constraints{}).HasFilters() {
		t.Error("empty constraints should have no filters")
	}
	if !(Constraints{Cameras: setOf("CAM_003")}).HasFilters() {
		t.Error("camera constraint should count as a filter")
	}
	// The suspicious flag is a hard filter even though it is not a set.
	if !(Constraints{Suspicious: true}).HasFilters() {
		t.Error("suspicious flag should count as a filter")
	}
	if (Constraints{Comprehensive: true}).HasFilters() {
		t.Error("comprehensive flag alone is not a filter")
	}
}

func TestExtractTotality(t *testing.T) {
	// Extractors are total functions: junk input yields empty constraints,
	// never a panic.
	for _, q := range []string{"", "???", "cam", "99/99/9999", "last -3 days", "////"} {
		c := Extract(q, []string{"Main Gate"}, time.Now())
		if c.HasFilters() && len(c.Cameras)+len(c.Dates)+len(c.Vehicles)+len(c.Locations) == 0 {
			t.Errorf("query %q: inconsistent constraint state", q)
		}
	}
}
