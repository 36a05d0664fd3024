// Package report renders search matches as a fixed-width analytics report
// for terminal consumption.
package report

import (
	"fmt"
	"strings"

	"github.com/sightline-ai/sightline/engine/search"
)

const ruleWidth = 100

// Render formats matches as a human-readable table. Scores are shown as
// integer percentages.
func Render(matches []search.Match, query string) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No matching records found for query: '%s' (Try adjusting threshold?)", query)
	}

	var b strings.Builder
	b.WriteString("AI ANALYTICS REPORT\n")
	fmt.Fprintf(&b, "Query: '%s' | matches: %d\n", query, len(matches))
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(&b, "%-10s %-25s %-20s %-12s %-8s %s\n",
		"Camera", "Location", "Timestamp", "Vehicle No.", "Match%", "Snapshot")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	for _, m := range matches {
		pct := fmt.Sprintf("%d%%", int(m.Score*100))
		fmt.Fprintf(&b, "%-10s %-25s %-20s %-12s %-8s %s\n",
			m.Record.CameraID, m.Record.Location, m.Record.TimestampText(),
			m.Record.VehicleNo, pct, m.Record.SnapshotPath)
	}
	return strings.TrimRight(b.String(), "\n")
}
