package semantic

import (
	"fmt"
	"strings"

	"github.com/sightline-ai/sightline/engine/domain"
)

// Describe synthesizes the natural-language document for one sighting. The
// sentence embeds the plate, location, camera identifiers and timestamp, and
// ends with a time-of-day phrase so that queries like "late night" or "early
// morning" land near the right records in vector space.
func Describe(r domain.SightingRecord) string {
	num := cameraNumber(r.CameraID)
	human := r.CameraID
	if num != "" {
		human = "Cam " + num
	}
	return fmt.Sprintf(
		"Vehicle with license plate %s was seen at %s (%s, %s, Camera %s) on %s. It was during the %s.",
		r.VehicleNo, r.Location, r.CameraID, human, num, r.TimestampText(),
		timeOfDay(r.Hour()),
	)
}

// cameraNumber extracts the digits from a camera id, e.g. "CAM_006" -> "006".
func cameraNumber(cameraID string) string {
	var b strings.Builder
	for _, c := range cameraID {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// timeOfDay maps an hour to the phrase appended to each document. The [0,5)
// bucket carries the "suspicious hours" wording the suspicious-query hard
// filter also keys on; note the filter itself accepts hours up to 6.
func timeOfDay(hour int) string {
	switch {
	case hour < 5:
		return "middle of the night, late night, suspicious hours"
	case hour < 9:
		return "early morning, dawn"
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	case hour < 21:
		return "evening, dusk"
	default:
		return "night, late evening"
	}
}
