// Package domain defines the core sighting types shared across the engine.
// Adapter-specific row shapes are converted to SightingRecord at the
// engine/source boundary and never leak past it.
package domain

import "time"

// TimestampLayout is the canonical second-precision timestamp form used
// everywhere a sighting time is rendered as text.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the ISO calendar-date form used by date filters.
const DateLayout = "2006-01-02"

// UnknownVehicle is the sentinel plate for sightings where no plate was read.
const UnknownVehicle = "UNKNOWN"

// SightingRecord is one vehicle detection event: a camera saw a vehicle at a
// location at a point in time. Records are immutable once read into the index.
type SightingRecord struct {
	CameraID     string    `json:"camera_id"`
	CameraName   string    `json:"camera_name"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"-"`
	VehicleNo    string    `json:"vehicle_no"`
	SnapshotPath string    `json:"snapshotpath"`
	VideoPath    string    `json:"videopath"`
}

// TimestampText renders the sighting time in the canonical form.
func (r SightingRecord) TimestampText() string {
	return r.Timestamp.Format(TimestampLayout)
}

// Date returns the ISO calendar date of the sighting.
func (r SightingRecord) Date() string {
	return r.Timestamp.Format(DateLayout)
}

// Hour returns the 24h clock hour of the sighting.
func (r SightingRecord) Hour() int {
	return r.Timestamp.Hour()
}

// Normalize fills the fallback values a valid record must carry: the plate is
// never empty and optional display fields default to "N/A".
func (r SightingRecord) Normalize() SightingRecord {
	if r.VehicleNo == "" {
		r.VehicleNo = UnknownVehicle
	}
	if r.CameraName == "" {
		r.CameraName = "N/A"
	}
	if r.VideoPath == "" {
		r.VideoPath = "N/A"
	}
	return r
}
