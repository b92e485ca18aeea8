package events

import "time"

// TypePresenceRecorded is the queue message type for PresenceRecorded.
const TypePresenceRecorded = "presence.recorded"

// PresenceRecorded is emitted after a submission has been persisted, whatever
// its status.
type PresenceRecorded struct {
	RecordID   int64     `json:"record_id"`
	Name       string    `json:"name"`
	Course     string    `json:"course"`
	Status     string    `json:"status"`
	DistanceM  float64   `json:"distance_m"`
	RecordedAt time.Time `json:"recorded_at"`
}
