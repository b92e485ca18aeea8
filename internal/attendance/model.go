package attendance

import "time"

// Status is the outcome of evaluating a submission against the distance threshold.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusAccepted || s == StatusRefused
}

// Record is a single, immutable presence submission. Records are append-only
// and their IDs grow with insertion order.
type Record struct {
	ID        int64     `json:"id"`
	StudentID *int64    `json:"student_id,omitempty"`
	Name      string    `json:"name"`
	Course    string    `json:"course"`
	CreatedAt time.Time `json:"created_at"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	DistanceM float64   `json:"distance_m"`
	Status    Status    `json:"status"`
}
