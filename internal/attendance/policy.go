package attendance

import "presence/internal/geo"

// Decide returns StatusAccepted iff distance <= threshold. The boundary is inclusive.
func Decide(distance, threshold float64) Status {
	if distance <= threshold {
		return StatusAccepted
	}
	return StatusRefused
}

// Policy gates submissions by their distance from a fixed reference point.
type Policy struct {
	Origin       geo.Point
	MaxDistanceM float64
}

// Evaluate measures p against the reference point and decides its status.
func (p Policy) Evaluate(pos geo.Point) (float64, Status) {
	d := p.Origin.DistanceTo(pos)
	return d, Decide(d, p.MaxDistanceM)
}
