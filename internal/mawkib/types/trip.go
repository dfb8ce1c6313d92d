package types

import "time"

// TripState is the lifecycle state of a trip session.
type TripState string

const (
	TripIdle             TripState = "idle"
	TripPreVerification  TripState = "pre_trip_verification"
	TripBoarding         TripState = "boarding"
	TripHeadcountPending TripState = "headcount_pending"
	TripInTrip           TripState = "in_trip"
	TripCompleting       TripState = "completing"
	TripClosed           TripState = "closed"
	TripAborted          TripState = "aborted"
)

// Terminal reports whether the state admits no further transitions.
func (s TripState) Terminal() bool {
	return s == TripClosed || s == TripAborted
}

// AbortReason explains why a session ended in TripAborted.
type AbortReason string

const (
	AbortHeadcountMismatch AbortReason = "headcount_mismatch"
	AbortDoorTimeout       AbortReason = "door_timeout"
	AbortSensorFailure     AbortReason = "sensor_failure"
	AbortAdministrative    AbortReason = "administrative_abort"
)

// Manifest is the ordered, duplicate-free set of pilgrims admitted for one
// trip. Insertion order is boarding order.
type Manifest struct {
	ids  []string
	seen map[string]struct{}
}

// Add admits a hajj id, returning false if it was already present.
// Re-admission is a no-op so a pilgrim may re-tap without error.
func (m *Manifest) Add(hajjID string) bool {
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if _, ok := m.seen[hajjID]; ok {
		return false
	}
	m.seen[hajjID] = struct{}{}
	m.ids = append(m.ids, hajjID)
	return true
}

func (m *Manifest) Contains(hajjID string) bool {
	_, ok := m.seen[hajjID]
	return ok
}

func (m *Manifest) Len() int { return len(m.ids) }

// Clone returns an independent copy of the manifest.
func (m *Manifest) Clone() Manifest {
	var out Manifest
	for _, id := range m.ids {
		out.Add(id)
	}
	return out
}

// IDs returns the admitted hajj ids in boarding order. The slice is a copy.
func (m *Manifest) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// TripSession is one vehicle trip from boarding through completion. It is
// owned exclusively by the trip controller; at most one session per vehicle
// is non-terminal at a time.
type TripSession struct {
	TripID           string
	State            TripState
	Manifest         Manifest
	HeadcountSamples []int
	ReconciledCount  *int // set once a reconciliation window produced a verdict
	DoorClosed       bool
	StartTime        time.Time
	EndTime          time.Time
	AbortReason      AbortReason // set only when State == TripAborted
}
