// Package sensor defines the capability interfaces for the terminal's
// peripherals. The core depends only on these contracts, never on a
// concrete device: NFC transport framing, fingerprint UART protocol and
// video capture all live behind them, out of tree.
//
// Every operation takes a context and must honor its deadline. A timed-out
// operation leaves no partial state behind; callers reissue the request
// rather than resuming a half-finished read.
package sensor

import (
	"context"
	"errors"
)

// ErrTimeout is returned when a sensor operation exceeds its deadline.
// It is distinct from a sensor-reported negative result (e.g. a
// fingerprint that scanned fine but did not match).
var ErrTimeout = errors.New("sensor operation timed out")

// CardWriter writes a sealed credential payload to a card during
// enrollment.
type CardWriter interface {
	WritePayload(ctx context.Context, payload string) error
}

// MatchResult is the sensor's similarity decision for one probe. The
// match threshold is a sensor-side policy concern; the core only sees
// the boolean plus the reported confidence.
type MatchResult struct {
	Matched    bool
	Confidence int
	// TemplateID is the slot the probe actually matched. For sensors that
	// verify against a single slot it equals the requested ref; sensors
	// that search the whole template bank may report a different slot.
	TemplateID int
}

// FingerprintSensor is the biometric matcher capability. Template refs
// are slots 1-120 in the sensor's template bank.
type FingerprintSensor interface {
	// Enroll captures a live finger and stores its template at the slot.
	Enroll(ctx context.Context, templateRef int) error
	// Match captures a live probe and compares it against the slot.
	Match(ctx context.Context, templateRef int) (MatchResult, error)
	// DeleteTemplate frees a slot, e.g. when rolling back a failed
	// enrollment.
	DeleteTemplate(ctx context.Context, templateRef int) error
}

// Camera yields one person-count sample per call. Classification happens
// in the external detector; the core consumes only the count.
type Camera interface {
	CaptureCount(ctx context.Context) (int, error)
}

// DoorSensor reports whether the vehicle door is closed.
type DoorSensor interface {
	Closed(ctx context.Context) (bool, error)
}
