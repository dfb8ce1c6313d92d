package types

import "time"

// Outcome is the final verdict of one multi-factor authentication attempt.
type Outcome string

const (
	OutcomeAccepted            Outcome = "accepted"
	OutcomeRejectedCard        Outcome = "rejected_card"
	OutcomeRejectedFingerprint Outcome = "rejected_fingerprint"
	OutcomeRejectedMismatch    Outcome = "rejected_mismatch"
	OutcomeError               Outcome = "error"
)

// AuthAttempt captures a single authentication attempt for the audit log.
// It is immutable once finalized; every attempt is appended to the audit
// trail regardless of outcome.
type AuthAttempt struct {
	AttemptID           string
	HajjID              string // empty when the card never resolved to an identity
	CardVerified        bool
	FingerprintVerified bool
	Outcome             Outcome
	Reason              string
	OccurredAt          time.Time
}
