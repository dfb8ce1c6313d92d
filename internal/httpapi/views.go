package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// Wire representations. Internal types carry state (manifest set
// semantics, nullability) that should not leak into the JSON surface.

type tripSessionView struct {
	TripID          string   `json:"trip_id"`
	State           string   `json:"state"`
	Manifest        []string `json:"manifest"`
	ManifestCount   int      `json:"manifest_count"`
	ReconciledCount *int     `json:"reconciled_count,omitempty"`
	DoorClosed      bool     `json:"door_closed"`
	AbortReason     string   `json:"abort_reason,omitempty"`
	StartedAt       string   `json:"started_at,omitempty"`
	EndedAt         string   `json:"ended_at,omitempty"`
}

func sessionView(sess types.TripSession) tripSessionView {
	v := tripSessionView{
		TripID:        sess.TripID,
		State:         string(sess.State),
		Manifest:      sess.Manifest.IDs(),
		ManifestCount: sess.Manifest.Len(),
		DoorClosed:    sess.DoorClosed,
		AbortReason:   string(sess.AbortReason),
	}
	if sess.ReconciledCount != nil {
		n := *sess.ReconciledCount
		v.ReconciledCount = &n
	}
	if !sess.StartTime.IsZero() {
		v.StartedAt = sess.StartTime.UTC().Format(time.RFC3339)
	}
	if !sess.EndTime.IsZero() {
		v.EndedAt = sess.EndTime.UTC().Format(time.RFC3339)
	}
	return v
}

type authAttemptView struct {
	AttemptID           string `json:"attempt_id"`
	HajjID              string `json:"hajj_id,omitempty"`
	CardVerified        bool   `json:"card_verified"`
	FingerprintVerified bool   `json:"fingerprint_verified"`
	Outcome             string `json:"outcome"`
	Reason              string `json:"reason,omitempty"`
	OccurredAt          string `json:"occurred_at"`
}

func attemptView(att types.AuthAttempt) authAttemptView {
	return authAttemptView{
		AttemptID:           att.AttemptID,
		HajjID:              att.HajjID,
		CardVerified:        att.CardVerified,
		FingerprintVerified: att.FingerprintVerified,
		Outcome:             string(att.Outcome),
		Reason:              att.Reason,
		OccurredAt:          att.OccurredAt.UTC().Format(time.RFC3339),
	}
}

type pilgrimRecordView struct {
	HajjID         string `json:"hajj_id"`
	Name           string `json:"name"`
	FingerprintRef int    `json:"fingerprint_ref"`
	EnrolledAt     string `json:"enrolled_at"`
}

// pilgrimView deliberately omits the sealed credential: it lives on the
// card and in the store, not on the admin API.
func pilgrimView(rec types.PilgrimRecord) pilgrimRecordView {
	return pilgrimRecordView{
		HajjID:         rec.HajjID,
		Name:           rec.Name,
		FingerprintRef: rec.FingerprintRef,
		EnrolledAt:     rec.EnrolledAt.UTC().Format(time.RFC3339),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
