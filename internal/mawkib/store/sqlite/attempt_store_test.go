package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/store/sqlite"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

func TestAttemptStore_AppendAndPrune(t *testing.T) {
	conn := openTestDB(t)
	as := sqlite.NewAttemptStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	now := time.Now().UTC()
	attempts := []types.AuthAttempt{
		{
			AttemptID:  "att-old",
			HajjID:     "HAJJ-0001",
			Outcome:    types.OutcomeRejectedCard,
			Reason:     "card_integrity",
			OccurredAt: now.AddDate(0, 0, -100),
		},
		{
			AttemptID:           "att-recent",
			HajjID:              "HAJJ-0002",
			CardVerified:        true,
			FingerprintVerified: true,
			Outcome:             types.OutcomeAccepted,
			OccurredAt:          now.AddDate(0, 0, -1),
		},
	}
	for _, a := range attempts {
		if err := as.Append(ctx, a); err != nil {
			t.Fatalf("Append(%s): %v", a.AttemptID, err)
		}
	}

	deleted, err := as.PruneOlderThan(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	var n int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_attempts;`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("%d attempts remain, want 1", n)
	}
}

func TestAttemptStore_AppendWithoutIdentity(t *testing.T) {
	conn := openTestDB(t)
	as := sqlite.NewAttemptStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	// A tampered card never resolves to an identity; hajj_id stays NULL.
	att := types.AuthAttempt{
		AttemptID:  "att-anon",
		Outcome:    types.OutcomeRejectedCard,
		Reason:     "card_integrity",
		OccurredAt: time.Now().UTC(),
	}
	if err := as.Append(ctx, att); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var hajjID any
	if err := conn.QueryRowContext(ctx,
		`SELECT hajj_id FROM auth_attempts WHERE attempt_id = ?;`, "att-anon",
	).Scan(&hajjID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if hajjID != nil {
		t.Errorf("hajj_id = %v, want NULL", hajjID)
	}
}
