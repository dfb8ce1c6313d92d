package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/hajjtech/mawkib/internal/db"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// AttemptStore is the append-only audit trail of authentication attempts.
type AttemptStore struct {
	conn   *sql.DB
	writer *dbpkg.Worker
}

func NewAttemptStore(conn *sql.DB, writer *dbpkg.Worker) *AttemptStore {
	return &AttemptStore{conn: conn, writer: writer}
}

func (s *AttemptStore) Append(ctx context.Context, rec types.AuthAttempt) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	var hajjID any
	if rec.HajjID != "" {
		hajjID = rec.HajjID
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO auth_attempts(
  attempt_id, hajj_id, card_verified, fingerprint_verified,
  outcome, reason, occurred_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			rec.AttemptID, hajjID, boolToInt(rec.CardVerified), boolToInt(rec.FingerprintVerified),
			string(rec.Outcome), rec.Reason, rec.OccurredAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM auth_attempts WHERE occurred_at_ms < ?;`,
			cutoff.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("PruneOlderThan delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("PruneOlderThan rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
