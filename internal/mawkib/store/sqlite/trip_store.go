package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/hajjtech/mawkib/internal/db"
	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// TripStore persists finalized trip sessions. A session and its manifest
// commit in one transaction so a partially written trip is never visible.
type TripStore struct {
	conn   *sql.DB
	writer *dbpkg.Worker
}

func NewTripStore(conn *sql.DB, writer *dbpkg.Worker) *TripStore {
	return &TripStore{conn: conn, writer: writer}
}

func (s *TripStore) Record(ctx context.Context, session types.TripSession) error {
	var reconciled any
	if session.ReconciledCount != nil {
		reconciled = *session.ReconciledCount
	}
	var abortReason any
	if session.AbortReason != "" {
		abortReason = string(session.AbortReason)
	}
	var startedMs, endedMs any
	if !session.StartTime.IsZero() {
		startedMs = session.StartTime.UTC().UnixMilli()
	}
	if !session.EndTime.IsZero() {
		endedMs = session.EndTime.UTC().UnixMilli()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM trips WHERE trip_id = ?;`, session.TripID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("Record check trip_id: %w", err)
		}
		if n > 0 {
			return store.ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO trips(
  trip_id, state, reconciled_count, door_closed, abort_reason,
  started_at_ms, ended_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			session.TripID, string(session.State), reconciled,
			boolToInt(session.DoorClosed), abortReason, startedMs, endedMs,
		); err != nil {
			return fmt.Errorf("Record insert trip: %w", err)
		}

		for i, hajjID := range session.Manifest.IDs() {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO trip_manifest(trip_id, position, hajj_id) VALUES (?, ?, ?);
`, session.TripID, i, hajjID); err != nil {
				return fmt.Errorf("Record insert manifest row %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *TripStore) List(ctx context.Context, limit int) ([]types.TripSession, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.QueryContext(ctx, `
SELECT trip_id, state, reconciled_count, door_closed, abort_reason,
       started_at_ms, ended_at_ms
FROM trips
ORDER BY id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("List query trips: %w", err)
	}
	defer rows.Close()

	var sessions []types.TripSession
	for rows.Next() {
		var (
			sess        types.TripSession
			state       string
			reconciled  sql.NullInt64
			doorClosed  int
			abortReason sql.NullString
			startedMs   sql.NullInt64
			endedMs     sql.NullInt64
		)
		if err := rows.Scan(&sess.TripID, &state, &reconciled, &doorClosed,
			&abortReason, &startedMs, &endedMs); err != nil {
			return nil, fmt.Errorf("List scan trip: %w", err)
		}
		sess.State = types.TripState(state)
		if reconciled.Valid {
			v := int(reconciled.Int64)
			sess.ReconciledCount = &v
		}
		sess.DoorClosed = doorClosed != 0
		if abortReason.Valid {
			sess.AbortReason = types.AbortReason(abortReason.String)
		}
		if startedMs.Valid {
			sess.StartTime = time.UnixMilli(startedMs.Int64).UTC()
		}
		if endedMs.Valid {
			sess.EndTime = time.UnixMilli(endedMs.Int64).UTC()
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if err := s.loadManifest(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *TripStore) loadManifest(ctx context.Context, sess *types.TripSession) error {
	rows, err := s.conn.QueryContext(ctx, `
SELECT hajj_id FROM trip_manifest WHERE trip_id = ? ORDER BY position;
`, sess.TripID)
	if err != nil {
		return fmt.Errorf("load manifest %s: %w", sess.TripID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var hajjID string
		if err := rows.Scan(&hajjID); err != nil {
			return fmt.Errorf("load manifest %s scan: %w", sess.TripID, err)
		}
		sess.Manifest.Add(hajjID)
	}
	return rows.Err()
}
