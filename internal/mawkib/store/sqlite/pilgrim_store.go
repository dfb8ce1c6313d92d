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

// PilgrimStore persists pilgrim records. Writes go through the single
// writer so a uniqueness check and its insert are one transaction; the
// partial unique indexes in the schema back the checks up.
type PilgrimStore struct {
	conn   *sql.DB
	writer *dbpkg.Worker
}

func NewPilgrimStore(conn *sql.DB, writer *dbpkg.Worker) *PilgrimStore {
	return &PilgrimStore{conn: conn, writer: writer}
}

func (s *PilgrimStore) Create(ctx context.Context, rec types.PilgrimRecord) error {
	if rec.EnrolledAt.IsZero() {
		rec.EnrolledAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM pilgrims
WHERE superseded_at_ms IS NULL AND (hajj_id = ? OR fingerprint_ref = ?);
`, rec.HajjID, rec.FingerprintRef).Scan(&n)
		if err != nil {
			return fmt.Errorf("Create check uniqueness: %w", err)
		}
		if n > 0 {
			return store.ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO pilgrims(hajj_id, name, card_credential, fingerprint_ref, enrolled_at_ms)
VALUES (?, ?, ?, ?, ?);
`, rec.HajjID, rec.Name, rec.CardCredential, rec.FingerprintRef,
			rec.EnrolledAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Create insert: %w", err)
		}
		return nil
	})
}

func (s *PilgrimStore) FindByHajjID(ctx context.Context, hajjID string) (types.PilgrimRecord, error) {
	return s.findOne(ctx, `hajj_id = ?`, hajjID)
}

func (s *PilgrimStore) FindByFingerprintRef(ctx context.Context, ref int) (types.PilgrimRecord, error) {
	return s.findOne(ctx, `fingerprint_ref = ?`, ref)
}

func (s *PilgrimStore) findOne(ctx context.Context, cond string, arg any) (types.PilgrimRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
SELECT hajj_id, name, card_credential, fingerprint_ref, enrolled_at_ms
FROM pilgrims
WHERE superseded_at_ms IS NULL AND `+cond+`;`, arg)

	var rec types.PilgrimRecord
	var enrolledMs int64
	err := row.Scan(&rec.HajjID, &rec.Name, &rec.CardCredential, &rec.FingerprintRef, &enrolledMs)
	if err == sql.ErrNoRows {
		return types.PilgrimRecord{}, store.ErrNotFound
	}
	if err != nil {
		return types.PilgrimRecord{}, fmt.Errorf("find pilgrim: %w", err)
	}
	rec.EnrolledAt = time.UnixMilli(enrolledMs).UTC()
	return rec, nil
}

func (s *PilgrimStore) Supersede(ctx context.Context, hajjID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE pilgrims SET superseded_at_ms = ?
WHERE superseded_at_ms IS NULL AND hajj_id = ?;
`, time.Now().UTC().UnixMilli(), hajjID)
		if err != nil {
			return fmt.Errorf("Supersede update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Supersede rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *PilgrimStore) UsedFingerprintRefs(ctx context.Context) ([]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT fingerprint_ref FROM pilgrims
WHERE superseded_at_ms IS NULL
ORDER BY fingerprint_ref;`)
	if err != nil {
		return nil, fmt.Errorf("UsedFingerprintRefs query: %w", err)
	}
	defer rows.Close()

	var refs []int
	for rows.Next() {
		var ref int
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("UsedFingerprintRefs scan: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
