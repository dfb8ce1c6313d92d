package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// SeedDev inserts a couple of enrolled pilgrims for local development.
// Their cards are sealed with the running terminal's codec so the
// credentials round-trip through the real authenticate path.
func SeedDev(ctx context.Context, conn *sql.DB, cdc *codec.Codec) error {
	seeds := []struct {
		hajjID string
		name   string
		ref    int
	}{
		{"HAJJ-0001", "Dev Pilgrim One", 1},
		{"HAJJ-0002", "Dev Pilgrim Two", 2},
	}

	now := time.Now().UTC().UnixMilli()

	for _, s := range seeds {
		nonce, err := codec.NewNonce()
		if err != nil {
			return fmt.Errorf("seed %s: %w", s.hajjID, err)
		}
		sealed, err := cdc.Encrypt(types.Credential{HajjID: s.hajjID, IssueNonce: nonce})
		if err != nil {
			return fmt.Errorf("seed %s: seal card: %w", s.hajjID, err)
		}

		var exists int
		err = conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pilgrims WHERE hajj_id = ? AND superseded_at_ms IS NULL;`,
			s.hajjID,
		).Scan(&exists)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("seed %s: check existing: %w", s.hajjID, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := conn.ExecContext(ctx, `
INSERT INTO pilgrims(hajj_id, name, card_credential, fingerprint_ref, enrolled_at_ms)
VALUES (?, ?, ?, ?, ?);
`, s.hajjID, s.name, sealed, s.ref, now); err != nil {
			return fmt.Errorf("seed %s: insert: %w", s.hajjID, err)
		}
	}

	return nil
}
