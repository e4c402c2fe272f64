package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	dbpkg "github.com/BrandonDHaskell/gatectl/internal/db"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

type OperationLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewOperationLogStore(db *sql.DB, writer *dbpkg.Worker) *OperationLogStore {
	return &OperationLogStore{db: db, writer: writer}
}

// IdentityHash is the lookup key stored next to each identity so reports can
// group by caller without normalising the raw column.
func IdentityHash(identity string) []byte {
	sum := blake3.Sum256([]byte(identity))
	return sum[:]
}

func (s *OperationLogStore) Append(ctx context.Context, e store.OperationLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var idHash any
	if e.Identity != "" {
		idHash = IdentityHash(e.Identity)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO operation_log(
  recorded_at_ms, kind, channel, identity, identity_hash,
  message_text, action, granted, sound_played
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.Timestamp.UTC().UnixMilli(), string(e.Kind), e.Channel, e.Identity, idHash,
			nullIfEmpty(e.Text), nullIfEmpty(e.Action), boolInt(e.Granted), boolInt(e.SoundPlayed),
		); err != nil {
			return fmt.Errorf("operation log insert: %w", err)
		}
		return nil
	})
}

// CountGranted returns how many granted decisions identity received since
// since. Used by the check-access CLI to show history next to the verdict.
func (s *OperationLogStore) CountGranted(ctx context.Context, identity string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM operation_log
WHERE identity_hash = ? AND granted = 1 AND recorded_at_ms >= ?;
`, IdentityHash(identity), since.UTC().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("operation log count: %w", err)
	}
	return n, nil
}

func (s *OperationLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM operation_log WHERE recorded_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("operation log prune: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
