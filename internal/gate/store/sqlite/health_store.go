package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/gatectl/internal/db"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

type HealthStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHealthStore(db *sql.DB, writer *dbpkg.Worker) *HealthStore {
	return &HealthStore{db: db, writer: writer}
}

func (s *HealthStore) RecordHealth(ctx context.Context, h store.HealthSample) error {
	if h.SampledAt.IsZero() {
		h.SampledAt = time.Now().UTC()
	}

	var temp any
	if h.TemperatureC != nil {
		temp = *h.TemperatureC
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO health_samples(sampled_at_ms, temperature_c, usb_ok, usb_failures, restarts)
VALUES (?, ?, ?, ?, ?);
`, h.SampledAt.UTC().UnixMilli(), temp, boolInt(h.USBOK), h.USBFailures, h.Restarts); err != nil {
			return fmt.Errorf("health sample insert: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent sample, or nil when none was recorded.
func (s *HealthStore) Latest(ctx context.Context) (*store.HealthSample, error) {
	var (
		sampledMs int64
		temp      sql.NullFloat64
		usbOK     int
		out       store.HealthSample
	)
	err := s.db.QueryRowContext(ctx, `
SELECT sampled_at_ms, temperature_c, usb_ok, usb_failures, restarts
FROM health_samples ORDER BY sampled_at_ms DESC, sample_id DESC LIMIT 1;
`).Scan(&sampledMs, &temp, &usbOK, &out.USBFailures, &out.Restarts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("health sample latest: %w", err)
	}

	out.SampledAt = time.UnixMilli(sampledMs).UTC()
	out.USBOK = usbOK == 1
	if temp.Valid {
		v := temp.Float64
		out.TemperatureC = &v
	}
	return &out, nil
}

func (s *HealthStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM health_samples WHERE sampled_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("health sample prune: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
