package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePruner) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestRetentionPruner_DisabledWhenRetentionZero(t *testing.T) {
	fp := &fakePruner{}
	p := service.NewRetentionPruner(map[string]store.Pruner{"oplog": fp}, service.RetentionConfig{}, nil)

	p.Start(context.Background())
	p.Stop()
	assert.Zero(t, fp.calls())
}

func TestRetentionPruner_PrunesOnStart(t *testing.T) {
	fp := &fakePruner{deleted: 3}
	p := service.NewRetentionPruner(map[string]store.Pruner{"oplog": fp},
		service.RetentionConfig{RetentionDays: 30, Interval: time.Hour}, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return fp.calls() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	fp.mu.Lock()
	defer fp.mu.Unlock()
	age := time.Since(fp.cutoffs[0])
	assert.InDelta(t, (30 * 24 * time.Hour).Seconds(), age.Seconds(), 60)
}

func TestRetentionPruner_PruneOnceSkipsFailures(t *testing.T) {
	ok := &fakePruner{deleted: 2}
	bad := &fakePruner{err: errors.New("disk gone")}
	p := service.NewRetentionPruner(map[string]store.Pruner{"oplog": ok, "health": bad},
		service.RetentionConfig{RetentionDays: 1}, nil)

	assert.Equal(t, int64(2), p.PruneOnce(context.Background()))
	assert.Equal(t, 1, ok.calls())
	assert.Equal(t, 1, bad.calls())
}
