package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// RetentionPruner periodically deletes operation log and health rows older
// than the retention period. A retention of 0 disables it.
type RetentionPruner struct {
	targets   map[string]store.Pruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type RetentionConfig struct {
	// RetentionDays is how many days of history to keep. 0 keeps everything.
	RetentionDays int

	// Interval between prune passes. Defaults to 6h.
	Interval time.Duration
}

// NewRetentionPruner creates a pruner over the named targets. Call Start to
// begin the background loop.
func NewRetentionPruner(targets map[string]store.Pruner, cfg RetentionConfig, logger *slog.Logger) *RetentionPruner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &RetentionPruner{
		targets:   targets,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger.With("component", "retention"),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs one prune immediately and then one per interval until ctx ends
// or Stop is called.
func (p *RetentionPruner) Start(ctx context.Context) {
	if p.retention <= 0 || len(p.targets) == 0 {
		p.logger.Info("retention pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("retention pruner started",
		"retention_days", int(p.retention.Hours()/24), "interval", p.interval)
}

// Stop signals the loop to exit and waits for it. Safe to call repeatedly.
func (p *RetentionPruner) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

func (p *RetentionPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

// PruneOnce runs a single pass over every target and returns the total
// number of deleted rows.
func (p *RetentionPruner) PruneOnce(ctx context.Context) int64 {
	cutoff := p.now().UTC().Add(-p.retention)
	var total int64
	for name, t := range p.targets {
		deleted, err := t.PruneOlderThan(ctx, cutoff)
		if err != nil {
			p.logger.Warn("prune failed", "target", name, "err", err)
			continue
		}
		if deleted > 0 {
			p.logger.Info("pruned", "target", name, "rows", deleted, "cutoff", cutoff.Format(time.RFC3339))
		}
		total += deleted
	}
	return total
}
