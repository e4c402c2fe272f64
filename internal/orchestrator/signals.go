package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// pollSignals consumes the trigger and kill files. It reports true when the
// kill file was seen.
func (o *Orchestrator) pollSignals(ctx context.Context) bool {
	if o.consumeFlag(o.cfg.TriggerFile) {
		o.logger.Info("manual trigger file seen", "path", o.cfg.TriggerFile)
		o.open(0)
		o.record(ctx, store.OperationLogEntry{
			Kind:     store.KindLocalTrigger,
			Channel:  "file",
			Identity: o.cfg.TriggerFile,
			Action:   "open",
			Granted:  true,
		})
	}
	if o.consumeFlag(o.cfg.KillFile) {
		o.logger.Info("kill file seen", "path", o.cfg.KillFile)
		return true
	}
	return false
}

// consumeFlag reports whether path exists and removes it.
func (o *Orchestrator) consumeFlag(path string) bool {
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("flag file stat failed", "path", path, "err", err)
		}
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("flag file remove failed", "path", path, "err", err)
	}
	return true
}
