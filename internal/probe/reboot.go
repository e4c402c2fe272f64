package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultRebootDelay = 20 * time.Second

// SystemRebooter restarts the board after Delay. With DryRun set it only
// logs, which is the default so that development hosts are never rebooted.
type SystemRebooter struct {
	DryRun bool
	Delay  time.Duration

	clock  clockwork.Clock
	logger *slog.Logger
	reboot func() error
}

func NewSystemRebooter(dryRun bool, delay time.Duration, clock clockwork.Clock, logger *slog.Logger) *SystemRebooter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SystemRebooter{
		DryRun: dryRun,
		Delay:  delay,
		clock:  clock,
		logger: logger.With("component", "reboot"),
		reboot: sysReboot,
	}
}

func (r *SystemRebooter) Reboot(ctx context.Context) error {
	r.logger.Warn("system reboot requested", "delay", r.Delay, "dry_run", r.DryRun)
	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.Delay):
		}
	}
	if r.DryRun {
		r.logger.Warn("dry run: reboot skipped")
		return nil
	}
	return r.reboot()
}
