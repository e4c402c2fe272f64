package orchestrator

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// checkHealth samples temperature and USB presence. Consecutive USB
// failures, or accumulated restarts, request a single reboot.
func (o *Orchestrator) checkHealth(ctx context.Context) {
	now := o.clock.Now()
	sample := store.HealthSample{SampledAt: now, USBOK: true}

	if o.temp != nil {
		v, err := o.temp.Temperature(ctx)
		if err != nil {
			o.logger.Warn("temperature probe failed", "err", err)
		} else {
			sample.TemperatureC = &v
			o.logger.Info("temperature", "celsius", v)
		}
	}

	if o.usb != nil {
		missing, err := o.usb.CheckUSB(ctx)
		switch {
		case err != nil:
			sample.USBOK = false
			o.logger.Warn("usb probe failed", "err", err)
		case len(missing) > 0:
			sample.USBOK = false
			o.logger.Warn("usb devices missing", "missing", missing)
		}
	}

	o.mu.Lock()
	if sample.USBOK {
		o.usbFailures = 0
	} else {
		o.usbFailures++
	}
	if sample.TemperatureC != nil {
		o.temperature = sample.TemperatureC
	}
	o.lastHealthAt = now
	sample.USBFailures = o.usbFailures
	sample.Restarts = o.restarts
	o.mu.Unlock()

	if o.health != nil {
		if err := o.health.RecordHealth(ctx, sample); err != nil {
			o.logger.Warn("health sample not recorded", "err", err)
		}
	}

	if o.cfg.MaxUSBFailures > 0 && sample.USBFailures >= o.cfg.MaxUSBFailures {
		o.requestReboot(ctx, fmt.Sprintf("usb check failed %d times in a row", sample.USBFailures))
	}
	if o.cfg.MaxRestarts > 0 && sample.Restarts >= o.cfg.MaxRestarts {
		o.requestReboot(ctx, fmt.Sprintf("%d worker restarts", sample.Restarts))
	}
}

// requestReboot latches: only the first request reaches the rebooter.
func (o *Orchestrator) requestReboot(ctx context.Context, reason string) {
	o.mu.Lock()
	if o.rebootRequested {
		o.mu.Unlock()
		return
	}
	o.rebootRequested = true
	o.rebootReason = reason
	o.mu.Unlock()

	o.logger.Warn("reboot requested", "reason", reason)
	if o.rebooter == nil {
		return
	}
	o.rebootWG.Add(1)
	go func() {
		defer o.rebootWG.Done()
		if err := o.rebooter.Reboot(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("reboot failed", "err", err)
		}
	}()
}
