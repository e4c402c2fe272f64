// Package actuator drives the gate's output lines. A single Worker consumes
// the Queue strictly in order.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/hwio"
)

const (
	DefaultOpenDuration = 2 * time.Second
	DefaultResetHold    = 2 * time.Second
	releaseSettle       = 50 * time.Millisecond
)

type Config struct {
	// Gate pulses the gate open; Hold keeps it from closing.
	Gate hwio.Line
	Hold hwio.Line

	DefaultOpen time.Duration
	ResetHold   time.Duration
}

type Worker struct {
	cfg    Config
	queue  *Queue
	logger *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(cfg Config, q *Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Gate == nil {
		cfg.Gate = &hwio.NopLine{LineName: "gate"}
	}
	if cfg.Hold == nil {
		cfg.Hold = &hwio.NopLine{LineName: "hold"}
	}
	if cfg.DefaultOpen <= 0 {
		cfg.DefaultOpen = DefaultOpenDuration
	}
	if cfg.ResetHold <= 0 {
		cfg.ResetHold = DefaultResetHold
	}
	return &Worker{
		cfg:    cfg,
		queue:  q,
		logger: logger.With("component", "actuator"),
		sleep:  sleepCtx,
	}
}

// Run executes commands until Close is received (fault.ErrStopped) or ctx
// ends. All lines are released on every exit path. The actuator never
// publishes events, so bus is unused.
func (w *Worker) Run(ctx context.Context, _ types.Publisher) (err error) {
	defer func() {
		if rerr := w.releaseAll(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-w.queue.commands():
			if err := w.execute(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) execute(ctx context.Context, cmd types.ActuationCommand) error {
	w.logger.Info("actuate", "command", fmt.Sprint(cmd))

	switch c := cmd.(type) {
	case types.Open:
		d := c.Duration
		if d <= 0 {
			d = w.cfg.DefaultOpen
		}
		return w.pulse(ctx, w.cfg.Gate, d)
	case types.Lock:
		return w.set(w.cfg.Hold, true)
	case types.Unlock:
		return w.set(w.cfg.Hold, false)
	case types.ResetGate:
		return w.pulse(ctx, w.cfg.Hold, w.cfg.ResetHold)
	case types.Close:
		w.logger.Info("actuator closing")
		return fault.ErrStopped
	default:
		return fault.Fatal("actuate", fmt.Errorf("unknown command %T", cmd))
	}
}

func (w *Worker) pulse(ctx context.Context, l hwio.Line, hold time.Duration) error {
	if err := w.set(l, true); err != nil {
		return err
	}
	serr := w.sleep(ctx, hold)
	if err := w.set(l, false); err != nil {
		return err
	}
	if serr != nil {
		return serr
	}
	return w.sleep(ctx, releaseSettle)
}

func (w *Worker) set(l hwio.Line, active bool) error {
	if err := l.Set(active); err != nil {
		return fault.Fatal("set "+l.Name(), err)
	}
	return nil
}

func (w *Worker) releaseAll() error {
	return errors.Join(w.cfg.Gate.Set(false), w.cfg.Hold.Set(false))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
