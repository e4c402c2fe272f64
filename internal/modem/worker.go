// Package modem talks to a cellular modem over a serial AT link and turns
// incoming calls and text messages into gate events.
package modem

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/hwio"
)

type WorkerConfig struct {
	Device         string // e.g. /dev/ttyUSB0
	BaudRate       int
	PowerPin       string // empty when the power key is not wired
	PowerActiveLow bool
	HangupCommand  string
	PollInterval   time.Duration
	Timing         Timing
}

// Worker owns the serial port and power line for one modem session.
type Worker struct {
	cfg    WorkerConfig
	clock  clockwork.Clock
	logger *slog.Logger

	openPort  func(name string, baud int) (Port, error)
	openPower func(name string, activeLow bool) (hwio.Line, error)
}

func NewWorker(cfg WorkerConfig, clock clockwork.Clock, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With("component", "modem"),
		openPort: OpenSerial,
		openPower: func(name string, activeLow bool) (hwio.Line, error) {
			return hwio.OpenLine(name, activeLow)
		},
	}
}

// Run opens the modem, brings it up and publishes Call and SMS events until
// ctx ends or an unrecoverable error occurs. The port and power line are
// released on every exit path.
func (w *Worker) Run(ctx context.Context, bus types.Publisher) error {
	port, err := w.openPort(w.cfg.Device, w.cfg.BaudRate)
	if err != nil {
		return fault.Fatal("modem open", err)
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			w.logger.Warn("close serial port", "err", cerr)
		}
	}()

	var power hwio.Line
	if w.cfg.PowerPin != "" {
		power, err = w.openPower(w.cfg.PowerPin, w.cfg.PowerActiveLow)
		if err != nil {
			return fault.Fatal("modem power line", err)
		}
		defer func() { _ = power.Set(false) }()
	}

	link, err := NewLink(port)
	if err != nil {
		return fault.Fatal("modem link", err)
	}
	eng := NewEngine(link, power, w.cfg.Timing, w.cfg.HangupCommand, w.clock, w.logger)

	evs, err := eng.Start(ctx)
	if perr := publishAll(ctx, bus, evs); perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	w.logger.Info("modem ready", "device", w.cfg.Device, "device_id", eng.Session().DeviceID)

	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		evs, err := eng.Poll(ctx)
		if perr := publishAll(ctx, bus, evs); perr != nil {
			return perr
		}
		switch {
		case err == nil:
		case fault.IsTransient(err):
			w.logger.Warn("modem poll", "err", err)
		case errors.Is(err, context.Canceled):
			return err
		default:
			w.logger.Error("modem failed", "state", eng.State().String(), "err", err)
			return err
		}
	}
}

func publishAll(ctx context.Context, bus types.Publisher, evs []types.Event) error {
	for _, ev := range evs {
		if err := bus.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
