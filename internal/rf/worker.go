package rf

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/hwio"
)

const DefaultPollInterval = 10 * time.Millisecond

type WorkerConfig struct {
	Pin          string // e.g. "GPIO17"; empty disables the worker
	Fingerprint  Fingerprint
	PollInterval time.Duration
}

// Source is the read side of a receiver.
type Source interface {
	Latest() (Signal, bool)
	Listen(ctx context.Context)
	Halt() error
}

// Worker polls the receiver and publishes one RFTrigger per new signal that
// matches the fingerprint. Signals are told apart by decode timestamp.
type Worker struct {
	cfg    WorkerConfig
	clock  clockwork.Clock
	logger *slog.Logger

	openSource func(pin string) (Source, error)
}

func NewWorker(cfg WorkerConfig, clock clockwork.Clock, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		cfg:        cfg,
		clock:      clock,
		logger:     logger.With("component", "rf"),
		openSource: openPinSource,
	}
}

func openPinSource(pin string) (Source, error) {
	p, err := hwio.OpenInput(pin, gpio.PullDown)
	if err != nil {
		return nil, err
	}
	return NewReceiver(p), nil
}

func (w *Worker) Run(ctx context.Context, bus types.Publisher) error {
	if w.cfg.Pin == "" {
		w.logger.Info("no rf pin configured, rf receiver disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	if err := w.cfg.Fingerprint.Validate(); err != nil {
		return fault.Fatal("rf fingerprint", err)
	}

	src, err := w.openSource(w.cfg.Pin)
	if err != nil {
		return fault.Fatal("rf open "+w.cfg.Pin, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		src.Listen(listenCtx)
	}()
	// The pin is halted only after the edge loop has returned.
	defer func() {
		cancel()
		<-listening
		if err := src.Halt(); err != nil {
			w.logger.Warn("rf halt failed", "err", err)
		}
	}()

	w.logger.Info("rf receiver listening", "pin", w.cfg.Pin,
		"protocol", w.cfg.Fingerprint.Protocol)
	return w.watch(ctx, src, bus)
}

func (w *Worker) watch(ctx context.Context, src Source, bus types.Publisher) error {
	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		sig, ok := src.Latest()
		if !ok || sig.Timestamp.Equal(last) {
			continue
		}
		last = sig.Timestamp

		match := w.cfg.Fingerprint.Match(sig)
		w.logger.Debug("rf signal", "code", sig.Code, "pulse", sig.PulseLength,
			"protocol", sig.Protocol, "match", match)
		if !match {
			continue
		}
		ev := types.RFTrigger{Code: sig.Code, PulseLength: sig.PulseLength, Protocol: sig.Protocol}
		if err := bus.Publish(ctx, ev); err != nil {
			return err
		}
	}
}
