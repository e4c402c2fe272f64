package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/gatectl/internal/actuator"
	"github.com/BrandonDHaskell/gatectl/internal/chat"
	"github.com/BrandonDHaskell/gatectl/internal/config"
	"github.com/BrandonDHaskell/gatectl/internal/db"
	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/file"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/redisstream"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/hwio"
	"github.com/BrandonDHaskell/gatectl/internal/modem"
	"github.com/BrandonDHaskell/gatectl/internal/orchestrator"
	"github.com/BrandonDHaskell/gatectl/internal/probe"
	"github.com/BrandonDHaskell/gatectl/internal/rf"
)

// sinks holds every operation log backend that was configured.
type sinks struct {
	oplog   store.Fanout
	health  store.HealthSampleStore
	pruners map[string]store.Pruner
	closers []io.Closer
}

func (s *sinks) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// openSinks wires the file log (always), SQLite (when a path is set) and the
// Redis stream (when an address is set and reachable).
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sinks, error) {
	s := &sinks{pruners: map[string]store.Pruner{}}

	if cfg.OpLog.File != "" {
		s.oplog = append(s.oplog, file.NewOperationLogStore(cfg.OpLog.File))
	}

	if cfg.OpLog.SQLitePath != "" {
		conn, err := db.Open(ctx, db.Config{Path: cfg.OpLog.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		writer := db.NewWorker(conn)
		s.closers = append(s.closers, conn, closeFunc(func() error { writer.Close(); return nil }))

		ops := sqlite.NewOperationLogStore(conn, writer)
		hs := sqlite.NewHealthStore(conn, writer)
		s.oplog = append(s.oplog, ops)
		s.health = hs
		s.pruners["operation_log"] = ops
		s.pruners["health_samples"] = hs
	}

	if cfg.OpLog.Redis.Addr != "" {
		rs, err := redisstream.NewOperationLogStore(&redis.Options{
			Addr:     cfg.OpLog.Redis.Addr,
			Password: cfg.OpLog.Redis.Password,
			DB:       cfg.OpLog.Redis.DB,
		}, cfg.Site, cfg.OpLog.Redis.MaxLen)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, stream sink disabled", "addr", cfg.OpLog.Redis.Addr, "err", err)
			_ = rs.Close()
		} else {
			s.oplog = append(s.oplog, rs)
			s.closers = append(s.closers, rs)
		}
	}
	return s, nil
}

func newTemperature(thermalPath string) *probe.Temperature {
	t := probe.NewTemperature()
	if thermalPath != "" {
		t.ThermalPath = thermalPath
	}
	return t
}

func newLexicon(cfg *config.Config) (*service.Lexicon, error) {
	phrases := cfg.Access.LexiconPhrases()
	if phrases == nil {
		phrases = service.DefaultPhrases()
	}
	return service.NewLexicon(phrases)
}

func openLine(name string, activeLow bool) (hwio.Line, error) {
	if name == "" {
		return &hwio.NopLine{LineName: "unset"}, nil
	}
	return hwio.OpenLine(name, activeLow)
}

// workerSpecs builds one spec per enabled worker kind. The actuator is
// always present; the modem is skipped without a device.
func workerSpecs(cfg *config.Config, queue *actuator.Queue, clock clockwork.Clock, logger *slog.Logger) ([]orchestrator.WorkerSpec, error) {
	specs := []orchestrator.WorkerSpec{{
		Kind: types.WorkerActuator,
		New: func() (orchestrator.Worker, error) {
			gate, err := openLine(cfg.Gate.GatePin, cfg.Gate.GateActiveLow)
			if err != nil {
				return nil, err
			}
			hold, err := openLine(cfg.Gate.HoldPin, cfg.Gate.HoldActiveLow)
			if err != nil {
				return nil, err
			}
			return actuator.NewWorker(actuator.Config{
				Gate:        gate,
				Hold:        hold,
				DefaultOpen: cfg.Gate.OpenDuration,
				ResetHold:   cfg.Gate.ResetHold,
			}, queue, logger), nil
		},
	}}

	if cfg.Modem.Device != "" {
		timing := modem.DefaultTiming()
		if cfg.Modem.PingInterval > 0 {
			timing.PingInterval = cfg.Modem.PingInterval
		}
		specs = append(specs, orchestrator.WorkerSpec{
			Kind: types.WorkerModem,
			New: func() (orchestrator.Worker, error) {
				return modem.NewWorker(modem.WorkerConfig{
					Device:         cfg.Modem.Device,
					BaudRate:       cfg.Modem.BaudRate,
					PowerPin:       cfg.Modem.PowerPin,
					PowerActiveLow: cfg.Modem.PowerActiveLow,
					HangupCommand:  cfg.Modem.HangupCommand,
					Timing:         timing,
				}, clock, logger), nil
			},
		})
	}

	specs = append(specs, orchestrator.WorkerSpec{
		Kind: types.WorkerChat,
		New: func() (orchestrator.Worker, error) {
			return chat.NewWorker(chat.WorkerConfig{
				BaseURL:       cfg.Chat.BaseURL,
				Token:         cfg.Chat.Token,
				WatermarkPath: cfg.Chat.WatermarkFile,
				PollTimeout:   cfg.Chat.PollTimeout,
				CheckInterval: cfg.Chat.CheckInterval,
			}, clock, logger), nil
		},
	})

	var fp rf.Fingerprint
	if cfg.RF.Pin != "" {
		var err error
		if fp, err = cfg.RF.Fingerprint(); err != nil {
			return nil, err
		}
	}
	specs = append(specs, orchestrator.WorkerSpec{
		Kind: types.WorkerRF,
		New: func() (orchestrator.Worker, error) {
			return rf.NewWorker(rf.WorkerConfig{
				Pin:          cfg.RF.Pin,
				Fingerprint:  fp,
				PollInterval: cfg.RF.PollInterval,
			}, clock, logger), nil
		},
	})
	return specs, nil
}

func specKinds(specs []orchestrator.WorkerSpec) []types.WorkerKind {
	out := make([]types.WorkerKind, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Kind)
	}
	return out
}
