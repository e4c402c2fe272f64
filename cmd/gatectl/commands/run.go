package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/actuator"
	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/httpapi"
	"github.com/BrandonDHaskell/gatectl/internal/logging"
	"github.com/BrandonDHaskell/gatectl/internal/orchestrator"
	"github.com/BrandonDHaskell/gatectl/internal/probe"
	"github.com/BrandonDHaskell/gatectl/internal/sound"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gate controller until the kill file appears or SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runController,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runController(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        dated(cfg.Log.File, time.Now()),
		MaxFileSize: cfg.Log.MaxFileSizeMB << 20,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("closing operation log sinks", "err", err)
		}
	}()

	lex, err := newLexicon(cfg)
	if err != nil {
		return err
	}
	access := service.NewAccessControl(service.PhonePlan{
		CountryCode: cfg.Access.CountryCode,
		TrunkPrefix: cfg.Access.TrunkPrefix,
	}, logger)

	clock := clockwork.NewRealClock()
	queue := actuator.NewQueue(cfg.Gate.QueueSize)
	specs, err := workerSpecs(cfg, queue, clock, logger)
	if err != nil {
		return err
	}
	health := httpapi.NewHealthService(specKinds(specs))

	deps := orchestrator.Deps{
		Access:   access,
		Lexicon:  lex,
		Queue:    queue,
		OpLog:    sinks.oplog,
		Temp:     newTemperature(cfg.Health.ThermalPath),
		USB:      probe.NewUSB(cfg.Health.RequiredUSB),
		Rebooter: probe.NewSystemRebooter(cfg.Health.RebootDryRun, cfg.Health.RebootDelay, clock, logger),
		Observer: health,
		Clock:    clock,
		Logger:   logger,
	}
	if sinks.health != nil {
		deps.Health = sinks.health
	}
	if cfg.Sound.Dir != "" {
		player := sound.NewExecPlayer(cfg.Sound.Player, nil, logger)
		defer player.Stop()
		deps.Sounds = sound.NewJukebox(sound.NewLibrary(cfg.Sound.Dir), player)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		HealthInterval: cfg.Health.Interval,
		MaxUSBFailures: cfg.Health.MaxUSBFailures,
		MaxRestarts:    cfg.Health.MaxRestarts,
		DefaultOpen:    cfg.Gate.OpenDuration,
		PhoneWhitelist: cfg.Access.PhoneWhitelist,
		ChatWhitelist:  cfg.Access.ChatWhitelist,
		TriggerFile:    cfg.Signals.TriggerFile,
		KillFile:       cfg.Signals.KillFile,
	}, orchestrator.NewBus(0), deps)
	if err != nil {
		return err
	}

	pruner := service.NewRetentionPruner(sinks.pruners, service.RetentionConfig{
		RetentionDays: cfg.OpLog.RetentionDays,
		Interval:      cfg.OpLog.PruneInterval,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	if cfg.Status.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{Logger: logger, Addr: cfg.Status.HTTPAddr, Status: orch})
		go func() {
			logger.Info("status listening", "addr", cfg.Status.HTTPAddr)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Status.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Status.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs := httpapi.NewGRPCServer(health)
		go func() {
			logger.Info("grpc health listening", "addr", cfg.Status.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				logger.Error("grpc server stopped", "err", err)
			}
		}()
		defer gs.Stop()
		defer health.Shutdown()
	}

	logger.Info("gatectl starting", "site", cfg.Site, "workers", len(specs))
	return orch.Run(ctx, specs)
}
