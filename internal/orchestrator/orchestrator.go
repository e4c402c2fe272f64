// Package orchestrator owns the command bus: it supervises the workers,
// turns their events into access decisions and actuation commands, and
// escalates to a reboot when the board stays unhealthy.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

const (
	DefaultTickInterval   = 10 * time.Millisecond
	DefaultRestartBackoff = time.Second
	DefaultHealthInterval = 120 * time.Second
	DefaultMaxUSBFailures = 4
	DefaultShutdownGrace  = 5 * time.Second
	DefaultOpenDuration   = 2 * time.Second
)

type Config struct {
	TickInterval   time.Duration
	RestartBackoff time.Duration
	HealthInterval time.Duration
	MaxUSBFailures int // 0 disables USB escalation
	MaxRestarts    int // 0 disables restart escalation
	ShutdownGrace  time.Duration
	DefaultOpen    time.Duration

	PhoneWhitelist string
	ChatWhitelist  string
	TriggerFile    string
	KillFile       string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = DefaultRestartBackoff
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.DefaultOpen <= 0 {
		c.DefaultOpen = DefaultOpenDuration
	}
	return c
}

// AccessChecker is satisfied by *service.AccessControl.
type AccessChecker interface {
	Check(identity, whitelistPath string, isPhone bool) (bool, error)
}

// CommandParser is satisfied by *service.Lexicon.
type CommandParser interface {
	Parse(text string) service.Command
}

// ActuationQueue is satisfied by *actuator.Queue.
type ActuationQueue interface {
	Enqueue(cmd types.ActuationCommand) error
}

type SoundFallback interface {
	PlayFor(text string) (bool, error)
}

type TemperatureProbe interface {
	Temperature(ctx context.Context) (float64, error)
}

// USBProbe returns the required devices that are missing.
type USBProbe interface {
	CheckUSB(ctx context.Context) ([]string, error)
}

type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Observer is told when a worker kind starts or stops running.
type Observer interface {
	WorkerChanged(kind types.WorkerKind, running bool)
}

// Deps are the collaborators of an Orchestrator. Access, Lexicon and Queue
// are required; the rest may be nil.
type Deps struct {
	Access   AccessChecker
	Lexicon  CommandParser
	Queue    ActuationQueue
	OpLog    store.OperationLogStore
	Health   store.HealthSampleStore
	Sounds   SoundFallback
	Temp     TemperatureProbe
	USB      USBProbe
	Rebooter Rebooter
	Observer Observer
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

type Orchestrator struct {
	cfg      Config
	bus      *Bus
	access   AccessChecker
	lexicon  CommandParser
	queue    ActuationQueue
	oplog    store.OperationLogStore
	health   store.HealthSampleStore
	sounds   SoundFallback
	temp     TemperatureProbe
	usb      USBProbe
	rebooter Rebooter
	observer Observer
	clock    clockwork.Clock
	logger   *slog.Logger

	specs         []WorkerSpec
	workersCtx    context.Context
	cancelWorkers context.CancelFunc
	lastHealth    time.Time
	rebootWG      sync.WaitGroup

	mu              sync.Mutex
	handles         map[types.WorkerKind]*WorkerHandle
	restarts        int
	locked          bool
	usbFailures     int
	temperature     *float64
	lastHealthAt    time.Time
	rebootRequested bool
	rebootReason    string
}

func New(cfg Config, bus *Bus, deps Deps) (*Orchestrator, error) {
	if deps.Access == nil || deps.Lexicon == nil || deps.Queue == nil {
		return nil, errors.New("orchestrator: access, lexicon and queue are required")
	}
	if bus == nil {
		bus = NewBus(0)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.OpLog == nil {
		deps.OpLog = store.Fanout(nil)
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		access:   deps.Access,
		lexicon:  deps.Lexicon,
		queue:    deps.Queue,
		oplog:    deps.OpLog,
		health:   deps.Health,
		sounds:   deps.Sounds,
		temp:     deps.Temp,
		usb:      deps.USB,
		rebooter: deps.Rebooter,
		observer: deps.Observer,
		clock:    deps.Clock,
		logger:   deps.Logger.With("component", "orchestrator"),
		handles:  make(map[types.WorkerKind]*WorkerHandle),
	}, nil
}

// Bus returns the publisher side handed to workers.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Run supervises specs until the kill file appears or ctx ends, then shuts
// the workers down and returns nil.
func (o *Orchestrator) Run(ctx context.Context, specs []WorkerSpec) error {
	o.prepare(ctx, specs)

	ticker := o.clock.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.logger.Info("orchestrator started", "workers", len(specs))
	for {
		if o.tick(ctx) {
			o.shutdown("kill file")
			return nil
		}
		select {
		case <-ctx.Done():
			o.shutdown(ctx.Err().Error())
			return nil
		case <-ticker.Chan():
		}
	}
}

// prepare detaches worker lifetimes from ctx so shutdown can stop them in
// order.
func (o *Orchestrator) prepare(ctx context.Context, specs []WorkerSpec) {
	o.specs = specs
	o.workersCtx, o.cancelWorkers = context.WithCancel(context.WithoutCancel(ctx))
	o.lastHealth = o.clock.Now()
}

// tick runs one supervision round and reports whether shutdown was asked.
func (o *Orchestrator) tick(ctx context.Context) bool {
	o.supervise()

	if o.pollSignals(ctx) {
		return true
	}

	if ev, ok := o.bus.TryRecv(); ok {
		o.dispatch(ctx, ev)
	}

	if o.clock.Since(o.lastHealth) >= o.cfg.HealthInterval {
		o.lastHealth = o.clock.Now()
		o.checkHealth(ctx)
	}
	return false
}

func (o *Orchestrator) shutdown(reason string) {
	o.logger.Info("orchestrator shutting down", "reason", reason)

	if err := o.queue.Enqueue(types.Close{}); err != nil {
		o.logger.Warn("enqueue close failed", "err", err)
	}

	o.mu.Lock()
	handles := make([]*WorkerHandle, 0, len(o.handles))
	var act *WorkerHandle
	for kind, h := range o.handles {
		if kind == types.WorkerActuator {
			act = h
			continue
		}
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	expired := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-o.clock.After(o.cfg.ShutdownGrace):
			close(expired)
		case <-stop:
		}
	}()

	// The actuator gets the grace period to drain up to Close on its own.
	if act != nil {
		select {
		case <-act.Done():
		case <-expired:
		}
		act.cancel()
		handles = append(handles, act)
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-expired:
			o.logger.Warn("worker did not stop in time", "kind", h.Kind, "id", h.ID)
		}
	}
	o.cancelWorkers()
}
