package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

var errUnexpectedReturn = errors.New("returned without error")

// Worker is one supervised event source or the actuator.
type Worker interface {
	Run(ctx context.Context, bus types.Publisher) error
}

// WorkerSpec builds a fresh Worker for every (re)spawn of its kind.
type WorkerSpec struct {
	Kind types.WorkerKind
	New  func() (Worker, error)
}

// WorkerHandle tracks one running instance.
type WorkerHandle struct {
	Kind      types.WorkerKind
	ID        uuid.UUID
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	err      error
	exitedAt time.Time
}

// Done is closed when the instance has returned.
func (h *WorkerHandle) Done() <-chan struct{} { return h.done }

func (h *WorkerHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err is the instance's return value; nil while running.
func (h *WorkerHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *WorkerHandle) ExitedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitedAt
}

// Deliberate reports whether the instance exited on purpose and must not
// be respawned.
func (h *WorkerHandle) Deliberate() bool {
	return h.Exited() && fault.IsDeliberate(h.Err())
}

func (h *WorkerHandle) finish(err error, at time.Time) {
	h.mu.Lock()
	h.err = err
	h.exitedAt = at
	h.mu.Unlock()
	close(h.done)
}

// supervise spawns every kind without a live handle. A non-deliberate exit
// is respawned once RestartBackoff has passed and counts as a restart.
func (o *Orchestrator) supervise() {
	for _, spec := range o.specs {
		h := o.handles[spec.Kind]
		switch {
		case h == nil:
			o.spawn(spec)
		case !h.Exited() || h.Deliberate():
		case o.clock.Since(h.ExitedAt()) >= o.cfg.RestartBackoff:
			o.mu.Lock()
			o.restarts++
			n := o.restarts
			o.mu.Unlock()
			o.logger.Warn("respawning worker", "kind", spec.Kind, "prev_id", h.ID,
				"prev_err", h.Err(), "restarts", n)
			o.spawn(spec)
			// A crashed actuator released the hold line on its way out.
			if spec.Kind == types.WorkerActuator && o.Locked() {
				o.enqueue(types.Lock{})
			}
		}
	}
}

func (o *Orchestrator) spawn(spec WorkerSpec) {
	ctx, cancel := context.WithCancel(o.workersCtx)
	h := &WorkerHandle{
		Kind:      spec.Kind,
		ID:        uuid.New(),
		StartedAt: o.clock.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	o.mu.Lock()
	o.handles[spec.Kind] = h
	o.mu.Unlock()

	o.logger.Info("worker started", "kind", spec.Kind, "id", h.ID)
	o.notify(spec.Kind, true)

	go func() {
		defer cancel()
		err := o.runWorker(ctx, spec)
		h.finish(err, o.clock.Now())

		switch {
		case fault.IsDeliberate(err):
			o.logger.Info("worker stopped", "kind", spec.Kind, "id", h.ID)
		default:
			o.logger.Error("worker exited", "kind", spec.Kind, "id", h.ID,
				"err", err, "fault", fault.KindOf(err).String())
		}
		o.notify(spec.Kind, false)
	}()
}

func (o *Orchestrator) runWorker(ctx context.Context, spec WorkerSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("worker panic", "kind", spec.Kind, "panic", r,
				"stack", string(debug.Stack()))
			err = fault.Fatal(string(spec.Kind), fmt.Errorf("panic: %v", r))
		}
	}()

	w, err := spec.New()
	if err != nil {
		return fault.Fatal("build "+string(spec.Kind), err)
	}
	if err := w.Run(ctx, o.bus); err != nil {
		return err
	}
	// nil without a stop request counts as a crash.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fault.Fatal(string(spec.Kind), errUnexpectedReturn)
}

func (o *Orchestrator) notify(kind types.WorkerKind, running bool) {
	if o.observer != nil {
		o.observer.WorkerChanged(kind, running)
	}
}
