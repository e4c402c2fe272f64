package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/memory"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAccess struct {
	mu      sync.Mutex
	allowed map[string]bool
	err     error
	calls   int
}

func (f *fakeAccess) Check(identity, _ string, _ bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[identity], nil
}

func (f *fakeAccess) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu   sync.Mutex
	cmds []types.ActuationCommand
}

func (q *fakeQueue) Enqueue(cmd types.ActuationCommand) error {
	q.mu.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) Commands() []types.ActuationCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.ActuationCommand(nil), q.cmds...)
}

type fakeSounds struct {
	clips map[string]bool
	asked []string
}

func (s *fakeSounds) PlayFor(text string) (bool, error) {
	s.asked = append(s.asked, text)
	return s.clips[text], nil
}

type fakeUSB struct {
	results []error // nil = healthy
	i       int
}

func (u *fakeUSB) CheckUSB(context.Context) ([]string, error) {
	if u.i >= len(u.results) {
		return nil, nil
	}
	err := u.results[u.i]
	u.i++
	if err != nil {
		return []string{"0403:6001"}, nil
	}
	return nil, nil
}

type fakeTemp struct{ v float64 }

func (t fakeTemp) Temperature(context.Context) (float64, error) { return t.v, nil }

type countingRebooter struct {
	mu    sync.Mutex
	count int
}

func (r *countingRebooter) Reboot(context.Context) error {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	return nil
}

func (r *countingRebooter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type healthLog struct {
	mu      sync.Mutex
	samples []store.HealthSample
}

func (h *healthLog) RecordHealth(_ context.Context, s store.HealthSample) error {
	h.mu.Lock()
	h.samples = append(h.samples, s)
	h.mu.Unlock()
	return nil
}

type fixture struct {
	o        *Orchestrator
	clock    clockwork.FakeClock
	access   *fakeAccess
	queue    *fakeQueue
	oplog    *memory.OperationLogStore
	sounds   *fakeSounds
	rebooter *countingRebooter
	health   *healthLog
}

func newFixture(t *testing.T, cfg Config, mutate func(*Deps)) *fixture {
	t.Helper()
	lex, err := service.NewLexicon(service.DefaultPhrases())
	require.NoError(t, err)

	f := &fixture{
		clock:    clockwork.NewFakeClock(),
		access:   &fakeAccess{allowed: map[string]bool{"0541234567": true, "alice": true}},
		queue:    &fakeQueue{},
		oplog:    memory.NewOperationLogStore(),
		sounds:   &fakeSounds{clips: map[string]bool{"bark": true}},
		rebooter: &countingRebooter{},
		health:   &healthLog{},
	}
	deps := Deps{
		Access:   f.access,
		Lexicon:  lex,
		Queue:    f.queue,
		OpLog:    f.oplog,
		Health:   f.health,
		Sounds:   f.sounds,
		Rebooter: f.rebooter,
		Clock:    f.clock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.o, err = New(cfg, nil, deps)
	require.NoError(t, err)
	f.o.prepare(context.Background(), nil)
	return f
}

func (f *fixture) deliver(t *testing.T, ev types.Event) {
	t.Helper()
	require.NoError(t, f.o.Bus().Publish(context.Background(), ev))
	require.False(t, f.o.tick(context.Background()))
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatch_WhitelistedCallOpens(t *testing.T) {
	f := newFixture(t, Config{DefaultOpen: 3 * time.Second}, nil)

	f.deliver(t, types.Call{CallerID: "0541234567"})
	f.deliver(t, types.Call{CallerID: "0500000000"})

	assert.Equal(t, []types.ActuationCommand{types.Open{Duration: 3 * time.Second}}, f.queue.Commands())

	entries := f.oplog.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, store.KindCall, entries[0].Kind)
	assert.True(t, entries[0].Granted)
	assert.False(t, entries[1].Granted, "denied calls are logged too")
}

func TestDispatch_NumericTextOpensForThatLong(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.SMS{Sender: "0541234567", Text: " 42 "})
	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "9999"})
	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "0"})

	assert.Equal(t, []types.ActuationCommand{
		types.Open{Duration: 42 * time.Second},
		types.Open{Duration: 300 * time.Second},
		types.Open{Duration: DefaultOpenDuration},
	}, f.queue.Commands())
}

func TestDispatch_UnknownTextPlaysSoundWithoutAccessCheck(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.ChatMessage{Sender: "stranger", Text: "bark"})
	f.deliver(t, types.SMS{Sender: "0500000000", Text: "hello there"})

	assert.Empty(t, f.queue.Commands())
	assert.Zero(t, f.access.Calls())
	assert.Equal(t, []string{"bark", "hello there"}, f.sounds.asked)

	entries := f.oplog.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].SoundPlayed)
	assert.False(t, entries[1].SoundPlayed)
	assert.Equal(t, "none", entries[1].Action)
}

func TestDispatch_CommandFromStrangerDenied(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.ChatMessage{Sender: "mallory", Text: "open"})

	assert.Empty(t, f.queue.Commands())
	entries := f.oplog.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, store.KindMessage, entries[0].Kind)
	assert.Equal(t, "open", entries[0].Action)
	assert.False(t, entries[0].Granted)
}

func TestDispatch_WhitelistErrorDenies(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.access.err = service.ErrNoWhitelist

	f.deliver(t, types.Call{CallerID: "0541234567"})
	f.deliver(t, types.SMS{Sender: "0541234567", Text: "open"})

	assert.Empty(t, f.queue.Commands())
}

func TestDispatch_RFOpensUnconditionally(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.RFTrigger{Code: 2045, PulseLength: 335, Protocol: 1})

	assert.Equal(t, []types.ActuationCommand{types.Open{Duration: DefaultOpenDuration}}, f.queue.Commands())
	assert.Zero(t, f.access.Calls())
	entries := f.oplog.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, store.KindRF, entries[0].Kind)
	assert.Equal(t, "2045", entries[0].Identity)
}

func TestDispatch_LockSuppressesOpen(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "lock"})
	assert.True(t, f.o.Locked())
	f.deliver(t, types.RFTrigger{Code: 1})
	f.deliver(t, types.Call{CallerID: "0541234567"})
	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "unlock"})
	f.deliver(t, types.RFTrigger{Code: 1})
	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "reset gate"})

	assert.Equal(t, []types.ActuationCommand{
		types.Lock{},
		types.Unlock{},
		types.Open{Duration: DefaultOpenDuration},
		types.ResetGate{},
	}, f.queue.Commands())
}

func TestDispatch_RebootCommandLatches(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "reboot"})
	f.deliver(t, types.SMS{Sender: "0541234567", Text: "restart"})
	f.o.rebootWG.Wait()

	assert.Equal(t, 1, f.rebooter.Count())
	st := f.o.Status()
	assert.True(t, st.RebootRequested)
	assert.Contains(t, st.RebootReason, "chat from alice")
}

// ---------------------------------------------------------------------------
// Health escalation
// ---------------------------------------------------------------------------

func TestHealth_RebootOnceAfterConsecutiveUSBFailures(t *testing.T) {
	bad := errors.New("missing")
	usb := &fakeUSB{results: []error{bad, bad, nil, bad, bad, bad, bad, bad, bad}}
	f := newFixture(t, Config{HealthInterval: time.Minute, MaxUSBFailures: 4}, func(d *Deps) {
		d.USB = usb
		d.Temp = fakeTemp{v: 51.5}
	})

	for i := 0; i < 9; i++ {
		f.clock.Advance(time.Minute)
		f.o.tick(context.Background())
		if i == 5 {
			f.o.rebootWG.Wait()
			assert.Zero(t, f.rebooter.Count(), "three failures after a success are not enough")
		}
	}
	f.o.rebootWG.Wait()

	assert.Equal(t, 1, f.rebooter.Count())
	st := f.o.Status()
	assert.Equal(t, 6, st.USBFailures)
	require.NotNil(t, st.TemperatureC)
	assert.InDelta(t, 51.5, *st.TemperatureC, 0.001)

	f.health.mu.Lock()
	defer f.health.mu.Unlock()
	require.Len(t, f.health.samples, 9)
	assert.True(t, f.health.samples[2].USBOK)
	assert.Equal(t, 0, f.health.samples[2].USBFailures)
	assert.Equal(t, 4, f.health.samples[6].USBFailures)
}

func TestHealth_NotBeforeInterval(t *testing.T) {
	f := newFixture(t, Config{HealthInterval: time.Minute}, nil)
	f.clock.Advance(30 * time.Second)
	f.o.tick(context.Background())
	assert.Empty(t, f.health.samples)
}

// ---------------------------------------------------------------------------
// Supervision
// ---------------------------------------------------------------------------

type funcWorker func(ctx context.Context, bus types.Publisher) error

func (fw funcWorker) Run(ctx context.Context, bus types.Publisher) error { return fw(ctx, bus) }

func TestSupervise_RespawnsCrashedWorkerAfterBackoff(t *testing.T) {
	f := newFixture(t, Config{RestartBackoff: time.Second, MaxRestarts: 2}, nil)

	var mu sync.Mutex
	builds := 0
	spec := WorkerSpec{Kind: types.WorkerChat, New: func() (Worker, error) {
		mu.Lock()
		builds++
		n := builds
		mu.Unlock()
		return funcWorker(func(ctx context.Context, _ types.Publisher) error {
			if n == 2 {
				panic("boom")
			}
			if n == 3 {
				<-ctx.Done()
				return ctx.Err()
			}
			return errors.New("crash")
		}), nil
	}}
	f.o.specs = []WorkerSpec{spec}

	f.o.tick(context.Background())
	first := f.o.handles[types.WorkerChat]
	<-first.Done()

	f.o.tick(context.Background())
	assert.Same(t, first, f.o.handles[types.WorkerChat], "backoff not elapsed")

	f.clock.Advance(time.Second)
	f.o.tick(context.Background())
	second := f.o.handles[types.WorkerChat]
	require.NotSame(t, first, second)
	<-second.Done()
	assert.Contains(t, second.Err().Error(), "panic: boom")
	assert.False(t, second.Deliberate())

	f.clock.Advance(time.Second)
	f.o.tick(context.Background())
	third := f.o.handles[types.WorkerChat]
	require.NotSame(t, second, third)
	assert.NotEqual(t, second.ID, third.ID)

	st := f.o.Status()
	assert.Equal(t, 2, st.Restarts)
	require.Len(t, st.Workers, 1)
	assert.True(t, st.Workers[0].Running)

	f.o.shutdown("test")
	<-third.Done()
	assert.True(t, third.Deliberate())
}

func crashingSpec(kind types.WorkerKind) WorkerSpec {
	return WorkerSpec{Kind: kind, New: func() (Worker, error) {
		return funcWorker(func(context.Context, types.Publisher) error {
			return errors.New("crash")
		}), nil
	}}
}

// respawnAfterCrash waits for the current instance of kind to exit, then
// lets the backoff pass and ticks once.
func (f *fixture) respawnAfterCrash(t *testing.T, kind types.WorkerKind) {
	t.Helper()
	<-f.o.handles[kind].Done()
	f.clock.Advance(time.Second)
	require.False(t, f.o.tick(context.Background()))
}

func TestHealth_RebootOnceAfterRestartThreshold(t *testing.T) {
	f := newFixture(t, Config{RestartBackoff: time.Second, MaxRestarts: 2}, nil)
	f.o.specs = []WorkerSpec{crashingSpec(types.WorkerModem)}
	ctx := context.Background()

	f.o.tick(ctx)
	f.respawnAfterCrash(t, types.WorkerModem)

	f.o.checkHealth(ctx)
	f.o.rebootWG.Wait()
	assert.Equal(t, 1, f.o.Status().Restarts)
	assert.Zero(t, f.rebooter.Count(), "below the restart threshold")

	f.respawnAfterCrash(t, types.WorkerModem)
	assert.Equal(t, 2, f.o.Status().Restarts)

	f.o.checkHealth(ctx)
	f.o.checkHealth(ctx)
	f.o.rebootWG.Wait()
	assert.Equal(t, 1, f.rebooter.Count())
	st := f.o.Status()
	assert.True(t, st.RebootRequested)
	assert.Contains(t, st.RebootReason, "2 worker restarts")

	<-f.o.handles[types.WorkerModem].Done()
}

func TestSupervise_RespawnedActuatorRestoresLock(t *testing.T) {
	f := newFixture(t, Config{RestartBackoff: time.Second}, nil)
	f.o.specs = []WorkerSpec{crashingSpec(types.WorkerActuator)}

	f.o.tick(context.Background())
	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "lock"})
	require.Equal(t, []types.ActuationCommand{types.Lock{}}, f.queue.Commands())

	f.respawnAfterCrash(t, types.WorkerActuator)
	assert.Equal(t, []types.ActuationCommand{types.Lock{}, types.Lock{}}, f.queue.Commands())

	f.deliver(t, types.ChatMessage{Sender: "alice", Text: "unlock"})
	f.respawnAfterCrash(t, types.WorkerActuator)
	assert.Equal(t, []types.ActuationCommand{types.Lock{}, types.Lock{}, types.Unlock{}}, f.queue.Commands(),
		"no lock replay once unlocked")

	<-f.o.handles[types.WorkerActuator].Done()
}

func TestSupervise_DeliberateExitNotRespawned(t *testing.T) {
	f := newFixture(t, Config{RestartBackoff: time.Millisecond}, nil)
	f.o.specs = []WorkerSpec{{Kind: types.WorkerActuator, New: func() (Worker, error) {
		return funcWorker(func(context.Context, types.Publisher) error {
			return errDeliberate
		}), nil
	}}}

	f.o.tick(context.Background())
	h := f.o.handles[types.WorkerActuator]
	<-h.Done()

	f.clock.Advance(time.Hour)
	f.o.tick(context.Background())
	assert.Same(t, h, f.o.handles[types.WorkerActuator])
	assert.Zero(t, f.o.Status().Restarts)
}

// ---------------------------------------------------------------------------
// File signals and shutdown
// ---------------------------------------------------------------------------

func TestSignals_TriggerFileOpensAndIsRemoved(t *testing.T) {
	dir := t.TempDir()
	trigger := filepath.Join(dir, "GATEUP")
	f := newFixture(t, Config{TriggerFile: trigger, KillFile: filepath.Join(dir, "KILLAPP")}, nil)

	require.NoError(t, os.WriteFile(trigger, nil, 0o644))
	assert.False(t, f.o.tick(context.Background()))

	assert.NoFileExists(t, trigger)
	assert.Equal(t, []types.ActuationCommand{types.Open{Duration: DefaultOpenDuration}}, f.queue.Commands())
	entries := f.oplog.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, store.KindLocalTrigger, entries[0].Kind)
}

func TestRun_KillFileShutsDown(t *testing.T) {
	dir := t.TempDir()
	kill := filepath.Join(dir, "KILLAPP")

	lex, err := service.NewLexicon(service.DefaultPhrases())
	require.NoError(t, err)
	queue := &fakeQueue{}
	o, err := New(Config{KillFile: kill, TickInterval: time.Millisecond}, nil, Deps{
		Access:  &fakeAccess{},
		Lexicon: lex,
		Queue:   queue,
	})
	require.NoError(t, err)

	stopped := make(chan struct{})
	spec := WorkerSpec{Kind: types.WorkerRF, New: func() (Worker, error) {
		return funcWorker(func(ctx context.Context, _ types.Publisher) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}), nil
	}}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), []WorkerSpec{spec}) }()

	require.Eventually(t, func() bool { return len(o.Status().Workers) == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, os.WriteFile(kill, nil, 0o644))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after kill file")
	}
	<-stopped
	assert.NoFileExists(t, kill)
	assert.Equal(t, []types.ActuationCommand{types.Close{}}, queue.Commands())
}

func TestRun_ContextCancelShutsDown(t *testing.T) {
	lex, err := service.NewLexicon(nil)
	require.NoError(t, err)
	o, err := New(Config{TickInterval: time.Millisecond}, nil, Deps{
		Access: &fakeAccess{}, Lexicon: lex, Queue: &fakeQueue{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, Deps{})
	assert.Error(t, err)
}

var errDeliberate = fmt.Errorf("closed: %w", fault.ErrStopped)
