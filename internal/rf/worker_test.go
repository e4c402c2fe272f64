package rf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

type chanBus struct {
	ch chan types.Event
}

func (b *chanBus) Publish(ctx context.Context, ev types.Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeSource struct {
	mu        sync.Mutex
	sig       Signal
	have      bool
	halted    bool
	listening bool
	// haltedEarly is set when Halt ran while Listen had not returned.
	haltedEarly bool
}

func (f *fakeSource) set(sig Signal) {
	f.mu.Lock()
	f.sig, f.have = sig, true
	f.mu.Unlock()
}

func (f *fakeSource) Latest() (Signal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sig, f.have
}

func (f *fakeSource) Listen(ctx context.Context) {
	f.mu.Lock()
	f.listening = true
	f.mu.Unlock()

	<-ctx.Done()
	// Stands in for a WaitForEdge call still in progress.
	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	f.listening = false
	f.mu.Unlock()
}

func (f *fakeSource) Halt() error {
	f.mu.Lock()
	f.halted = true
	f.haltedEarly = f.listening
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) isHalted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halted
}

func newTestWorker(src Source) *Worker {
	w := NewWorker(WorkerConfig{
		Pin: "GPIO17",
		Fingerprint: Fingerprint{
			Protocol:    1,
			PulseRanges: []Range{{330, 340}},
			CodeRanges:  []Range{{2040, 2050}},
		},
		PollInterval: time.Millisecond,
	}, nil, nil)
	w.openSource = func(string) (Source, error) { return src, nil }
	return w
}

func TestWorker_PublishesMatchingSignalOnce(t *testing.T) {
	src := &fakeSource{}
	w := newTestWorker(src)
	bus := &chanBus{ch: make(chan types.Event, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, bus) }()

	ts := time.Unix(100, 0)
	src.set(Signal{Code: 9999, PulseLength: 335, Protocol: 1, Timestamp: ts})
	time.Sleep(20 * time.Millisecond)
	src.set(Signal{Code: 2045, PulseLength: 335, Protocol: 1, Timestamp: ts.Add(time.Second)})

	select {
	case ev := <-bus.ch:
		assert.Equal(t, types.RFTrigger{Code: 2045, PulseLength: 335, Protocol: 1}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no trigger published")
	}

	// Same timestamp stays deduplicated across many polls.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, bus.ch)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, src.isHalted())
}

func TestWorker_NoPinIdles(t *testing.T) {
	w := NewWorker(WorkerConfig{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Run(ctx, &chanBus{ch: make(chan types.Event)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_OpenFailureIsFatal(t *testing.T) {
	w := newTestWorker(nil)
	w.openSource = func(string) (Source, error) { return nil, errors.New("no such pin") }
	err := w.Run(context.Background(), &chanBus{ch: make(chan types.Event)})
	require.Error(t, err)
	assert.Equal(t, fault.KindFatal, fault.KindOf(err))
}

func TestWorker_HaltWaitsForListener(t *testing.T) {
	src := &fakeSource{}
	w := newTestWorker(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, &chanBus{ch: make(chan types.Event, 1)}) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.listening
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.True(t, src.halted)
	assert.False(t, src.haltedEarly, "halt ran before the listener returned")
}
