package orchestrator

import (
	"context"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

const DefaultBusSize = 256

// Bus carries events from every worker to the orchestrator. Any number of
// goroutines may publish; only the orchestrator receives.
type Bus struct {
	ch chan types.Event
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBusSize
	}
	return &Bus{ch: make(chan types.Event, size)}
}

// Publish blocks until ev is queued or ctx is done.
func (b *Bus) Publish(ctx context.Context, ev types.Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryRecv returns the next event without blocking.
func (b *Bus) TryRecv() (types.Event, bool) {
	select {
	case ev := <-b.ch:
		return ev, true
	default:
		return nil, false
	}
}

func (b *Bus) Len() int { return len(b.ch) }
