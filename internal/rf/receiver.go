package rf

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgeWait bounds each WaitForEdge call so the receive loop notices ctx.
const edgeWait = 100 * time.Millisecond

// Receiver times edges on an input pin, feeds a Decoder and keeps the most
// recent decoded Signal.
type Receiver struct {
	pin gpio.PinIn
	now func() time.Time

	mu     sync.Mutex
	latest Signal
	have   bool
}

// NewReceiver wraps a pin already configured for both-edge detection.
func NewReceiver(pin gpio.PinIn) *Receiver {
	return &Receiver{pin: pin, now: time.Now}
}

// Latest returns the last decoded signal and whether one was ever decoded.
func (r *Receiver) Latest() (Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.have
}

// Listen blocks, decoding edges until ctx ends.
func (r *Receiver) Listen(ctx context.Context) {
	var (
		dec  Decoder
		last = r.now()
	)
	for ctx.Err() == nil {
		if !r.pin.WaitForEdge(edgeWait) {
			continue
		}
		t := r.now()
		if sig, ok := dec.Feed(t.Sub(last).Microseconds(), t); ok {
			r.store(sig)
		}
		last = t
	}
}

func (r *Receiver) store(sig Signal) {
	r.mu.Lock()
	r.latest = sig
	r.have = true
	r.mu.Unlock()
}

// Halt releases the pin's edge detection.
func (r *Receiver) Halt() error {
	return r.pin.Halt()
}
