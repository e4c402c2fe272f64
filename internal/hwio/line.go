// Package hwio wraps the periph.io GPIO registry behind the small Line and
// Input types the workers need, so hardware can be faked in tests.
package hwio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is a digital output with a logical on/off state.
type Line interface {
	Set(active bool) error
	Name() string
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers once per process.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// PinLine drives a periph.io output pin, inverting the level when the
// attached hardware is active-low.
type PinLine struct {
	pin       gpio.PinOut
	activeLow bool
}

// OpenLine looks up name in the GPIO registry (e.g. "GPIO16") and drives it
// to the inactive level.
func OpenLine(name string, activeLow bool) (*PinLine, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	l := &PinLine{pin: p, activeLow: activeLow}
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

func NewPinLine(pin gpio.PinOut, activeLow bool) *PinLine {
	return &PinLine{pin: pin, activeLow: activeLow}
}

func (l *PinLine) Set(active bool) error {
	level := gpio.Level(active != l.activeLow)
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("gpio %s out %v: %w", l.pin.Name(), level, err)
	}
	return nil
}

func (l *PinLine) Name() string { return l.pin.Name() }

// OpenInput configures name as an input reporting both edges, for decoders
// that time level changes.
func OpenInput(name string, pull gpio.Pull) (gpio.PinIn, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	if err := p.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("gpio %s in: %w", name, err)
	}
	return p, nil
}

// NopLine is used when no pin is configured. It records the last state.
type NopLine struct {
	LineName string

	mu     sync.Mutex
	active bool
}

func (n *NopLine) Set(active bool) error {
	n.mu.Lock()
	n.active = active
	n.mu.Unlock()
	return nil
}

func (n *NopLine) Name() string { return n.LineName }

func (n *NopLine) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}
