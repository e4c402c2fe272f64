package types

import (
	"fmt"
	"time"
)

// ActuationCommand is a request for the actuator worker. Only the
// orchestrator creates them; the actuator executes them one at a time.
type ActuationCommand interface {
	isActuation()
}

// Open pulses the gate line for Duration.
type Open struct {
	Duration time.Duration
}

// Lock asserts the hold line and leaves it asserted.
type Lock struct{}

// Unlock releases the hold line.
type Unlock struct{}

// ResetGate pulses the hold line for a fixed interval.
type ResetGate struct{}

// Close releases every line and stops the actuator worker.
type Close struct{}

func (Open) isActuation()      {}
func (Lock) isActuation()      {}
func (Unlock) isActuation()    {}
func (ResetGate) isActuation() {}
func (Close) isActuation()     {}

func (o Open) String() string    { return fmt.Sprintf("open(%s)", o.Duration) }
func (Lock) String() string      { return "lock" }
func (Unlock) String() string    { return "unlock" }
func (ResetGate) String() string { return "reset-gate" }
func (Close) String() string     { return "close" }

// Action is the canonical meaning of a text command.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionReboot
	ActionLock
	ActionUnlock
	ActionResetGate
)

var actionNames = map[Action]string{
	ActionNone:      "none",
	ActionOpen:      "open",
	ActionReboot:    "reboot",
	ActionLock:      "lock",
	ActionUnlock:    "unlock",
	ActionResetGate: "reset-gate",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction maps a lexicon tag to its Action. "none" is not a valid tag.
func ParseAction(tag string) (Action, error) {
	for a, name := range actionNames {
		if a != ActionNone && name == tag {
			return a, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", tag)
}

// WorkerKind identifies one supervised worker slot.
type WorkerKind string

const (
	WorkerActuator WorkerKind = "actuator"
	WorkerModem    WorkerKind = "modem"
	WorkerChat     WorkerKind = "chat"
	WorkerRF       WorkerKind = "rf"
)
