package actuator

import (
	"errors"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

// ErrQueueFull is returned when the actuator is too far behind to accept
// another command.
var ErrQueueFull = errors.New("actuator queue full")

const DefaultQueueSize = 32

// Queue is the single-producer single-consumer command channel between the
// orchestrator and the actuator worker. It outlives any one worker instance
// so a respawned worker picks up where the old one stopped.
type Queue struct {
	ch chan types.ActuationCommand
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan types.ActuationCommand, size)}
}

// Enqueue never blocks.
func (q *Queue) Enqueue(cmd types.ActuationCommand) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) commands() <-chan types.ActuationCommand { return q.ch }
