package orchestrator

import (
	"sort"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

type WorkerStatus struct {
	Kind      types.WorkerKind `json:"kind"`
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	Running   bool             `json:"running"`
	LastError string           `json:"last_error,omitempty"`
}

// Status is a point-in-time copy of the orchestrator state.
type Status struct {
	Workers         []WorkerStatus `json:"workers"`
	Restarts        int            `json:"restarts"`
	Locked          bool           `json:"locked"`
	USBFailures     int            `json:"usb_failures"`
	TemperatureC    *float64       `json:"temperature_c,omitempty"`
	LastHealthAt    time.Time      `json:"last_health_at"`
	RebootRequested bool           `json:"reboot_requested"`
	RebootReason    string         `json:"reboot_reason,omitempty"`
	PendingEvents   int            `json:"pending_events"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Restarts:        o.restarts,
		Locked:          o.locked,
		USBFailures:     o.usbFailures,
		LastHealthAt:    o.lastHealthAt,
		RebootRequested: o.rebootRequested,
		RebootReason:    o.rebootReason,
		PendingEvents:   o.bus.Len(),
	}
	if o.temperature != nil {
		v := *o.temperature
		st.TemperatureC = &v
	}
	for _, h := range o.handles {
		ws := WorkerStatus{
			Kind:      h.Kind,
			ID:        h.ID.String(),
			StartedAt: h.StartedAt,
			Running:   !h.Exited(),
		}
		if err := h.Err(); err != nil {
			ws.LastError = err.Error()
		}
		st.Workers = append(st.Workers, ws)
	}
	sort.Slice(st.Workers, func(i, j int) bool { return st.Workers[i].Kind < st.Workers[j].Kind })
	return st
}
