package store

import (
	"context"
	"errors"
	"time"
)

// EntryKind is the event class of an operation log record.
type EntryKind string

const (
	KindCall         EntryKind = "call"
	KindMessage      EntryKind = "msg"
	KindRF           EntryKind = "rf"
	KindLocalTrigger EntryKind = "local-trigger"
)

// OperationLogEntry captures a single access decision. Channel is the
// event source ("call", "sms", "chat", "rf", "file"); Text and Action are
// set for message events only.
type OperationLogEntry struct {
	Timestamp   time.Time
	Kind        EntryKind
	Channel     string
	Identity    string
	Text        string
	Action      string
	Granted     bool
	SoundPlayed bool
}

// OperationLogStore persists access decisions as an append-only log. The
// core never reads it back; external reporting does.
type OperationLogStore interface {
	Append(ctx context.Context, e OperationLogEntry) error
}

// Fanout writes every entry to all stores. A failing store does not stop
// the others; the errors are joined.
type Fanout []OperationLogStore

func (f Fanout) Append(ctx context.Context, e OperationLogEntry) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HealthSample is one periodic health check result.
type HealthSample struct {
	SampledAt    time.Time
	TemperatureC *float64
	USBOK        bool
	USBFailures  int
	Restarts     int
}

// HealthSampleStore records health samples for later inspection.
type HealthSampleStore interface {
	RecordHealth(ctx context.Context, s HealthSample) error
}

// Pruner deletes records older than a cutoff and reports how many went.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
