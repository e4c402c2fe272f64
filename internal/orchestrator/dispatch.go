package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/actuator"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

func (o *Orchestrator) dispatch(ctx context.Context, ev types.Event) {
	switch e := ev.(type) {
	case types.Call:
		granted := o.check(e.CallerID, o.cfg.PhoneWhitelist, true)
		if granted {
			o.open(0)
		}
		o.record(ctx, store.OperationLogEntry{
			Kind:     store.KindCall,
			Channel:  e.Source(),
			Identity: e.CallerID,
			Action:   types.ActionOpen.String(),
			Granted:  granted,
		})
	case types.SMS:
		o.handleText(ctx, e.Source(), e.Sender, e.Text, o.cfg.PhoneWhitelist, true)
	case types.ChatMessage:
		o.handleText(ctx, e.Source(), e.Sender, e.Text, o.cfg.ChatWhitelist, false)
	case types.RFTrigger:
		o.logger.Info("rf trigger", "code", e.Code, "pulse", e.PulseLength, "protocol", e.Protocol)
		o.open(0)
		o.record(ctx, store.OperationLogEntry{
			Kind:     store.KindRF,
			Channel:  e.Source(),
			Identity: fmt.Sprintf("%d", e.Code),
			Action:   types.ActionOpen.String(),
			Granted:  true,
		})
	default:
		o.logger.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

// handleText resolves a message to a command. Commands need the sender to
// be whitelisted; text that is not a command may play a sound and is never
// access checked.
func (o *Orchestrator) handleText(ctx context.Context, channel, sender, text, whitelist string, isPhone bool) {
	cmd := o.lexicon.Parse(text)
	entry := store.OperationLogEntry{
		Kind:     store.KindMessage,
		Channel:  channel,
		Identity: sender,
		Text:     text,
		Action:   cmd.Action.String(),
	}

	if cmd.Action == types.ActionNone {
		entry.SoundPlayed = o.playSound(text)
		o.record(ctx, entry)
		return
	}

	entry.Granted = o.check(sender, whitelist, isPhone)
	if entry.Granted {
		o.execute(ctx, cmd.Action, cmd.Duration, fmt.Sprintf("%s from %s", channel, sender))
	}
	o.record(ctx, entry)
}

func (o *Orchestrator) execute(ctx context.Context, a types.Action, d time.Duration, origin string) {
	switch a {
	case types.ActionOpen:
		o.open(d)
	case types.ActionReboot:
		o.requestReboot(ctx, origin)
	case types.ActionLock:
		o.setLocked(true)
		o.enqueue(types.Lock{})
	case types.ActionUnlock:
		o.setLocked(false)
		o.enqueue(types.Unlock{})
	case types.ActionResetGate:
		o.enqueue(types.ResetGate{})
	case types.ActionNone:
	}
}

// check returns false on any whitelist error.
func (o *Orchestrator) check(identity, whitelist string, isPhone bool) bool {
	ok, err := o.access.Check(identity, whitelist, isPhone)
	if err != nil {
		o.logger.Error("access check failed, denying", "identity", identity,
			"whitelist", whitelist, "err", err)
		return false
	}
	return ok
}

// open enqueues Open unless the gate is locked. d <= 0 uses the default.
func (o *Orchestrator) open(d time.Duration) bool {
	if o.Locked() {
		o.logger.Info("gate locked, open suppressed")
		return false
	}
	if d <= 0 {
		d = o.cfg.DefaultOpen
	}
	return o.enqueue(types.Open{Duration: d})
}

func (o *Orchestrator) enqueue(cmd types.ActuationCommand) bool {
	if err := o.queue.Enqueue(cmd); err != nil {
		if errors.Is(err, actuator.ErrQueueFull) {
			o.logger.Error("actuation dropped, queue full", "command", fmt.Sprint(cmd))
		} else {
			o.logger.Error("actuation enqueue failed", "command", fmt.Sprint(cmd), "err", err)
		}
		return false
	}
	return true
}

func (o *Orchestrator) playSound(text string) bool {
	if o.sounds == nil {
		return false
	}
	played, err := o.sounds.PlayFor(text)
	if err != nil {
		o.logger.Warn("sound playback failed", "text", text, "err", err)
		return false
	}
	return played
}

func (o *Orchestrator) record(ctx context.Context, e store.OperationLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = o.clock.Now()
	}
	o.logger.Info("access decision", "kind", e.Kind, "channel", e.Channel,
		"identity", e.Identity, "action", e.Action, "granted", e.Granted,
		"sound", e.SoundPlayed)
	if err := o.oplog.Append(ctx, e); err != nil {
		o.logger.Warn("operation log append failed", "err", err)
	}
}

func (o *Orchestrator) setLocked(v bool) {
	o.mu.Lock()
	o.locked = v
	o.mu.Unlock()
}

func (o *Orchestrator) Locked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locked
}
