package types

import (
	"context"
	"fmt"
)

// Event is something a worker observed and pushed to the command bus.
// The set of implementations is closed: Call, SMS, ChatMessage, RFTrigger.
type Event interface {
	// Source names the channel that produced the event.
	Source() string
	isEvent()
}

// Call is an incoming voice call identified by caller ID only. The call is
// never answered.
type Call struct {
	CallerID string
}

// SMS is a decoded text message read from the modem's storage.
type SMS struct {
	Sender string
	Text   string
}

// ChatMessage is a text sent to the operator chat bot.
type ChatMessage struct {
	Sender string
	Text   string
}

// RFTrigger is a qualifying remote-control code. It carries the decoded
// signal for diagnostics only; there is no identity behind it.
type RFTrigger struct {
	Code        uint64
	PulseLength int
	Protocol    int
}

func (Call) Source() string        { return "call" }
func (SMS) Source() string         { return "sms" }
func (ChatMessage) Source() string { return "chat" }
func (RFTrigger) Source() string   { return "rf" }

func (Call) isEvent()        {}
func (SMS) isEvent()         {}
func (ChatMessage) isEvent() {}
func (RFTrigger) isEvent()   {}

func (c Call) String() string { return fmt.Sprintf("call from %q", c.CallerID) }
func (s SMS) String() string  { return fmt.Sprintf("sms from %q: %q", s.Sender, s.Text) }
func (m ChatMessage) String() string {
	return fmt.Sprintf("chat from %q: %q", m.Sender, m.Text)
}
func (r RFTrigger) String() string {
	return fmt.Sprintf("rf code=%d pulse=%d proto=%d", r.Code, r.PulseLength, r.Protocol)
}

// Publisher is the write side of the command bus handed to every input
// worker. Publish blocks until the event is queued or ctx is done.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
