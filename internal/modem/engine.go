package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/hwio"
)

// State is the modem engine's protocol state.
type State int

const (
	StateUninitialized State = iota
	StatePinging
	StatePoweringCycle
	StateReady
	StateConfiguringSMS
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StatePinging:
		return "pinging"
	case StatePoweringCycle:
		return "power-cycle"
	case StateReady:
		return "ready"
	case StateConfiguringSMS:
		return "configuring-sms"
	case StateFaulted:
		return "faulted"
	default:
		return "uninitialized"
	}
}

// Session is what the engine knows about the modem since its last power-up.
type Session struct {
	PoweredOn bool
	DeviceID  string
	LastPing  time.Time
}

const (
	cmdPing        = "AT"
	cmdIdentify    = "ATI"
	cmdCallerID    = "AT+CLIP=1"
	cmdCharsetUCS2 = `AT+CSCS="UCS2"`
	cmdTextMode    = "AT+CMGF=1"
	cmdListUnread  = `AT+CMGL="REC UNREAD"`
	cmdDeleteAll   = `AT+CMGDA="DEL ALL"`
	cmdDeleteRead  = "AT+CMGD=0,4"
	cmdListCalls   = "AT+CLCC"

	DefaultHangup = "AT+CHUP"
)

var (
	ErrModemSilent = errors.New("modem does not answer AT")
	ErrNoResponse  = errors.New("no final result code")
	ErrRejected    = errors.New("modem rejected command")
)

// Timing holds every delay the protocol uses.
type Timing struct {
	CommandDelay    time.Duration // between sending and the first read
	PingTimeout     time.Duration
	ResponseTimeout time.Duration
	PowerHold       time.Duration // power key held low
	PowerSettle     time.Duration // wait after releasing the power key
	PowerDownSettle time.Duration // wait after a POWER DOWN notice
	PingInterval    time.Duration // idle liveness check period
	CallDedupWindow time.Duration // one Call per caller within this window
}

func DefaultTiming() Timing {
	return Timing{
		CommandDelay:    100 * time.Millisecond,
		PingTimeout:     time.Second,
		ResponseTimeout: 5 * time.Second,
		PowerHold:       4 * time.Second,
		PowerSettle:     20 * time.Second,
		PowerDownSettle: 4 * time.Second,
		PingInterval:    2 * time.Minute,
		CallDedupWindow: 10 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.CommandDelay <= 0 {
		t.CommandDelay = d.CommandDelay
	}
	if t.PingTimeout <= 0 {
		t.PingTimeout = d.PingTimeout
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = d.ResponseTimeout
	}
	if t.PowerHold <= 0 {
		t.PowerHold = d.PowerHold
	}
	if t.PowerSettle <= 0 {
		t.PowerSettle = d.PowerSettle
	}
	if t.PowerDownSettle <= 0 {
		t.PowerDownSettle = d.PowerDownSettle
	}
	if t.PingInterval <= 0 {
		t.PingInterval = d.PingInterval
	}
	if t.CallDedupWindow < 0 {
		t.CallDedupWindow = 0
	}
	return t
}

// Engine runs the AT protocol over a Link. It is not safe for concurrent
// use; the modem worker owns it.
type Engine struct {
	link   *Link
	power  hwio.Line
	timing Timing
	hangup string
	clock  clockwork.Clock
	logger *slog.Logger

	state   State
	session Session

	// unsolicited lines that arrived while waiting for a command response
	backlog []string

	lastCaller   string
	lastCallerAt time.Time
}

// NewEngine builds an engine. power may be nil when the modem has no
// controllable power key.
func NewEngine(link *Link, power hwio.Line, timing Timing, hangup string, clock clockwork.Clock, logger *slog.Logger) *Engine {
	if hangup == "" {
		hangup = DefaultHangup
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		link:   link,
		power:  power,
		timing: timing.withDefaults(),
		hangup: hangup,
		clock:  clock,
		logger: logger,
	}
}

func (e *Engine) State() State { return e.state }

func (e *Engine) Session() Session { return e.session }

func (e *Engine) setState(s State) { e.state = s }

func (e *Engine) now() time.Time { return e.clock.Now() }

// Start brings the modem to Ready, power cycling it if it is silent, and
// drains any messages stored while the controller was down.
func (e *Engine) Start(ctx context.Context) ([]types.Event, error) {
	if _, err := e.ensureAlive(ctx); err != nil {
		return nil, err
	}
	if err := e.configureSession(ctx); err != nil {
		return nil, err
	}
	msgs, err := e.ReadSMS(ctx)
	return smsEvents(msgs), err
}

// ResetIfNeeded pings the modem and power cycles it when silent. After a
// successful cycle the session is rebuilt and stored messages are drained.
func (e *Engine) ResetIfNeeded(ctx context.Context) ([]types.Event, error) {
	cycled, err := e.ensureAlive(ctx)
	if err != nil || !cycled {
		return nil, err
	}
	if err := e.configureSession(ctx); err != nil {
		return nil, err
	}
	msgs, err := e.ReadSMS(ctx)
	return smsEvents(msgs), err
}

func (e *Engine) ensureAlive(ctx context.Context) (bool, error) {
	e.setState(StatePinging)
	ok, err := e.Ping(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		e.session.PoweredOn = true
		e.setState(StateReady)
		return false, nil
	}

	e.logger.Warn("modem silent, power cycling")
	e.setState(StatePoweringCycle)
	e.session = Session{}
	if err := e.powerCycle(ctx); err != nil {
		return false, err
	}

	e.setState(StatePinging)
	ok, err = e.Ping(ctx)
	if err != nil {
		return true, err
	}
	if !ok {
		e.setState(StateFaulted)
		return true, fault.Fatal("power cycle", ErrModemSilent)
	}
	e.session.PoweredOn = true
	e.setState(StateReady)
	e.logger.Info("modem is back after power cycle")
	return true, nil
}

func (e *Engine) powerCycle(ctx context.Context) error {
	if e.power == nil {
		e.logger.Warn("no modem power line configured, skipping power cycle")
		return nil
	}
	if err := e.power.Set(true); err != nil {
		return fault.Fatal("power key", err)
	}
	herr := e.sleep(ctx, e.timing.PowerHold)
	if err := e.power.Set(false); err != nil {
		return fault.Fatal("power key", err)
	}
	if herr != nil {
		return herr
	}
	e.logger.Info("modem power on, settling", "settle", e.timing.PowerSettle)
	return e.sleep(ctx, e.timing.PowerSettle)
}

// Ping sends AT and reports whether OK arrived within the last ten bytes
// before PingTimeout.
func (e *Engine) Ping(ctx context.Context) (bool, error) {
	if err := e.link.Send(cmdPing); err != nil {
		return false, err
	}
	deadline := e.now().Add(e.timing.PingTimeout)
	var got []byte
	ok := false
	for {
		if err := e.sleep(ctx, e.timing.CommandDelay); err != nil {
			return false, err
		}
		data, err := e.link.Recv()
		if err != nil {
			return false, err
		}
		got = append(got, data...)
		if okTail(got) {
			ok = true
			break
		}
		if !e.now().Before(deadline) {
			break
		}
	}

	if len(got) > 10 {
		e.logger.Debug("extra data on ping", "data", string(got))
	}
	for _, l := range e.link.Frame(got) {
		if IsUnsolicited(l) {
			e.backlog = append(e.backlog, l)
		}
	}
	if ok {
		e.session.LastPing = e.now()
	}
	return ok, nil
}

func okTail(b []byte) bool {
	if len(b) > 10 {
		b = b[len(b)-10:]
	}
	return bytes.Contains(b, []byte("OK"))
}

func (e *Engine) configureSession(ctx context.Context) error {
	resp, err := e.exchange(ctx, cmdIdentify)
	if err != nil && !fault.IsTransient(err) {
		return err
	}
	if len(resp) >= 3 {
		e.session.DeviceID = resp[2]
	}
	e.logger.Info("modem identified", "device_id", e.session.DeviceID)

	if _, err := e.exchange(ctx, cmdCallerID); err != nil {
		if !fault.IsTransient(err) && !errors.Is(err, ErrRejected) {
			return err
		}
		e.logger.Warn("enable caller id failed", "err", err)
	}
	return nil
}

// exchange sends cmd and collects response lines up to and including the
// final result code. Unsolicited lines are set aside for the next Poll.
// A timeout is transient; an ERROR result wraps ErrRejected.
func (e *Engine) exchange(ctx context.Context, cmd string) ([]string, error) {
	if err := e.link.Send(cmd); err != nil {
		return nil, err
	}
	deadline := e.now().Add(e.timing.ResponseTimeout)
	var resp []string
	for {
		if err := e.sleep(ctx, e.timing.CommandDelay); err != nil {
			return resp, err
		}
		lines, err := e.link.Lines()
		if err != nil {
			return resp, err
		}
		for _, l := range lines {
			if IsUnsolicited(l) {
				e.backlog = append(e.backlog, l)
				continue
			}
			resp = append(resp, l)
			switch Classify(l) {
			case LineOK:
				return resp, nil
			case LineError:
				return resp, fault.Drop(cmd, fmt.Errorf("%w: %s", ErrRejected, l))
			}
		}
		if !e.now().Before(deadline) {
			return resp, fault.Transient(cmd, ErrNoResponse)
		}
	}
}

// ReadSMS switches to UCS2 text mode, lists unread messages and deletes
// everything stored. Both mode switches must succeed.
func (e *Engine) ReadSMS(ctx context.Context) ([]SMS, error) {
	e.setState(StateConfiguringSMS)
	for _, cmd := range []string{cmdCharsetUCS2, cmdTextMode} {
		if _, err := e.exchange(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.setState(StateFaulted)
			return nil, fault.Fatal("configure sms", err)
		}
	}
	e.setState(StateReady)

	resp, lerr := e.exchange(ctx, cmdListUnread)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	msgs, dropped := ParseCMGL(resp)
	if dropped > 0 {
		e.logger.Warn("dropped undecodable sms lines", "count", dropped)
	}
	if lerr != nil {
		e.logger.Warn("sms listing incomplete", "err", lerr)
	}

	for _, cmd := range []string{cmdDeleteAll, cmdDeleteRead} {
		if _, err := e.exchange(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return msgs, ctx.Err()
			}
			e.logger.Debug("sms delete", "command", cmd, "err", err)
		}
	}
	for _, m := range msgs {
		e.logger.Info("sms received", "index", m.Index, "sender", m.Sender, "text", m.Text)
	}
	return msgs, nil
}

// Poll processes everything the modem sent since the last call and runs
// the idle liveness check when due. Drop-class errors are logged and
// skipped; anything else is returned.
func (e *Engine) Poll(ctx context.Context) ([]types.Event, error) {
	lines := e.backlog
	e.backlog = nil

	fresh, err := e.link.Lines()
	if err != nil {
		return nil, err
	}
	lines = append(lines, fresh...)

	var events []types.Event
	for _, l := range lines {
		evs, err := e.handleLine(ctx, l)
		events = append(events, evs...)
		if err != nil {
			if fault.IsDrop(err) {
				e.logger.Warn("dropped modem line", "line", l, "err", err)
				continue
			}
			return events, err
		}
	}

	if e.now().Sub(e.session.LastPing) >= e.timing.PingInterval {
		evs, err := e.ResetIfNeeded(ctx)
		events = append(events, evs...)
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

func (e *Engine) handleLine(ctx context.Context, line string) ([]types.Event, error) {
	switch Classify(line) {
	case LineCallerID:
		number, perr := ParseCLIP(line)
		herr := e.hangUp(ctx)
		if perr != nil {
			return nil, errors.Join(perr, herr)
		}
		return e.call(number), herr

	case LineRing:
		resp, err := e.exchange(ctx, cmdListCalls)
		if err != nil && !fault.IsTransient(err) && !fault.IsDrop(err) {
			return nil, err
		}
		var events []types.Event
		for _, l := range resp {
			if !strings.HasPrefix(l, prefixCLCC) {
				continue
			}
			number, perr := ParseCLCC(l)
			if perr != nil {
				e.logger.Debug("skipping call entry", "line", l, "err", perr)
				continue
			}
			events = append(events, e.call(number)...)
			if herr := e.hangUp(ctx); herr != nil {
				return events, herr
			}
		}
		return events, nil

	case LineSMSNotice:
		msgs, err := e.ReadSMS(ctx)
		return smsEvents(msgs), err

	case LinePowerDown:
		e.logger.Warn("modem reported power down")
		if err := e.sleep(ctx, e.timing.PowerDownSettle); err != nil {
			return nil, err
		}
		return e.ResetIfNeeded(ctx)
	}
	return nil, nil
}

func (e *Engine) call(number string) []types.Event {
	now := e.now()
	// The window is anchored to the emitted call, not to the repeats.
	if number == e.lastCaller && now.Sub(e.lastCallerAt) < e.timing.CallDedupWindow {
		return nil
	}
	e.lastCaller, e.lastCallerAt = number, now
	e.logger.Info("incoming call", "caller", number)
	return []types.Event{types.Call{CallerID: number}}
}

// hangUp rejects the current call; the caller id is all that is needed.
func (e *Engine) hangUp(ctx context.Context) error {
	_, err := e.exchange(ctx, e.hangup)
	if err == nil || fault.IsTransient(err) || fault.IsDrop(err) {
		return nil
	}
	return err
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.clock.After(d):
		return nil
	}
}

func smsEvents(msgs []SMS) []types.Event {
	var out []types.Event
	for _, m := range msgs {
		out = append(out, types.SMS{Sender: m.Sender, Text: m.Text})
	}
	return out
}
