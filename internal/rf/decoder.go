// Package rf decodes 433MHz remote-control codes from edge timings and
// turns matching codes into gate events.
package rf

import (
	"time"
)

// Protocol describes one rc-switch style line coding, in multiples of the
// base pulse length.
type Protocol struct {
	PulseLength int // nominal, microseconds
	SyncHigh    int
	SyncLow     int
	ZeroHigh    int
	ZeroLow     int
	OneHigh     int
	OneLow      int
}

// Protocols is indexed by protocol number; index 0 is unused.
var Protocols = []Protocol{
	{},
	{350, 1, 31, 1, 3, 3, 1},
	{650, 1, 10, 1, 2, 2, 1},
	{100, 30, 71, 4, 11, 9, 6},
	{380, 1, 6, 1, 3, 3, 1},
	{500, 6, 14, 1, 2, 2, 1},
	{200, 1, 10, 1, 5, 1, 1},
}

const (
	maxChanges       = 67
	syncGapMicros    = 5000
	repeatSlackMicro = 200
	tolerancePercent = 80
)

// Signal is a decoded transmission.
type Signal struct {
	Code        uint64
	BitLength   int
	PulseLength int
	Protocol    int
	Timestamp   time.Time
}

// Decoder reconstructs codes from the durations between successive edges.
// A code is accepted once the same frame has been seen between three sync
// gaps. Not safe for concurrent use.
type Decoder struct {
	timings     [maxChanges + 1]int64
	changeCount int
	repeatCount int
}

// Feed adds the duration (microseconds) since the previous edge, observed
// at t. It returns the decoded signal when this edge completes a frame.
func (d *Decoder) Feed(micros int64, t time.Time) (Signal, bool) {
	var (
		sig Signal
		ok  bool
	)
	if micros > syncGapMicros {
		if abs(micros-d.timings[0]) < repeatSlackMicro {
			d.repeatCount++
			d.changeCount--
			if d.repeatCount == 2 {
				for p := 1; p < len(Protocols); p++ {
					if sig, ok = d.waveform(p, d.changeCount, t); ok {
						break
					}
				}
				d.repeatCount = 0
			}
		}
		d.changeCount = 0
	}
	if d.changeCount >= maxChanges {
		d.changeCount = 0
		d.repeatCount = 0
	}
	d.timings[d.changeCount] = micros
	d.changeCount++
	return sig, ok
}

func (d *Decoder) waveform(pnum, changeCount int, t time.Time) (Signal, bool) {
	p := Protocols[pnum]
	delay := d.timings[0] / int64(p.SyncLow)
	tol := delay * tolerancePercent / 100

	var code uint64
	for i := 1; i+1 < len(d.timings) && i < changeCount; i += 2 {
		hi, lo := d.timings[i], d.timings[i+1]
		switch {
		case abs(hi-delay*int64(p.ZeroHigh)) < tol && abs(lo-delay*int64(p.ZeroLow)) < tol:
			code <<= 1
		case abs(hi-delay*int64(p.OneHigh)) < tol && abs(lo-delay*int64(p.OneLow)) < tol:
			code = code<<1 | 1
		default:
			return Signal{}, false
		}
	}
	if changeCount > 6 && code != 0 {
		return Signal{
			Code:        code,
			BitLength:   changeCount / 2,
			PulseLength: int(delay),
			Protocol:    pnum,
			Timestamp:   t,
		}, true
	}
	return Signal{}, false
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Encode renders code as edge durations (microseconds) for the given
// protocol: sync pair first, then one high/low pair per bit, MSB first.
// Used by tests and the rf-test command's self check.
func Encode(code uint64, bits, pnum, pulse int) []int64 {
	p := Protocols[pnum]
	if pulse <= 0 {
		pulse = p.PulseLength
	}
	pl := int64(pulse)
	out := []int64{pl * int64(p.SyncHigh), pl * int64(p.SyncLow)}
	for i := bits - 1; i >= 0; i-- {
		if code>>uint(i)&1 == 1 {
			out = append(out, pl*int64(p.OneHigh), pl*int64(p.OneLow))
		} else {
			out = append(out, pl*int64(p.ZeroHigh), pl*int64(p.ZeroLow))
		}
	}
	return out
}
