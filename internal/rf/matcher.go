package rf

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min uint64 `yaml:"min"`
	Max uint64 `yaml:"max"`
}

func (r Range) Contains(v uint64) bool { return v >= r.Min && v <= r.Max }

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Min, r.Max) }

// ParseRange accepts "lo-hi" or a single value.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	r := Range{}
	var err error
	if r.Min, err = strconv.ParseUint(strings.TrimSpace(lo), 10, 64); err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	if r.Max, err = strconv.ParseUint(strings.TrimSpace(hi), 10, 64); err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	if r.Min > r.Max {
		return Range{}, fmt.Errorf("range %q: min above max", s)
	}
	return r, nil
}

// Fingerprint selects the remote(s) allowed to trigger the gate.
// Protocol 0 accepts any protocol. A signal must fall inside at least one
// pulse range and at least one code range.
type Fingerprint struct {
	Protocol    int     `yaml:"protocol"`
	PulseRanges []Range `yaml:"pulse_ranges"`
	CodeRanges  []Range `yaml:"code_ranges"`
}

// AnyFingerprint matches every decoded signal; used by rf-test.
var AnyFingerprint = Fingerprint{
	PulseRanges: []Range{{0, 1000}},
	CodeRanges:  []Range{{0, 10000}},
}

func (f Fingerprint) Validate() error {
	if f.Protocol < 0 || f.Protocol >= len(Protocols) {
		return fmt.Errorf("rf protocol %d out of range", f.Protocol)
	}
	if len(f.PulseRanges) == 0 || len(f.CodeRanges) == 0 {
		return fmt.Errorf("rf fingerprint needs at least one pulse and one code range")
	}
	return nil
}

func (f Fingerprint) Match(s Signal) bool {
	if f.Protocol != 0 && f.Protocol != s.Protocol {
		return false
	}
	return anyContains(f.PulseRanges, uint64(s.PulseLength)) && anyContains(f.CodeRanges, s.Code)
}

func anyContains(rs []Range, v uint64) bool {
	for _, r := range rs {
		if r.Contains(v) {
			return true
		}
	}
	return false
}
