package modem

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
)

// LineKind classifies a line read from the modem.
type LineKind int

const (
	LineOther LineKind = iota
	LineCallerID
	LineRing
	LineSMSNotice
	LinePowerDown
	LineOK
	LineError
)

const (
	prefixCLIP = "+CLIP:"
	prefixCLCC = "+CLCC:"
	prefixCMGL = "+CMGL:"
	prefixCMTI = "+CMTI:"
)

// Classify maps a trimmed line to its kind. Unsolicited result codes are
// recognised by prefix; "POWER DOWN" may appear anywhere in the line.
func Classify(line string) LineKind {
	switch {
	case strings.HasPrefix(line, prefixCLIP):
		return LineCallerID
	case strings.HasPrefix(line, "RING"):
		return LineRing
	case strings.HasPrefix(line, prefixCMTI):
		return LineSMSNotice
	case strings.Contains(line, "POWER DOWN"):
		return LinePowerDown
	case line == "OK":
		return LineOK
	case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"), strings.HasPrefix(line, "+CMS ERROR"):
		return LineError
	default:
		return LineOther
	}
}

// IsUnsolicited reports whether a line is an event the modem sends on its
// own rather than part of a command response.
func IsUnsolicited(line string) bool {
	switch Classify(line) {
	case LineCallerID, LineRing, LineSMSNotice, LinePowerDown:
		return true
	}
	return false
}

// SplitLines normalises CRLF, trims each line and drops empty ones.
func SplitLines(data []byte) []string {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	var out []string
	for _, l := range bytes.Split(data, []byte("\n")) {
		l = bytes.TrimSpace(l)
		if len(l) > 0 {
			out = append(out, string(l))
		}
	}
	return out
}

var (
	ErrMalformedCLIP = errors.New("malformed +CLIP line")
	ErrMalformedCLCC = errors.New("malformed +CLCC line")
	ErrNotVoiceCall  = errors.New("not a voice call")
)

// ParseCLIP extracts the caller number from a caller-ID line such as
//
//	+CLIP: "0541234567",129,"",0,"",0
//
// The token after the first whitespace must hold at least one comma and a
// number of three or more characters.
func ParseCLIP(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", fault.Drop("parse clip", ErrMalformedCLIP)
	}
	info := fields[1]
	if !strings.Contains(info, ",") {
		return "", fault.Drop("parse clip", ErrMalformedCLIP)
	}
	number, _, _ := strings.Cut(info, ",")
	number = strings.ReplaceAll(number, `"`, "")
	if len(number) < 3 {
		return "", fault.Drop("parse clip", fmt.Errorf("%w: number %q too short", ErrMalformedCLIP, number))
	}
	return number, nil
}

// ParseCLCC extracts the remote number from a current-calls line such as
//
//	+CLCC: 1,1,4,0,0,"+972541234567",145
//
// Only voice calls (mode field "0") with a number longer than four
// characters qualify.
func ParseCLCC(line string) (string, error) {
	if !strings.HasPrefix(line, prefixCLCC) {
		return "", fault.Drop("parse clcc", ErrMalformedCLCC)
	}
	info := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, prefixCLCC)), ",")
	if len(info) < 6 {
		return "", fault.Drop("parse clcc", ErrMalformedCLCC)
	}
	mode, err := strconv.Atoi(strings.TrimSpace(info[3]))
	if err != nil {
		return "", fault.Drop("parse clcc", fmt.Errorf("%w: mode %q", ErrMalformedCLCC, info[3]))
	}
	if mode != 0 {
		return "", fault.Drop("parse clcc", ErrNotVoiceCall)
	}
	number := strings.ReplaceAll(strings.TrimSpace(info[5]), `"`, "")
	if len(number) <= 4 {
		return "", fault.Drop("parse clcc", fmt.Errorf("%w: number %q too short", ErrMalformedCLCC, number))
	}
	return number, nil
}

// SMS is one stored text message.
type SMS struct {
	Index  int
	Sender string
	Text   string
}

// ParseCMGL decodes the response to AT+CMGL in UCS2 text mode. A header
//
//	+CMGL: 6,"REC UNREAD","002B0039...",,""
//
// carries the sender as hex UTF-16BE; every following non-header line is a
// hex UTF-16BE body. Bodies that do not decode are dropped, and so are all
// bodies under a header whose sender does not decode. Parsing stops at OK
// or ERROR. The second return value counts dropped lines.
func ParseCMGL(lines []string) ([]SMS, int) {
	var (
		out     []SMS
		dropped int
		current *SMS
	)
	for _, l := range lines {
		switch Classify(l) {
		case LineOK, LineError:
			return out, dropped
		}
		if strings.HasPrefix(l, prefixCMGL) {
			current = nil
			hdr, err := parseCMGLHeader(l)
			if err != nil {
				dropped++
				continue
			}
			current = &hdr
			continue
		}
		if current == nil {
			if !strings.HasPrefix(l, "AT") {
				dropped++
			}
			continue
		}
		text, err := DecodeUCS2(l)
		if err != nil {
			dropped++
			continue
		}
		msg := *current
		msg.Text = text
		out = append(out, msg)
	}
	return out, dropped
}

func parseCMGLHeader(line string) (SMS, error) {
	info := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, prefixCMGL)), ",")
	if len(info) < 3 {
		return SMS{}, fault.Drop("parse cmgl", fmt.Errorf("short header %q", line))
	}
	idx, err := strconv.Atoi(strings.TrimSpace(info[0]))
	if err != nil {
		return SMS{}, fault.Drop("parse cmgl", fmt.Errorf("index %q: %w", info[0], err))
	}
	sender, err := DecodeUCS2(strings.ReplaceAll(info[2], `"`, ""))
	if err != nil {
		return SMS{}, fault.Drop("parse cmgl", fmt.Errorf("sender: %w", err))
	}
	return SMS{Index: idx, Sender: sender}, nil
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// DecodeUCS2 decodes a hex string of UTF-16BE code units.
func DecodeUCS2(s string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("ucs2 hex: %w", err)
	}
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("ucs2: odd byte count %d", len(raw))
	}
	b, err := utf16be.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("ucs2 decode: %w", err)
	}
	return string(b), nil
}

// EncodeUCS2 is the inverse of DecodeUCS2; used to build test fixtures and
// by the modem-probe CLI.
func EncodeUCS2(s string) string {
	b, _ := utf16be.NewEncoder().Bytes([]byte(s))
	return strings.ToUpper(hex.EncodeToString(b))
}
