package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

// MaxOpenDuration caps a numeric open command.
const MaxOpenDuration = 300 * time.Second

// Command is the result of parsing free text.
type Command struct {
	Action types.Action
	// Duration is set only for numeric open commands. Zero means the
	// configured default.
	Duration time.Duration
}

// Lexicon maps literal phrases to actions. Lookups are exact and
// case-sensitive; synonyms are separate entries.
type Lexicon struct {
	phrases map[string]types.Action
}

// NewLexicon builds a lexicon from phrase -> action tag pairs.
func NewLexicon(phrases map[string]string) (*Lexicon, error) {
	out := make(map[string]types.Action, len(phrases))
	for phrase, tag := range phrases {
		a, err := types.ParseAction(tag)
		if err != nil {
			return nil, fmt.Errorf("lexicon phrase %q: %w", phrase, err)
		}
		out[phrase] = a
	}
	return &Lexicon{phrases: out}, nil
}

// Parse trims text and resolves it to a command. Unknown text yields
// ActionNone, never an error.
func (l *Lexicon) Parse(text string) Command {
	text = strings.TrimSpace(text)
	if a, ok := l.phrases[text]; ok {
		return Command{Action: a}
	}
	n, err := strconv.ParseUint(text, 10, 64)
	switch {
	case err == nil:
		d := MaxOpenDuration
		if n < uint64(MaxOpenDuration/time.Second) {
			d = time.Duration(n) * time.Second
		}
		return Command{Action: types.ActionOpen, Duration: d}
	case errors.Is(err, strconv.ErrRange):
		// All digits but past uint64: still a number of seconds, so cap it.
		return Command{Action: types.ActionOpen, Duration: MaxOpenDuration}
	}
	return Command{Action: types.ActionNone}
}

// DefaultPhrases is the stock lexicon used when the config has none.
func DefaultPhrases() map[string]string {
	return map[string]string{
		"up":          "open",
		"Up":          "open",
		"open":        "open",
		"Open":        "open",
		"let me in":   "open",
		"Let me in":   "open",
		"open sesame": "open",
		"Open sesame": "open",
		"reboot":      "reboot",
		"Reboot":      "reboot",
		"restart":     "reboot",
		"Restart":     "reboot",
		"lock":        "lock",
		"Lock":        "lock",
		"unlock":      "unlock",
		"Unlock":      "unlock",
		"reset gate":  "reset-gate",
		"Reset gate":  "reset-gate",
		"reset-gate":  "reset-gate",
	}
}
