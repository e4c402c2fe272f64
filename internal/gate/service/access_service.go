package service

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var (
	ErrNoWhitelist   = errors.New("whitelist file is not readable")
	ErrEmptyIdentity = errors.New("identity is required")
)

var (
	phoneSeparators  = strings.NewReplacer("-", "", " ", "", ".", "")
	defaultPhonePlan = PhonePlan{CountryCode: "972", TrunkPrefix: "0"}
)

// PhonePlan describes the numbering conventions folded together when a
// phone number is matched: a number may be written in national form
// (trunk prefix + subscriber) or international form with or without "+".
type PhonePlan struct {
	CountryCode string
	TrunkPrefix string
}

// AccessControl decides whether an identity appears in a whitelist file.
// The file is read on every call so edits apply to the next check.
type AccessControl struct {
	plan   PhonePlan
	logger *slog.Logger
}

func NewAccessControl(plan PhonePlan, logger *slog.Logger) *AccessControl {
	if plan.CountryCode == "" {
		plan = defaultPhonePlan
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AccessControl{plan: plan, logger: logger}
}

// Check reports whether identity is listed in the whitelist at path.
// Phone identities are matched in every written form the plan allows;
// other identities (chat usernames) must match exactly.
//
// A read failure returns false together with the error. Callers must
// treat that as a denial.
func (a *AccessControl) Check(identity, whitelistPath string, isPhone bool) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, ErrEmptyIdentity
	}

	whitelist, err := loadWhitelist(whitelistPath)
	if err != nil {
		return false, err
	}

	a.logger.Debug("validating identity",
		"identity", identity, "whitelist", whitelistPath, "phone", isPhone)

	candidates := []string{identity}
	if isPhone {
		identity = NormalizePhone(identity)
		candidates = append([]string{identity}, a.plan.Variants(identity)...)
	}

	for _, c := range candidates {
		if _, ok := whitelist[c]; ok {
			return true, nil
		}
	}
	return false, nil
}

// NormalizePhone strips the separators people type inside numbers.
func NormalizePhone(number string) string {
	return phoneSeparators.Replace(strings.TrimSpace(number))
}

// Variants returns every other spelling of number under the plan:
// national (trunk prefix), "+cc", bare "cc", and "+cc" followed by the
// trunk prefix. A number in none of these forms has no variants.
func (p PhonePlan) Variants(number string) []string {
	subscriber, ok := p.subscriber(number)
	if !ok {
		return nil
	}
	forms := []string{
		p.TrunkPrefix + subscriber,
		"+" + p.CountryCode + subscriber,
		p.CountryCode + subscriber,
		"+" + p.CountryCode + p.TrunkPrefix + subscriber,
	}
	out := forms[:0]
	for _, f := range forms {
		if f != number {
			out = append(out, f)
		}
	}
	return out
}

// subscriber strips whichever prefix number carries and returns the
// national significant number.
func (p PhonePlan) subscriber(number string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(number, "+"+p.CountryCode):
		rest = number[len(p.CountryCode)+1:]
	case strings.HasPrefix(number, p.CountryCode):
		rest = number[len(p.CountryCode):]
	case p.TrunkPrefix != "" && strings.HasPrefix(number, p.TrunkPrefix):
		return number[len(p.TrunkPrefix):], number != p.TrunkPrefix
	default:
		return "", false
	}
	if p.TrunkPrefix != "" {
		rest = strings.TrimPrefix(rest, p.TrunkPrefix)
	}
	return rest, rest != ""
}

func loadWhitelist(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoWhitelist, path, err)
	}
	fields := bytes.Fields(data)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[string(f)] = struct{}{}
	}
	return out, nil
}
