package probe

import (
	"context"
	"strings"
)

// USB checks that every required vendor:product id is listed by lsusb.
type USB struct {
	Run      Runner
	Required []string
}

func NewUSB(required []string) *USB {
	return &USB{Run: ExecRunner, Required: required}
}

// CheckUSB returns the required ids that are missing. An lsusb failure is
// returned as an error and should count as a failed check.
func (u *USB) CheckUSB(ctx context.Context) ([]string, error) {
	run := u.Run
	if run == nil {
		run = ExecRunner
	}
	out, err := run(ctx, "lsusb")
	if err != nil {
		return nil, err
	}
	return MissingIDs(string(out), u.Required), nil
}

// MissingIDs lists the entries of required that do not occur in listing.
// Matching is case-insensitive.
func MissingIDs(listing string, required []string) []string {
	listing = strings.ToLower(listing)
	var missing []string
	for _, id := range required {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !strings.Contains(listing, strings.ToLower(id)) {
			missing = append(missing, id)
		}
	}
	return missing
}
