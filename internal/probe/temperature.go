package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"

var (
	ErrNoTemperature = errors.New("no temperature source answered")

	measureTempRe = regexp.MustCompile(`([0-9.]+)'C`)
)

// Temperature reads the SoC temperature via `vcgencmd measure_temp`, falling
// back to the kernel thermal zone (millidegrees) when the tool is absent.
type Temperature struct {
	Run         Runner
	ThermalPath string
}

func NewTemperature() *Temperature {
	return &Temperature{Run: ExecRunner, ThermalPath: DefaultThermalPath}
}

func (t *Temperature) Temperature(ctx context.Context) (float64, error) {
	run := t.Run
	if run == nil {
		run = ExecRunner
	}
	out, vcErr := run(ctx, "vcgencmd", "measure_temp")
	if vcErr == nil {
		var v float64
		if v, vcErr = ParseMeasureTemp(string(out)); vcErr == nil {
			return v, nil
		}
	}

	path := t.ThermalPath
	if path == "" {
		path = DefaultThermalPath
	}
	v, zoneErr := readThermalZone(path)
	if zoneErr == nil {
		return v, nil
	}
	return 0, fmt.Errorf("%w: vcgencmd: %v; thermal zone: %v", ErrNoTemperature, vcErr, zoneErr)
}

// ParseMeasureTemp extracts degrees from output like "temp=48.3'C".
func ParseMeasureTemp(out string) (float64, error) {
	m := measureTempRe.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("unexpected measure_temp output %q", strings.TrimSpace(out))
	}
	return strconv.ParseFloat(m[1], 64)
}

func readThermalZone(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000, nil
}
