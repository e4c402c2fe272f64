//go:build !linux

package probe

import (
	"errors"
	"runtime"
)

func sysReboot() error {
	return errors.New("reboot not supported on " + runtime.GOOS)
}
