// Package gpio drives the heater relay and reads its status line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// ErrPulseInProgress is returned when a toggle pulse is still being held.
var ErrPulseInProgress = errors.New("heater toggle pulse in progress")

// Heater is the binary heat source.
type Heater interface {
	// Set commands the heater on or off.
	Set(on bool) error

	// Status reads the physical heater state.
	Status() (bool, error)
}

// ControlMode selects how the control line drives the heater.
type ControlMode string

const (
	// ModeSwitch holds the control line at the desired level.
	ModeSwitch ControlMode = "switch"

	// ModeToggle pulses the control line; each pulse flips the heater.
	ModeToggle ControlMode = "toggle"
)

const DefaultPulse = 500 * time.Millisecond

func ParseControlMode(s string) (ControlMode, error) {
	switch m := ControlMode(s); m {
	case ModeSwitch, ModeToggle:
		return m, nil
	case "":
		return ModeToggle, nil
	}
	return "", fmt.Errorf("unknown heater control mode %q", s)
}

// Ensure drives the heater to the wanted state, reading status first so that a command
// matching the current state never reaches the relay. It reports whether a command was
// issued.
func Ensure(h Heater, on bool) (bool, error) {
	current, err := h.Status()
	if err != nil {
		return false, fmt.Errorf("read heater status: %w", err)
	}
	if current == on {
		return false, nil
	}
	if err := h.Set(on); err != nil {
		return false, fmt.Errorf("set heater %v: %w", on, err)
	}
	return true, nil
}
