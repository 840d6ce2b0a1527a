//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// RelayConfig describes the heater wiring.
type RelayConfig struct {
	Chip            string
	StatusPin       int
	ControlPin      int
	StatusActiveLow bool
	Mode            ControlMode
	Pulse           time.Duration
}

// Relay drives a heater through the Linux GPIO character device.
type Relay struct {
	chip    *gpiocdev.Chip
	status  *gpiocdev.Line
	control *gpiocdev.Line
	mode    ControlMode
	pulse   time.Duration
	pulsing atomic.Bool
}

// NewRelay requests the status line as input and the control line as an output
// driven low.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	chipName := cfg.Chip
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	statusOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if cfg.StatusActiveLow {
		statusOpts = append(statusOpts, gpiocdev.AsActiveLow)
	}
	status, err := chip.RequestLine(cfg.StatusPin, statusOpts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request status pin %d: %w", cfg.StatusPin, err)
	}

	control, err := chip.RequestLine(cfg.ControlPin, gpiocdev.AsOutput(0))
	if err != nil {
		status.Close()
		chip.Close()
		return nil, fmt.Errorf("request control pin %d: %w", cfg.ControlPin, err)
	}

	pulse := cfg.Pulse
	if pulse <= 0 {
		pulse = DefaultPulse
	}

	return &Relay{
		chip:    chip,
		status:  status,
		control: control,
		mode:    cfg.Mode,
		pulse:   pulse,
	}, nil
}

func (r *Relay) Status() (bool, error) {
	v, err := r.status.Value()
	if err != nil {
		return false, fmt.Errorf("read status pin: %w", err)
	}
	return v == 1, nil
}

// Set drives the control line. In toggle mode the pulse is released by a timer so the
// caller never waits for it.
func (r *Relay) Set(on bool) error {
	if r.mode == ModeSwitch {
		v := 0
		if on {
			v = 1
		}
		if err := r.control.SetValue(v); err != nil {
			return fmt.Errorf("drive control pin: %w", err)
		}
		return nil
	}

	if !r.pulsing.CompareAndSwap(false, true) {
		return ErrPulseInProgress
	}
	if err := r.control.SetValue(1); err != nil {
		r.pulsing.Store(false)
		return fmt.Errorf("start toggle pulse: %w", err)
	}
	time.AfterFunc(r.pulse, func() {
		if err := r.control.SetValue(0); err != nil {
			log.Error().Err(err).Msg("Failed to release heater toggle pulse")
		}
		r.pulsing.Store(false)
	})
	return nil
}

// Close drives the control line low and releases GPIO resources.
func (r *Relay) Close() error {
	var errs []error
	if r.control != nil {
		if err := r.control.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release control pin: %w", err))
		}
		if err := r.control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close control pin: %w", err))
		}
	}
	if r.status != nil {
		if err := r.status.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close status pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
