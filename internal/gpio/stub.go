//go:build !linux

package gpio

import (
	"errors"
	"time"
)

type RelayConfig struct {
	Chip            string
	StatusPin       int
	ControlPin      int
	StatusActiveLow bool
	Mode            ControlMode
	Pulse           time.Duration
}

// Relay is unavailable off Linux.
type Relay struct{}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	return nil, errors.New("gpio relay requires linux")
}

func (r *Relay) Status() (bool, error) { return false, errors.New("gpio relay requires linux") }
func (r *Relay) Set(on bool) error     { return errors.New("gpio relay requires linux") }
func (r *Relay) Close() error          { return nil }
