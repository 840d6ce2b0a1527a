package heatercontroller

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
)

type Decision int

const (
	Hold Decision = iota
	TurnOn
	TurnOff
)

func (d Decision) String() string {
	switch d {
	case TurnOn:
		return "turn_on"
	case TurnOff:
		return "turn_off"
	default:
		return "hold"
	}
}

// Evaluate applies the hysteresis rule. One cold zone is enough to start the heater but
// every zone with data must be warm before it stops. With no zone data the OFF condition
// holds vacuously.
func Evaluate(zones []model.Zone, heaterOn bool, h model.Hysteresis) Decision {
	if !heaterOn {
		for _, z := range zones {
			if !considered(z) {
				continue
			}
			if z.Temperature < h.Lower(z.TemperatureTarget) {
				return TurnOn
			}
		}
		return Hold
	}

	for _, z := range zones {
		if !considered(z) {
			continue
		}
		if z.Temperature < h.Upper(z.TemperatureTarget) {
			return Hold
		}
	}
	return TurnOff
}

func considered(z model.Zone) bool {
	return z.Active() && z.Controllable()
}

type Controller struct {
	Heater     gpio.Heater
	Hysteresis model.Hysteresis
}

func New(heater gpio.Heater, h model.Hysteresis) *Controller {
	return &Controller{Heater: heater, Hysteresis: h}
}

// Run evaluates the zones and commands the heater when a transition is due. Nothing is
// read or commanded while automation is inactive.
func (c *Controller) Run(state *model.ControlState, zones []model.Zone) (Decision, error) {
	if !state.AutomationActive {
		return Hold, nil
	}

	on, err := c.Heater.Status()
	if err != nil {
		return Hold, fmt.Errorf("read heater status: %w", err)
	}
	state.HeaterEnabled = on

	d := Evaluate(zones, on, c.Hysteresis)
	if d == Hold {
		return Hold, nil
	}

	want := d == TurnOn
	if err := c.Heater.Set(want); err != nil {
		return Hold, fmt.Errorf("command heater %s: %w", d, err)
	}
	state.HeaterEnabled = want

	log.Info().
		Str("decision", d.String()).
		Float64("main_temp", state.MainTemperature).
		Msg("Heater transition")

	return d, nil
}
