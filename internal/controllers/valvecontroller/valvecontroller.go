package valvecontroller

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

const (
	FullyOpen = 100
	Closed    = 0

	// Gain is the opening in percentage points per degree of deficit.
	Gain = 10.0
)

// Actuator positions zone valves. Movement is asynchronous; SetOpening returns once the
// target is accepted and is a no-op when the valve is already headed there.
type Actuator interface {
	SetOpening(valveID, percent int) error
}

// Move is a valve command issued during a pass.
type Move struct {
	Zone    string
	ValveID int
	Opening int
}

// Target computes the wanted opening for one zone. The second result is false when the
// valve should be left where it is.
func Target(z model.Zone, heaterOn bool, mode model.ValveMode, h model.Hysteresis) (int, bool) {
	if !heaterOn {
		return FullyOpen, true
	}
	if !z.Controllable() {
		return 0, false
	}

	switch mode {
	case model.ValveModeProportional:
		return Proportional(z.TemperatureTarget, z.Temperature), true
	default:
		switch {
		case z.Temperature < h.Lower(z.TemperatureTarget):
			return FullyOpen, true
		case z.Temperature > h.Upper(z.TemperatureTarget):
			return Closed, true
		}
		return 0, false
	}
}

// Proportional returns the opening for a deficit, capped at fully open.
func Proportional(target, temp float64) int {
	if !(temp < target) {
		return Closed
	}
	return clamp(int(math.Round((target - temp) * Gain)))
}

func clamp(p int) int {
	if p < Closed {
		return Closed
	}
	if p > FullyOpen {
		return FullyOpen
	}
	return p
}

type Controller struct {
	Valves     Actuator
	Hysteresis model.Hysteresis
}

func New(valves Actuator, h model.Hysteresis) *Controller {
	return &Controller{Valves: valves, Hysteresis: h}
}

// Run computes every zone's opening and hands it to the actuator. A valve that cannot be
// commanded is skipped; the next pass tries again.
func (c *Controller) Run(state *model.ControlState, zones []model.Zone) []Move {
	var moves []Move
	for _, z := range zones {
		if !z.Active() || !z.HasValve() {
			continue
		}

		opening, ok := Target(z, state.HeaterEnabled, state.ValveMode, c.Hysteresis)
		if !ok {
			continue
		}
		if err := c.Valves.SetOpening(z.ValveID, opening); err != nil {
			log.Warn().
				Err(err).
				Str("zone", z.Name).
				Int("valve", z.ValveID).
				Msg("Skipping valve command")
			continue
		}

		log.Debug().
			Str("zone", z.Name).
			Int("valve", z.ValveID).
			Int("opening", opening).
			Msg("Valve commanded")
		moves = append(moves, Move{Zone: z.Name, ValveID: z.ValveID, Opening: opening})
	}
	return moves
}
