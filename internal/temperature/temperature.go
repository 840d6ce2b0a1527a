package temperature

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

// Select picks the representative temperature: the coldest zone still below its
// target, or the first active zone when none is below target. It returns the raw
// reading and the index of the chosen zone, or -1 when nothing qualifies.
func Select(zones []model.Zone) (float64, int) {
	selected := model.Unknown
	index := -1

	for i := range zones {
		z := &zones[i]
		if !z.Active() || !z.Controllable() {
			continue
		}
		if z.Temperature >= z.TemperatureTarget {
			continue
		}
		if index == -1 || z.Temperature < selected {
			selected = z.Temperature
			index = i
		}
	}
	if index != -1 {
		return selected, index
	}

	for i := range zones {
		if !zones[i].Active() {
			continue
		}
		if model.IsKnown(zones[i].Temperature) {
			return zones[i].Temperature, i
		}
		break
	}
	return model.Unknown, -1
}

// Update stores the rounded selection in state.MainTemperature and reports whether it
// changed. With nothing to select the stored value is left alone.
func Update(state *model.ControlState, zones []model.Zone) bool {
	raw, index := Select(zones)
	if index == -1 {
		return false
	}

	rounded := math.Round(raw)
	if model.IsKnown(state.MainTemperature) && state.MainTemperature == rounded {
		return false
	}

	log.Info().
		Float64("from", state.MainTemperature).
		Float64("to", rounded).
		Str("zone", zones[index].Name).
		Msg("Main temperature changed")

	state.MainTemperature = rounded
	return true
}
