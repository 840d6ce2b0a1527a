package controlloop

import (
	"time"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

type ZoneStatus struct {
	Name          string   `json:"name"`
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	Pressure      *float64 `json:"pressure"`
	VOC           *float64 `json:"voc"`
	Target        *float64 `json:"target_temperature"`
	ValveID       int      `json:"valve_id,omitempty"`
	ValvePosition *int     `json:"valve_position,omitempty"`
}

// Status is a read-only view of the loop for other goroutines.
type Status struct {
	UpdatedAt        time.Time    `json:"updated_at"`
	HeaterOn         bool         `json:"heater_on"`
	AutomationActive bool         `json:"automation_active"`
	ValveMode        string       `json:"valve_mode"`
	MainTemperature  *float64     `json:"main_temperature"`
	Zones            []ZoneStatus `json:"zones"`
}

func known(v float64) *float64 {
	if !model.IsKnown(v) {
		return nil
	}
	return &v
}

func (l *Loop) snapshot(now time.Time) {
	s := Status{
		UpdatedAt:        now,
		HeaterOn:         l.state.HeaterEnabled,
		AutomationActive: l.state.AutomationActive,
		ValveMode:        l.state.ValveMode.String(),
		MainTemperature:  known(l.state.MainTemperature),
	}
	for _, z := range l.registry.Zones() {
		if !z.Active() {
			continue
		}
		zs := ZoneStatus{
			Name:        z.Name,
			Temperature: known(z.Temperature),
			Humidity:    known(z.Humidity),
			Pressure:    known(z.Pressure),
			VOC:         known(z.VOC),
			Target:      known(z.TemperatureTarget),
			ValveID:     z.ValveID,
		}
		if z.HasValve() && l.valves != nil {
			if pos, ok := l.valves.Position(z.ValveID); ok {
				zs.ValvePosition = &pos
			}
		}
		s.Zones = append(s.Zones, zs)
	}

	l.mu.Lock()
	l.status = s
	l.mu.Unlock()
}

// Status returns the view taken after the most recent pass or command. Safe for
// concurrent use.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.status
}
