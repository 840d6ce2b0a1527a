// Package telemetry publishes zone and heater state to the supervisor, emitting a signal
// only when its value has changed since it was last sent successfully.
package telemetry

import (
	"context"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

const (
	PathMainTemperature = "main_temperature"
	PathStatus          = "status"
	PathAutomation      = "heater_automation_mode"
	PathValveMode       = "valve_mode"
	PathSensorResponse  = "sensor_ids_response"

	// mainTemperatureDelta suppresses floating noise on the main temperature.
	mainTemperatureDelta = 0.01
)

// Emitter sends one (path, value) pair. Paths are relative to the installation base.
// Publish must return once ctx is done.
type Emitter interface {
	Publish(ctx context.Context, path, value string) error
}

// Positions reports the last reached opening of a valve.
type Positions interface {
	Position(valveID int) (int, bool)
}

type zoneCache struct {
	temperature float64
	humidity    float64
	target      float64
	pressure    float64
	voc         float64
	valve       int
}

func newZoneCache() *zoneCache {
	return &zoneCache{
		temperature: model.Unknown,
		humidity:    model.Unknown,
		target:      model.Unknown,
		pressure:    model.Unknown,
		voc:         model.Unknown,
		valve:       -1,
	}
}

// Publisher holds what was last sent. It is not safe for concurrent use.
type Publisher struct {
	emitter Emitter
	zones   map[string]*zoneCache
	main    float64
	heater  *bool

	// modes still owed to the supervisor since boot
	automationPending bool
	valveModePending  bool
}

func NewPublisher(e Emitter) *Publisher {
	return &Publisher{
		emitter: e,
		zones:   map[string]*zoneCache{},
		main:    model.Unknown,
	}
}

// Snapshot is one pass worth of publishable state.
type Snapshot struct {
	Zones           []model.Zone
	MainTemperature float64

	// Heater is nil when the status line could not be read.
	Heater *bool

	Valves Positions
}

// FormatFloat renders a reading with two decimals.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Publish emits every changed signal and returns how many were sent.
func (p *Publisher) Publish(ctx context.Context, s Snapshot) int {
	sent := 0
	for _, z := range s.Zones {
		if !z.Active() {
			continue
		}
		c, ok := p.zones[z.Name]
		if !ok {
			c = newZoneCache()
			p.zones[z.Name] = c
		}

		sent += p.float(ctx, z.Name+"/temperature", z.Temperature, &c.temperature)
		sent += p.float(ctx, z.Name+"/humidity", z.Humidity, &c.humidity)
		sent += p.float(ctx, z.Name+"/target_temperature", z.TemperatureTarget, &c.target)
		sent += p.float(ctx, z.Name+"/pressure", z.Pressure, &c.pressure)
		sent += p.float(ctx, z.Name+"/voc", z.VOC, &c.voc)

		if z.HasValve() && s.Valves != nil {
			if pos, known := s.Valves.Position(z.ValveID); known && pos != c.valve {
				if p.emit(ctx, z.Name+"/valve_position", strconv.Itoa(pos)) {
					c.valve = pos
					sent++
				}
			}
		}
	}

	if model.IsKnown(s.MainTemperature) &&
		(!model.IsKnown(p.main) || math.Abs(s.MainTemperature-p.main) > mainTemperatureDelta) {
		if p.emit(ctx, PathMainTemperature, FormatFloat(s.MainTemperature)) {
			p.main = s.MainTemperature
			sent++
		}
	}

	if s.Heater != nil && (p.heater == nil || *p.heater != *s.Heater) {
		if p.emit(ctx, PathStatus, FormatBool(*s.Heater)) {
			on := *s.Heater
			p.heater = &on
			sent++
		}
	}

	return sent
}

// PublishModes announces the automation and valve modes regardless of the cache. Each
// mode is sent on its own; one that fails stays pending until FlushModes gets it out.
func (p *Publisher) PublishModes(ctx context.Context, state model.ControlState) int {
	p.automationPending = true
	p.valveModePending = true
	return p.FlushModes(ctx, state)
}

// FlushModes resends any mode announcement that has not gone out yet.
func (p *Publisher) FlushModes(ctx context.Context, state model.ControlState) int {
	sent := 0
	if p.automationPending && p.emit(ctx, PathAutomation, FormatBool(state.AutomationActive)) {
		p.automationPending = false
		sent++
	}
	if p.valveModePending && p.emit(ctx, PathValveMode, FormatBool(state.ValveMode == model.ValveModeProportional)) {
		p.valveModePending = false
		sent++
	}
	return sent
}

// ModesPending reports whether a boot announcement is still owed.
func (p *Publisher) ModesPending() bool {
	return p.automationPending || p.valveModePending
}

// Forget drops every cached value so the next pass republishes everything.
func (p *Publisher) Forget() {
	p.zones = map[string]*zoneCache{}
	p.main = model.Unknown
	p.heater = nil
}

func (p *Publisher) float(ctx context.Context, path string, v float64, cached *float64) int {
	if !model.IsKnown(v) {
		return 0
	}
	if model.IsKnown(*cached) && *cached == v {
		return 0
	}
	if !p.emit(ctx, path, FormatFloat(v)) {
		return 0
	}
	*cached = v
	return 1
}

func (p *Publisher) emit(ctx context.Context, path, value string) bool {
	if err := p.emitter.Publish(ctx, path, value); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Publish failed, will retry next cycle")
		return false
	}
	return true
}
