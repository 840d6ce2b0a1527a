// Package controlloop runs the controller on a single goroutine. Sensor ingest and
// publishing, heater and valve evaluation, and the keepalive each run on their own
// cadence; commands are applied between passes.
package controlloop

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/command"
	"github.com/thatsimonsguy/zone-heater/internal/controllers/heatercontroller"
	"github.com/thatsimonsguy/zone-heater/internal/controllers/valvecontroller"
	"github.com/thatsimonsguy/zone-heater/internal/datadog"
	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
	"github.com/thatsimonsguy/zone-heater/internal/sensor"
	"github.com/thatsimonsguy/zone-heater/internal/telemetry"
	"github.com/thatsimonsguy/zone-heater/internal/temperature"
	"github.com/thatsimonsguy/zone-heater/internal/valve"
	"github.com/thatsimonsguy/zone-heater/internal/zones"
)

const (
	inboxSize = 16

	// DefaultPublishBudget bounds how long one tick may wait on the broker.
	DefaultPublishBudget = 2 * time.Second
)

type Cadence struct {
	Telemetry time.Duration
	Control   time.Duration
	Keepalive time.Duration
}

func DefaultCadence() Cadence {
	return Cadence{
		Telemetry: 10 * time.Second,
		Control:   5 * time.Second,
		Keepalive: 30 * time.Second,
	}
}

// Transport carries outbound state to the supervisor. Both calls must return once ctx
// is done.
type Transport interface {
	Publish(ctx context.Context, path, value string) error
	Keepalive(ctx context.Context) error
}

// Valves moves zone valves and reports where they are.
type Valves interface {
	SetOpening(valveID, percent int) error
	Position(valveID int) (int, bool)
	Done() <-chan valve.Completion
}

// Recorder journals history. Calls must not block.
type Recorder interface {
	RecordReadings(at time.Time, zones []model.Zone)
	RecordHeater(at time.Time, on bool, source string, mainTemp float64)
	RecordCommand(at time.Time, topic, value, outcome string)
}

type Deps struct {
	Registry   *zones.Registry
	Source     sensor.Source
	Heater     gpio.Heater
	Valves     Valves
	Transport  Transport
	Firmware   command.FirmwareUpdater
	Enumerator command.Enumerator
	Recorder   Recorder
	Hysteresis model.Hysteresis
	Cadence    Cadence

	// PublishBudget is shared by every publish in one tick. Zero means
	// DefaultPublishBudget.
	PublishBudget time.Duration
}

type Loop struct {
	registry  *zones.Registry
	source    sensor.Source
	heater    gpio.Heater
	valves    Valves
	transport Transport
	recorder  Recorder
	cadence   Cadence
	budget    time.Duration

	state      model.ControlState
	publisher  *telemetry.Publisher
	heaterCtl  *heatercontroller.Controller
	valveCtl   *valvecontroller.Controller
	dispatcher *command.Dispatcher

	started       bool
	lastTelemetry time.Time
	lastControl   time.Time
	lastKeepalive time.Time

	inbox chan command.Event

	mu     sync.RWMutex
	status Status
}

func New(d Deps) *Loop {
	if d.Cadence == (Cadence{}) {
		d.Cadence = DefaultCadence()
	}
	if d.PublishBudget <= 0 {
		d.PublishBudget = DefaultPublishBudget
	}
	l := &Loop{
		registry:  d.Registry,
		source:    d.Source,
		heater:    d.Heater,
		valves:    d.Valves,
		transport: d.Transport,
		recorder:  d.Recorder,
		cadence:   d.Cadence,
		budget:    d.PublishBudget,
		state:     model.NewControlState(),
		publisher: telemetry.NewPublisher(d.Transport),
		heaterCtl: heatercontroller.New(d.Heater, d.Hysteresis),
		valveCtl:  valvecontroller.New(d.Valves, d.Hysteresis),
		inbox:     make(chan command.Event, inboxSize),
	}
	l.dispatcher = &command.Dispatcher{
		Registry:   d.Registry,
		State:      &l.state,
		Heater:     d.Heater,
		Firmware:   d.Firmware,
		Enumerator: d.Enumerator,
	}
	l.snapshot(time.Time{})
	return l
}

// Boot announces the starting modes. Call once before the first Tick. Announcements
// that cannot be sent are retried on each telemetry pass.
func (l *Loop) Boot() {
	ctx, cancel := context.WithTimeout(context.Background(), l.budget)
	defer cancel()

	l.publisher.PublishModes(ctx, l.state)
	if l.publisher.ModesPending() {
		log.Warn().Msg("Boot modes not announced yet, will retry next cycle")
	}
	log.Info().
		Bool("automation", l.state.AutomationActive).
		Str("valve_mode", l.state.ValveMode.String()).
		Int("zones", len(l.registry.Names())).
		Msg("Control loop booted")
}

// Tick runs every pass whose cadence has elapsed. The first Tick runs all of them.
func (l *Loop) Tick(now time.Time) {
	first := !l.started
	l.started = true

	ctx, cancel := context.WithTimeout(context.Background(), l.budget)
	defer cancel()

	if first || now.Sub(l.lastTelemetry) >= l.cadence.Telemetry {
		l.lastTelemetry = now
		l.telemetryPass(ctx, now)
	}
	if first || now.Sub(l.lastControl) >= l.cadence.Control {
		l.lastControl = now
		l.controlPass(now)
	}
	if first || now.Sub(l.lastKeepalive) >= l.cadence.Keepalive {
		l.lastKeepalive = now
		if err := l.transport.Keepalive(ctx); err != nil {
			log.Warn().Err(err).Msg("Keepalive failed")
		}
	}

	l.snapshot(now)
}

func (l *Loop) telemetryPass(ctx context.Context, now time.Time) {
	l.registry.Ingest(l.source.Latest())
	zs := l.registry.Zones()
	temperature.Update(&l.state, zs)

	var heaterOn *bool
	if on, err := l.heater.Status(); err != nil {
		log.Warn().Err(err).Msg("Could not read heater status")
	} else {
		l.state.HeaterEnabled = on
		heaterOn = &on
	}

	sent := l.publisher.FlushModes(ctx, l.state)
	sent += l.publisher.Publish(ctx, telemetry.Snapshot{
		Zones:           zs,
		MainTemperature: l.state.MainTemperature,
		Heater:          heaterOn,
		Valves:          l.valves,
	})

	for _, z := range zs {
		if !z.Active() {
			continue
		}
		if model.IsKnown(z.Temperature) {
			datadog.Gauge("zone.temperature", z.Temperature, "zone:"+z.Name)
		}
		if model.IsKnown(z.Humidity) {
			datadog.Gauge("zone.humidity", z.Humidity, "zone:"+z.Name)
		}
		datadog.Gauge("zone.target", z.TemperatureTarget, "zone:"+z.Name)
	}
	if model.IsKnown(l.state.MainTemperature) {
		datadog.Gauge("main_temperature", l.state.MainTemperature)
	}

	if l.recorder != nil {
		l.recorder.RecordReadings(now, zs)
	}

	log.Debug().Int("published", sent).Float64("main_temp", l.state.MainTemperature).Msg("Telemetry pass")
}

func (l *Loop) controlPass(now time.Time) {
	zs := l.registry.Zones()

	if !l.state.AutomationActive {
		if on, err := l.heater.Status(); err == nil {
			l.state.HeaterEnabled = on
		}
	}

	d, err := l.heaterCtl.Run(&l.state, zs)
	if err != nil {
		log.Error().Err(err).Msg("Heater evaluation failed")
	}
	if d != heatercontroller.Hold {
		datadog.Incr("heater.transition", "decision:"+d.String())
		if l.recorder != nil {
			l.recorder.RecordHeater(now, l.state.HeaterEnabled, "automation", l.state.MainTemperature)
		}
	}
	datadog.Gauge("heater.on", boolGauge(l.state.HeaterEnabled))

	for _, m := range l.valveCtl.Run(&l.state, zs) {
		datadog.Gauge("valve.target", float64(m.Opening), "zone:"+m.Zone)
	}
}

// HandleCommand applies one inbound command.
func (l *Loop) HandleCommand(ev command.Event, now time.Time) {
	wasOn := l.state.HeaterEnabled
	res, err := l.dispatcher.Dispatch(ev)

	outcome := "ok"
	switch {
	case errors.Is(err, command.ErrInvalidInput):
		outcome = "invalid"
		datadog.Incr("command.invalid", "topic:"+ev.Topic)
		log.Warn().Err(err).Str("topic", ev.Topic).Msg("Rejected command")
	case err != nil:
		outcome = "error"
		log.Error().Err(err).Str("topic", ev.Topic).Msg("Command failed")
	case res.Action == command.ActionIgnored:
		outcome = "ignored"
	}

	switch res.Action {
	case command.ActionSensorRequest:
		ctx, cancel := context.WithTimeout(context.Background(), l.budget)
		perr := l.transport.Publish(ctx, telemetry.PathSensorResponse, sensor.FormatInfo(res.Sensors))
		cancel()
		if perr != nil {
			log.Warn().Err(perr).Msg("Failed to publish sensor enumeration")
		}
	case command.ActionToggle:
		if err == nil && l.state.HeaterEnabled != wasOn && l.recorder != nil {
			l.recorder.RecordHeater(now, l.state.HeaterEnabled, "toggle", l.state.MainTemperature)
		}
	}

	if l.recorder != nil && res.Action != command.ActionIgnored {
		l.recorder.RecordCommand(now, ev.Topic, ev.Value.String(), outcome)
	}
	l.snapshot(now)
}

// Submit queues a command from outside the loop goroutine. It reports false when the
// queue is full.
func (l *Loop) Submit(ev command.Event) bool {
	select {
	case l.inbox <- ev:
		return true
	default:
		return false
	}
}

func (l *Loop) handleCompletion(c valve.Completion) {
	if c.Err != nil {
		log.Warn().Err(c.Err).Int("valve", c.ValveID).Msg("Valve move aborted")
		return
	}
	datadog.Gauge("valve.position", float64(c.Opening), "valve:"+strconv.Itoa(c.ValveID))
	log.Debug().Int("valve", c.ValveID).Int("opening", c.Opening).Msg("Valve move complete")
}

// Run boots the loop and serves ticks, commands and valve completions until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context, commands <-chan command.Event, ticks <-chan time.Time) {
	l.Boot()
	l.Tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return
		case ev := <-commands:
			l.HandleCommand(ev, time.Now())
		case ev := <-l.inbox:
			l.HandleCommand(ev, time.Now())
		case c := <-l.valves.Done():
			l.handleCompletion(c)
		case now := <-ticks:
			l.Tick(now)
		}
	}
}

// State returns a copy of the control state. Only call it from the loop goroutine or
// after Run has returned.
func (l *Loop) State() model.ControlState {
	return l.state
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
