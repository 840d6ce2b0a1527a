// Package command applies supervisor commands to the control state. Each inbound event
// is matched against a closed set of topics; the first match wins and anything else is
// ignored.
package command

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
	"github.com/thatsimonsguy/zone-heater/internal/zones"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	TopicTargetSuffix   = "/target_temperature"
	TopicToggle         = "toggle"
	TopicAutomation     = "heater_automation_mode"
	TopicValveMode      = "valve_mode"
	TopicSensorRequest  = "sensor_ids_request"
	TopicFirmwareUpdate = "firmware_update"
)

type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindText
)

// Value is a decoded payload: a number, a string, or nothing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func Text(s string) Value    { return Value{Kind: KindText, Str: s} }

// Float returns the numeric value. A text payload holding a number is accepted.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0)
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// flag reads a 0/1 switch value.
func (v Value) flag() (bool, bool) {
	f, ok := v.Float()
	if !ok {
		return false, false
	}
	switch f {
	case 1:
		return true, true
	case 0:
		return false, true
	}
	return false, false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		return v.Str
	}
	return ""
}

// Event is one inbound command with the transport prefix already stripped.
type Event struct {
	Topic string
	Value Value
}

// Action names what a dispatched event did.
type Action string

const (
	ActionIgnored        Action = "ignored"
	ActionTarget         Action = "target_temperature"
	ActionToggle         Action = "toggle"
	ActionAutomation     Action = "automation"
	ActionValveMode      Action = "valve_mode"
	ActionSensorRequest  Action = "sensor_request"
	ActionFirmwareUpdate Action = "firmware_update"
)

// Result describes the outcome of a dispatched event.
type Result struct {
	Action Action
	Zone   string

	// Sensors is filled for a sensor request; the caller publishes it.
	Sensors []model.SensorInfo
}

// FirmwareUpdater accepts a firmware image location. Request must not block on the
// download.
type FirmwareUpdater interface {
	Request(url string) error
}

// Enumerator lists attached sensors.
type Enumerator interface {
	Enumerate() []model.SensorInfo
}

type Dispatcher struct {
	Registry   *zones.Registry
	State      *model.ControlState
	Heater     gpio.Heater
	Firmware   FirmwareUpdater
	Enumerator Enumerator
}

// Dispatch applies one event. Invalid payloads return an error wrapping ErrInvalidInput
// and leave state untouched.
func (d *Dispatcher) Dispatch(ev Event) (Result, error) {
	topic := strings.Trim(ev.Topic, "/")

	switch {
	case strings.HasSuffix(topic, TopicTargetSuffix):
		return d.setTarget(strings.TrimSuffix(topic, TopicTargetSuffix), ev.Value)
	case topic == TopicToggle:
		return d.toggle(ev.Value)
	case topic == TopicAutomation:
		return d.setAutomation(ev.Value)
	case topic == TopicValveMode:
		return d.setValveMode(ev.Value)
	case topic == TopicSensorRequest:
		return d.sensorRequest()
	case topic == TopicFirmwareUpdate:
		return d.firmwareUpdate(ev.Value)
	}

	log.Debug().Str("topic", ev.Topic).Msg("Ignoring unrecognised command")
	return Result{Action: ActionIgnored}, nil
}

func invalid(topic string, v Value, reason string) error {
	return fmt.Errorf("%w: %s=%q: %s", ErrInvalidInput, topic, v.String(), reason)
}

func (d *Dispatcher) setTarget(zone string, v Value) (Result, error) {
	if _, ok := d.Registry.Zone(zone); !ok || zone == "" {
		log.Debug().Str("zone", zone).Msg("Ignoring target for unknown zone")
		return Result{Action: ActionIgnored}, nil
	}

	target, ok := v.Float()
	if !ok {
		return Result{Action: ActionTarget, Zone: zone}, invalid(zone+TopicTargetSuffix, v, "not a number")
	}
	if err := d.Registry.SetTarget(zone, target); err != nil {
		return Result{Action: ActionTarget, Zone: zone}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	log.Info().Str("zone", zone).Float64("target", target).Msg("Zone target updated")
	return Result{Action: ActionTarget, Zone: zone}, nil
}

// toggle drives the heater directly. It works whether or not automation is active.
func (d *Dispatcher) toggle(v Value) (Result, error) {
	on, ok := v.flag()
	if !ok {
		log.Debug().Str("value", v.String()).Msg("Ignoring toggle value")
		return Result{Action: ActionIgnored}, nil
	}

	changed, err := gpio.Ensure(d.Heater, on)
	if err != nil {
		return Result{Action: ActionToggle}, fmt.Errorf("toggle heater: %w", err)
	}
	d.State.HeaterEnabled = on

	log.Info().Bool("on", on).Bool("changed", changed).Msg("Manual heater toggle")
	return Result{Action: ActionToggle}, nil
}

func (d *Dispatcher) setAutomation(v Value) (Result, error) {
	on, ok := v.flag()
	if !ok {
		return Result{Action: ActionAutomation}, invalid(TopicAutomation, v, "expected 0 or 1")
	}
	d.State.AutomationActive = on

	log.Info().Bool("active", on).Msg("Heater automation updated")
	return Result{Action: ActionAutomation}, nil
}

func (d *Dispatcher) setValveMode(v Value) (Result, error) {
	proportional, ok := v.flag()
	if !ok {
		return Result{Action: ActionValveMode}, invalid(TopicValveMode, v, "expected 0 or 1")
	}
	d.State.ValveMode = model.ValveModeOnOff
	if proportional {
		d.State.ValveMode = model.ValveModeProportional
	}

	log.Info().Str("mode", d.State.ValveMode.String()).Msg("Valve mode updated")
	return Result{Action: ActionValveMode}, nil
}

func (d *Dispatcher) sensorRequest() (Result, error) {
	res := Result{Action: ActionSensorRequest}
	if d.Enumerator != nil {
		res.Sensors = d.Enumerator.Enumerate()
	}
	log.Info().Int("sensors", len(res.Sensors)).Msg("Sensor enumeration requested")
	return res, nil
}

func (d *Dispatcher) firmwareUpdate(v Value) (Result, error) {
	if v.Kind != KindText {
		return Result{Action: ActionFirmwareUpdate}, invalid(TopicFirmwareUpdate, v, "missing url")
	}
	raw := strings.TrimSpace(v.Str)
	if err := ValidateURL(raw); err != nil {
		return Result{Action: ActionFirmwareUpdate}, invalid(TopicFirmwareUpdate, v, err.Error())
	}
	if d.Firmware == nil {
		return Result{Action: ActionFirmwareUpdate}, errors.New("firmware updates not configured")
	}
	if err := d.Firmware.Request(raw); err != nil {
		return Result{Action: ActionFirmwareUpdate}, fmt.Errorf("request firmware update: %w", err)
	}

	log.Info().Str("url", raw).Msg("Firmware update requested")
	return Result{Action: ActionFirmwareUpdate}, nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
