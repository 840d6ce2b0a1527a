package model

import (
	"fmt"
	"math"
)

// Unknown marks a reading or setpoint that has no value.
var Unknown = math.NaN()

func IsKnown(v float64) bool {
	return !math.IsNaN(v)
}

type ValveMode int

const (
	ValveModeOnOff ValveMode = iota
	ValveModeProportional
)

func (m ValveMode) String() string {
	switch m {
	case ValveModeProportional:
		return "proportional"
	default:
		return "on_off"
	}
}

// Field names a zone reading that a sensor channel can feed.
type Field string

const (
	FieldTemperature      Field = "temperature"
	FieldHumidity         Field = "humidity"
	FieldPressure         Field = "pressure"
	FieldVOC              Field = "voc"
	FieldTemperatureValve Field = "temperature_valve"
)

func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldTemperature, FieldHumidity, FieldPressure, FieldVOC, FieldTemperatureValve:
		return f, nil
	}
	return "", fmt.Errorf("unknown zone field %q", s)
}

type Zone struct {
	Name              string
	Temperature       float64
	Humidity          float64
	Pressure          float64
	VOC               float64
	TemperatureTarget float64
	TemperatureValve  float64
	ValveID           int
}

// NewZone returns a zone with every reading unknown.
func NewZone(name string, target float64, valveID int) Zone {
	return Zone{
		Name:              name,
		Temperature:       Unknown,
		Humidity:          Unknown,
		Pressure:          Unknown,
		VOC:               Unknown,
		TemperatureTarget: target,
		TemperatureValve:  Unknown,
		ValveID:           valveID,
	}
}

// Active reports whether the slot holds a configured zone.
func (z *Zone) Active() bool {
	return z.Name != ""
}

func (z *Zone) HasValve() bool {
	return z.ValveID > 0
}

// Controllable reports whether both temperature and target are known.
func (z *Zone) Controllable() bool {
	return IsKnown(z.Temperature) && IsKnown(z.TemperatureTarget)
}

func (z *Zone) Set(f Field, v float64) {
	switch f {
	case FieldTemperature:
		z.Temperature = v
	case FieldHumidity:
		z.Humidity = v
	case FieldPressure:
		z.Pressure = v
	case FieldVOC:
		z.VOC = v
	case FieldTemperatureValve:
		z.TemperatureValve = v
	}
}

type ControlState struct {
	HeaterEnabled    bool
	AutomationActive bool
	ValveMode        ValveMode
	MainTemperature  float64
}

// NewControlState returns the boot state: automation off, on/off valves.
func NewControlState() ControlState {
	return ControlState{
		ValveMode:       ValveModeOnOff,
		MainTemperature: Unknown,
	}
}

// Hysteresis is the dead band around a zone target.
type Hysteresis struct {
	Under float64 `json:"under"`
	Over  float64 `json:"over"`
}

func (h Hysteresis) Lower(target float64) float64 {
	return target - h.Under
}

func (h Hysteresis) Upper(target float64) float64 {
	return target + h.Over
}

// Snapshot is one reading per sensor channel, NaN where unknown.
type Snapshot []float64

func (s Snapshot) At(channel int) float64 {
	if channel < 0 || channel >= len(s) {
		return Unknown
	}
	return s[channel]
}

type SensorInfo struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}
