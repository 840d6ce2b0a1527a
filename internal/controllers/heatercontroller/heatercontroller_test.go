package heatercontroller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
)

var testHysteresis = model.Hysteresis{Under: 2, Over: 1}

func zone(name string, temp, target float64) model.Zone {
	z := model.NewZone(name, target, 0)
	z.Temperature = temp
	return z
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		zones    []model.Zone
		heaterOn bool
		want     Decision
	}{
		{
			name:     "one cold zone turns heater on",
			zones:    []model.Zone{zone("cabin", 10, 15)},
			heaterOn: false,
			want:     TurnOn,
		},
		{
			name:     "inside band while off holds",
			zones:    []model.Zone{zone("cabin", 14, 15)},
			heaterOn: false,
			want:     Hold,
		},
		{
			name:     "exactly at lower bound holds",
			zones:    []model.Zone{zone("cabin", 13, 15)},
			heaterOn: false,
			want:     Hold,
		},
		{
			name:     "any needy zone is enough",
			zones:    []model.Zone{zone("cabin", 20, 15), zone("bath", 5, 15)},
			heaterOn: false,
			want:     TurnOn,
		},
		{
			name:     "all warm turns heater off",
			zones:    []model.Zone{zone("cabin", 17, 15), zone("bath", 16, 15)},
			heaterOn: true,
			want:     TurnOff,
		},
		{
			name:     "one zone still below upper keeps heater on",
			zones:    []model.Zone{zone("cabin", 17, 15), zone("bath", 15.9, 15)},
			heaterOn: true,
			want:     Hold,
		},
		{
			name:     "unknown temperature excluded",
			zones:    []model.Zone{zone("cabin", model.Unknown, 15), zone("bath", 17, 15)},
			heaterOn: true,
			want:     TurnOff,
		},
		{
			name:     "unknown zone never triggers on",
			zones:    []model.Zone{zone("cabin", model.Unknown, 15)},
			heaterOn: false,
			want:     Hold,
		},
		{
			name:     "no data turns heater off",
			zones:    []model.Zone{zone("cabin", model.Unknown, 15)},
			heaterOn: true,
			want:     TurnOff,
		},
		{
			name:     "inactive slot ignored",
			zones:    []model.Zone{zone("", 0, 15), zone("bath", 17, 15)},
			heaterOn: true,
			want:     TurnOff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.zones, tt.heaterOn, testHysteresis))
		})
	}
}

func TestRun_OnThenOff(t *testing.T) {
	h := gpio.NewFakeHeater(false)
	c := New(h, testHysteresis)
	state := model.NewControlState()
	state.AutomationActive = true

	zones := []model.Zone{zone("a", 10, 15)}
	d, err := c.Run(&state, zones)
	require.NoError(t, err)
	assert.Equal(t, TurnOn, d)
	assert.True(t, state.HeaterEnabled)

	zones[0].Temperature = 17
	d, err = c.Run(&state, zones)
	require.NoError(t, err)
	assert.Equal(t, TurnOff, d)
	assert.False(t, state.HeaterEnabled)
	assert.Equal(t, []bool{true, false}, h.Commands)
}

func TestRun_AlreadyOnIsNoop(t *testing.T) {
	h := gpio.NewFakeHeater(true)
	c := New(h, testHysteresis)
	state := model.NewControlState()
	state.AutomationActive = true

	d, err := c.Run(&state, []model.Zone{zone("a", 10, 15)})
	require.NoError(t, err)
	assert.Equal(t, Hold, d)
	assert.Empty(t, h.Commands)
	assert.True(t, state.HeaterEnabled)
}

func TestRun_AutomationInactiveLeavesHeaterAlone(t *testing.T) {
	h := gpio.NewFakeHeater(true)
	h.StatusError = errors.New("should not be read")
	c := New(h, testHysteresis)
	state := model.NewControlState()
	state.HeaterEnabled = true

	d, err := c.Run(&state, []model.Zone{zone("a", 30, 15)})
	require.NoError(t, err)
	assert.Equal(t, Hold, d)
	assert.Empty(t, h.Commands)
	assert.True(t, state.HeaterEnabled)
}

func TestRun_StatusError(t *testing.T) {
	h := gpio.NewFakeHeater(false)
	h.StatusError = errors.New("gpio gone")
	c := New(h, testHysteresis)
	state := model.NewControlState()
	state.AutomationActive = true

	_, err := c.Run(&state, []model.Zone{zone("a", 10, 15)})
	assert.Error(t, err)
	assert.Empty(t, h.Commands)
}

func TestRun_SetErrorKeepsState(t *testing.T) {
	h := gpio.NewFakeHeater(false)
	h.SetError = errors.New("relay stuck")
	c := New(h, testHysteresis)
	state := model.NewControlState()
	state.AutomationActive = true

	_, err := c.Run(&state, []model.Zone{zone("a", 10, 15)})
	assert.Error(t, err)
	assert.False(t, state.HeaterEnabled)
}

// Sweeps temperatures across the band and checks that the heater never turns off while
// some zone is below its upper bound.
func TestEvaluate_NeverOffWhileAnyZoneBelowUpper(t *testing.T) {
	for cold := 10.0; cold <= 20; cold += 0.5 {
		zones := []model.Zone{zone("warm", 25, 15), zone("cold", cold, 15)}
		d := Evaluate(zones, true, testHysteresis)
		if cold < testHysteresis.Upper(15) {
			assert.Equal(t, Hold, d, "cold=%v", cold)
		} else {
			assert.Equal(t, TurnOff, d, "cold=%v", cold)
		}
	}
}
