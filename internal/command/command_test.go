package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
	"github.com/thatsimonsguy/zone-heater/internal/zones"
)

type fakeUpdater struct {
	urls []string
	err  error
}

func (f *fakeUpdater) Request(url string) error {
	if f.err != nil {
		return f.err
	}
	f.urls = append(f.urls, url)
	return nil
}

type fakeEnumerator []model.SensorInfo

func (f fakeEnumerator) Enumerate() []model.SensorInfo { return f }

type fixture struct {
	d        *Dispatcher
	state    *model.ControlState
	heater   *gpio.FakeHeater
	registry *zones.Registry
	updater  *fakeUpdater
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg, err := zones.New([]model.Zone{
		model.NewZone("Cabin", 4, 1),
		model.NewZone("Bath", 4, 2),
	}, nil)
	require.NoError(t, err)

	state := model.NewControlState()
	heater := gpio.NewFakeHeater(false)
	updater := &fakeUpdater{}

	return fixture{
		d: &Dispatcher{
			Registry:   reg,
			State:      &state,
			Heater:     heater,
			Firmware:   updater,
			Enumerator: fakeEnumerator{{Kind: "DS18", ID: "28-aaa"}},
		},
		state:    &state,
		heater:   heater,
		registry: reg,
		updater:  updater,
	}
}

func TestDispatch_Target(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(Event{Topic: "Cabin/target_temperature", Value: Number(21.5)})
	require.NoError(t, err)
	assert.Equal(t, ActionTarget, res.Action)
	z, _ := f.registry.Zone("Cabin")
	assert.Equal(t, 21.5, z.TemperatureTarget)

	_, err = f.d.Dispatch(Event{Topic: "Bath/target_temperature", Value: Text("18")})
	require.NoError(t, err)
	z, _ = f.registry.Zone("Bath")
	assert.Equal(t, 18.0, z.TemperatureTarget)
}

func TestDispatch_TargetRejectsNonNumeric(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(Event{Topic: "Cabin/target_temperature", Value: Text("warm")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.d.Dispatch(Event{Topic: "Cabin/target_temperature", Value: Value{}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	z, _ := f.registry.Zone("Cabin")
	assert.Equal(t, 4.0, z.TemperatureTarget)
}

func TestDispatch_TargetUnknownZoneIgnored(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(Event{Topic: "Garage/target_temperature", Value: Number(20)})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, res.Action)
}

func TestDispatch_Toggle(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.state.AutomationActive)

	_, err := f.d.Dispatch(Event{Topic: "toggle", Value: Number(1)})
	require.NoError(t, err)
	assert.True(t, f.heater.On)
	assert.True(t, f.state.HeaterEnabled)

	// already on: status is read and nothing is commanded
	_, err = f.d.Dispatch(Event{Topic: "toggle", Value: Number(1)})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.heater.Commands)

	res, err := f.d.Dispatch(Event{Topic: "toggle", Value: Number(7)})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, res.Action)
	assert.True(t, f.heater.On)

	_, err = f.d.Dispatch(Event{Topic: "toggle", Value: Number(0)})
	require.NoError(t, err)
	assert.False(t, f.heater.On)
	assert.False(t, f.state.HeaterEnabled)
}

func TestDispatch_ToggleHeaterError(t *testing.T) {
	f := newFixture(t)
	f.heater.SetError = errors.New("relay stuck")

	_, err := f.d.Dispatch(Event{Topic: "toggle", Value: Number(1)})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.False(t, f.state.HeaterEnabled)
}

func TestDispatch_Automation(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(Event{Topic: "heater_automation_mode", Value: Number(1)})
	require.NoError(t, err)
	assert.True(t, f.state.AutomationActive)

	_, err = f.d.Dispatch(Event{Topic: "heater_automation_mode", Value: Number(2)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, f.state.AutomationActive)

	_, err = f.d.Dispatch(Event{Topic: "heater_automation_mode", Value: Number(0)})
	require.NoError(t, err)
	assert.False(t, f.state.AutomationActive)
}

func TestDispatch_ValveMode(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(Event{Topic: "valve_mode", Value: Number(1)})
	require.NoError(t, err)
	assert.Equal(t, model.ValveModeProportional, f.state.ValveMode)

	_, err = f.d.Dispatch(Event{Topic: "valve_mode", Value: Number(5)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, model.ValveModeProportional, f.state.ValveMode)

	_, err = f.d.Dispatch(Event{Topic: "valve_mode", Value: Number(0)})
	require.NoError(t, err)
	assert.Equal(t, model.ValveModeOnOff, f.state.ValveMode)
}

func TestDispatch_SensorRequest(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(Event{Topic: "sensor_ids_request"})
	require.NoError(t, err)
	assert.Equal(t, ActionSensorRequest, res.Action)
	assert.Equal(t, []model.SensorInfo{{Kind: "DS18", ID: "28-aaa"}}, res.Sensors)
}

func TestDispatch_FirmwareUpdate(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		wantErr bool
	}{
		{"https url", Text("https://example.com/fw.bin"), false},
		{"http url", Text("http://10.0.0.2:8080/fw.bin"), false},
		{"ftp url", Text("ftp://example.com/fw.bin"), true},
		{"no host", Text("http:///fw.bin"), true},
		{"garbage", Text("update please"), true},
		{"numeric", Number(1), true},
		{"missing", Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.d.Dispatch(Event{Topic: "firmware_update", Value: tt.value})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				assert.Empty(t, f.updater.urls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.value.Str}, f.updater.urls)
		})
	}
}

func TestDispatch_FirmwareBusy(t *testing.T) {
	f := newFixture(t)
	f.updater.err = errors.New("busy")

	_, err := f.d.Dispatch(Event{Topic: "firmware_update", Value: Text("https://example.com/fw.bin")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestDispatch_UnmatchedIgnored(t *testing.T) {
	f := newFixture(t)
	before := *f.state

	for _, topic := range []string{"reboot", "", "Cabin/humidity", "toggle/extra"} {
		res, err := f.d.Dispatch(Event{Topic: topic, Value: Number(1)})
		require.NoError(t, err)
		assert.Equal(t, ActionIgnored, res.Action, topic)
	}
	assert.Equal(t, before.AutomationActive, f.state.AutomationActive)
	assert.Equal(t, before.ValveMode, f.state.ValveMode)
	assert.Empty(t, f.heater.Commands)
}
