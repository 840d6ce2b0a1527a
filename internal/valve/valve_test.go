package valve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActuator(t *testing.T, driver Driver) *Actuator {
	t.Helper()
	a, err := New(driver, []Servo{{ValveID: 1, Channel: 4}, {ValveID: 2, Channel: 5}}, Config{StepDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func waitCompletion(t *testing.T, a *Actuator) Completion {
	t.Helper()
	select {
	case c := <-a.Done():
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for valve completion")
	}
	return Completion{}
}

func TestNew_RejectsBadServos(t *testing.T) {
	_, err := New(NewFakeDriver(), []Servo{{ValveID: 0, Channel: 1}}, Config{})
	assert.Error(t, err)

	_, err = New(NewFakeDriver(), []Servo{{ValveID: 1, Channel: 1}, {ValveID: 1, Channel: 2}}, Config{})
	assert.Error(t, err)
}

func TestAngle(t *testing.T) {
	a, err := New(NewFakeDriver(), nil, Config{})
	require.NoError(t, err)

	assert.Equal(t, 0, a.Angle(0))
	assert.Equal(t, 45, a.Angle(50))
	assert.Equal(t, 90, a.Angle(100))
	assert.Equal(t, 18, a.Angle(20))
}

func TestSetOpening_RampsOneDegreeAtATime(t *testing.T) {
	d := NewFakeDriver()
	a := newTestActuator(t, d)

	require.NoError(t, a.SetOpening(1, 10))
	c := waitCompletion(t, a)
	require.NoError(t, c.Err)
	assert.Equal(t, 1, c.ValveID)
	assert.Equal(t, 10, c.Opening)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, d.Writes(4))
	pos, ok := a.Position(1)
	assert.True(t, ok)
	assert.Equal(t, 10, pos)
	assert.False(t, a.Moving())

	require.NoError(t, a.SetOpening(1, 5))
	waitCompletion(t, a)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 8, 7, 6, 5, 4}, d.Writes(4))
}

func TestSetOpening_ReturnsBeforeRampFinishes(t *testing.T) {
	a, err := New(NewFakeDriver(), []Servo{{ValveID: 1, Channel: 0}}, Config{StepDelay: 20 * time.Millisecond})
	require.NoError(t, err)
	defer a.Close()

	start := time.Now()
	require.NoError(t, a.SetOpening(1, 100))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.True(t, a.Moving())

	pos, _ := a.Position(1)
	assert.Equal(t, 0, pos)
}

func TestSetOpening_SameTargetIsNoop(t *testing.T) {
	d := NewFakeDriver()
	a := newTestActuator(t, d)

	require.NoError(t, a.SetOpening(2, 0))
	assert.False(t, a.Moving())
	assert.Empty(t, d.Writes(5))
}

func TestSetOpening_Unavailable(t *testing.T) {
	a := newTestActuator(t, NewFakeDriver())

	err := a.SetOpening(9, 50)
	assert.ErrorIs(t, err, ErrValveUnavailable)

	_, ok := a.Position(9)
	assert.False(t, ok)

	assert.Error(t, a.SetOpening(1, 101))
}

func TestSetOpening_DriverErrorReported(t *testing.T) {
	d := NewFakeDriver()
	boom := errors.New("pwm gone")
	d.SetErr(boom)
	a := newTestActuator(t, d)

	require.NoError(t, a.SetOpening(1, 50))
	c := waitCompletion(t, a)
	assert.ErrorIs(t, c.Err, boom)

	pos, _ := a.Position(1)
	assert.Equal(t, 0, pos)
	assert.False(t, a.Moving())
}

func TestHome(t *testing.T) {
	d := NewFakeDriver()
	a := newTestActuator(t, d)

	require.NoError(t, a.Home())
	assert.Equal(t, []int{0}, d.Writes(4))
	assert.Equal(t, []int{0}, d.Writes(5))
}

func TestPWM_WriteAngle(t *testing.T) {
	chip := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(chip, "pwm3"), 0o755))

	p := NewPWM(chip)
	require.NoError(t, p.WriteAngle(3, 90))

	read := func(attr string) string {
		b, err := os.ReadFile(filepath.Join(chip, "pwm3", attr))
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "20000000", read("period"))
	assert.Equal(t, "1", read("enable"))
	assert.Equal(t, "1500000", read("duty_cycle"))
}

func TestPWM_PulseFor(t *testing.T) {
	p := NewPWM("")
	assert.Equal(t, 500*time.Microsecond, p.PulseFor(0))
	assert.Equal(t, 2500*time.Microsecond, p.PulseFor(180))
	assert.Equal(t, 2500*time.Microsecond, p.PulseFor(500))
}
