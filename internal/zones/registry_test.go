package zones

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

func testZones() []model.Zone {
	return []model.Zone{
		model.NewZone("Cabin", 4, 1),
		model.NewZone("Bath", 4, 2),
		model.NewZone("", model.Unknown, -1),
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name     string
		zones    []model.Zone
		mappings []Mapping
	}{
		{
			name:  "duplicate zone names",
			zones: []model.Zone{model.NewZone("Cabin", 4, 1), model.NewZone("Cabin", 5, 2)},
		},
		{
			name:     "mapping to unknown zone",
			zones:    testZones(),
			mappings: []Mapping{{Channel: 0, Zone: "Garage", Field: model.FieldTemperature}},
		},
		{
			name:     "unknown field",
			zones:    testZones(),
			mappings: []Mapping{{Channel: 0, Zone: "Cabin", Field: "wind"}},
		},
		{
			name:     "negative channel",
			zones:    testZones(),
			mappings: []Mapping{{Channel: -1, Zone: "Cabin", Field: model.FieldTemperature}},
		},
		{
			name:  "field bound twice",
			zones: testZones(),
			mappings: []Mapping{
				{Channel: 0, Zone: "Cabin", Field: model.FieldTemperature},
				{Channel: 1, Zone: "Cabin", Field: model.FieldTemperature},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.zones, tt.mappings)
			assert.Error(t, err)
		})
	}
}

func TestNew_AllowsSeveralEmptySlots(t *testing.T) {
	zs := append(testZones(), model.NewZone("", model.Unknown, -1))
	r, err := New(zs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cabin", "Bath"}, r.Names())
	assert.Len(t, r.Zones(), 4)
}

func TestIngest(t *testing.T) {
	r, err := New(testZones(), []Mapping{
		{Channel: 16, Zone: "Cabin", Field: model.FieldTemperature},
		{Channel: 8, Zone: "Cabin", Field: model.FieldTemperatureValve},
		{Channel: 17, Zone: "Cabin", Field: model.FieldHumidity},
		{Channel: 4, Zone: "Bath", Field: model.FieldTemperature},
	})
	require.NoError(t, err)

	snap := make(model.Snapshot, 20)
	for i := range snap {
		snap[i] = float64(i)
	}
	r.Ingest(snap)

	cabin, _ := r.Zone("Cabin")
	bath, _ := r.Zone("Bath")
	assert.Equal(t, 16.0, cabin.Temperature)
	assert.Equal(t, 8.0, cabin.TemperatureValve)
	assert.Equal(t, 17.0, cabin.Humidity)
	assert.True(t, math.IsNaN(cabin.Pressure), "unmapped field stays unknown")
	assert.Equal(t, 4.0, bath.Temperature)

	t.Run("unknown channel clears the field", func(t *testing.T) {
		snap[16] = model.Unknown
		r.Ingest(snap)
		cabin, _ := r.Zone("Cabin")
		assert.True(t, math.IsNaN(cabin.Temperature))
		assert.Equal(t, 17.0, cabin.Humidity)
	})

	t.Run("short snapshot reports missing channels as unknown", func(t *testing.T) {
		r.Ingest(model.Snapshot{0, 1, 2, 3, 40})
		bath, _ := r.Zone("Bath")
		cabin, _ := r.Zone("Cabin")
		assert.Equal(t, 40.0, bath.Temperature)
		assert.True(t, math.IsNaN(cabin.Humidity))
	})

	t.Run("unmapped fields keep the previous reading", func(t *testing.T) {
		r.zones[1].Humidity = 55
		r.Ingest(snap)
		bath, _ := r.Zone("Bath")
		assert.Equal(t, 55.0, bath.Humidity)
	})
}

func TestSetTarget(t *testing.T) {
	r, err := New(testZones(), nil)
	require.NoError(t, err)

	require.NoError(t, r.SetTarget("Bath", 21.5))
	bath, _ := r.Zone("Bath")
	assert.Equal(t, 21.5, bath.TemperatureTarget)

	assert.ErrorIs(t, r.SetTarget("Garage", 20), ErrUnknownZone)
	assert.ErrorIs(t, r.SetTarget("", 20), ErrUnknownZone)
	assert.Error(t, r.SetTarget("Bath", math.NaN()))

	bath, _ = r.Zone("Bath")
	assert.Equal(t, 21.5, bath.TemperatureTarget)
}

func TestMapped(t *testing.T) {
	r, err := New(testZones(), []Mapping{{Channel: 3, Zone: "Bath", Field: model.FieldTemperature}})
	require.NoError(t, err)
	assert.True(t, r.Mapped("Bath", model.FieldTemperature))
	assert.False(t, r.Mapped("Cabin", model.FieldTemperature))
	assert.False(t, r.Mapped("Bath", model.FieldVOC))
}
