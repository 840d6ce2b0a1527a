package temperature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

func zone(name string, temp, target float64) model.Zone {
	z := model.NewZone(name, target, 0)
	z.Temperature = temp
	return z
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		zones     []model.Zone
		wantTemp  float64
		wantIndex int
	}{
		{
			name:      "coldest zone below target wins",
			zones:     []model.Zone{zone("a", 18, 20), zone("b", 12, 15), zone("c", 30, 20)},
			wantTemp:  12,
			wantIndex: 1,
		},
		{
			name:      "first zone wins ties",
			zones:     []model.Zone{zone("a", 10, 20), zone("b", 10, 15)},
			wantTemp:  10,
			wantIndex: 0,
		},
		{
			name:      "zones at target are not below it",
			zones:     []model.Zone{zone("a", 25, 20), zone("b", 15, 15), zone("c", 14, 15)},
			wantTemp:  14,
			wantIndex: 2,
		},
		{
			name:      "falls back to first active zone",
			zones:     []model.Zone{zone("", 1, 20), zone("a", 25, 20), zone("b", 22, 20)},
			wantTemp:  25,
			wantIndex: 1,
		},
		{
			name:      "unknown target excludes the zone from selection",
			zones:     []model.Zone{zone("a", 25, 20), zone("b", 5, model.Unknown)},
			wantTemp:  25,
			wantIndex: 0,
		},
		{
			name:      "inactive slot below target is skipped",
			zones:     []model.Zone{zone("a", 25, 20), zone("", 5, 20)},
			wantTemp:  25,
			wantIndex: 0,
		},
		{
			name:      "nothing known",
			zones:     []model.Zone{zone("a", model.Unknown, 20), zone("b", 25, 20)},
			wantTemp:  model.Unknown,
			wantIndex: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, index := Select(tt.zones)
			assert.Equal(t, tt.wantIndex, index)
			if math.IsNaN(tt.wantTemp) {
				assert.True(t, math.IsNaN(temp))
			} else {
				assert.Equal(t, tt.wantTemp, temp)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	state := model.NewControlState()
	zones := []model.Zone{zone("a", 17.6, 20), zone("b", 19.2, 20)}

	assert.True(t, Update(&state, zones))
	assert.Equal(t, 18.0, state.MainTemperature)

	// idempotent on an unchanged zone set
	assert.False(t, Update(&state, zones))
	assert.Equal(t, 18.0, state.MainTemperature)

	// noise inside the same whole degree is not a change
	zones[0].Temperature = 17.9
	assert.False(t, Update(&state, zones))

	zones[0].Temperature = 16.4
	assert.True(t, Update(&state, zones))
	assert.Equal(t, 16.0, state.MainTemperature)
}

func TestUpdate_KeepsPreviousWhenNothingSelectable(t *testing.T) {
	state := model.NewControlState()
	zones := []model.Zone{zone("a", model.Unknown, 20)}

	assert.False(t, Update(&state, zones))
	assert.True(t, math.IsNaN(state.MainTemperature))

	state.MainTemperature = 12
	assert.False(t, Update(&state, zones))
	assert.Equal(t, 12.0, state.MainTemperature)
}
