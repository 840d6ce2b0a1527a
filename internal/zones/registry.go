// Package zones owns the zone records and merges sensor snapshots into them.
package zones

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

var ErrUnknownZone = errors.New("unknown zone")

// Mapping routes one sensor channel into one field of one zone.
type Mapping struct {
	Channel int
	Zone    string
	Field   model.Field
}

type binding struct {
	channel int
	zone    int
	field   model.Field
}

type Registry struct {
	zones    []model.Zone
	index    map[string]int
	bindings []binding
}

// New builds a registry from static configuration. Slots with an empty name are kept
// in order but never bound or looked up.
func New(zones []model.Zone, mappings []Mapping) (*Registry, error) {
	r := &Registry{
		zones: make([]model.Zone, len(zones)),
		index: make(map[string]int),
	}
	copy(r.zones, zones)

	var problems []string
	for i, z := range r.zones {
		if !z.Active() {
			continue
		}
		if _, dup := r.index[z.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate zone name %q", z.Name))
			continue
		}
		r.index[z.Name] = i
	}

	seen := make(map[string]bool)
	for _, m := range mappings {
		zi, ok := r.index[m.Zone]
		if !ok {
			problems = append(problems, fmt.Sprintf("channel %d maps to unknown zone %q", m.Channel, m.Zone))
			continue
		}
		if _, err := model.ParseField(string(m.Field)); err != nil {
			problems = append(problems, fmt.Sprintf("channel %d: %v", m.Channel, err))
			continue
		}
		if m.Channel < 0 {
			problems = append(problems, fmt.Sprintf("negative channel %d for zone %q", m.Channel, m.Zone))
			continue
		}
		key := m.Zone + "/" + string(m.Field)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("%s is bound to more than one channel", key))
			continue
		}
		seen[key] = true
		r.bindings = append(r.bindings, binding{channel: m.Channel, zone: zi, field: m.Field})
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid zone registry: %s", strings.Join(problems, "; "))
	}
	return r, nil
}

// Zones returns the live zone slice in configuration order. Callers on the control
// goroutine may read it; mutations go through Ingest and SetTarget.
func (r *Registry) Zones() []model.Zone {
	return r.zones
}

// Copy returns a detached copy of every zone.
func (r *Registry) Copy() []model.Zone {
	out := make([]model.Zone, len(r.zones))
	copy(out, r.zones)
	return out
}

func (r *Registry) Zone(name string) (model.Zone, bool) {
	i, ok := r.index[name]
	if !ok {
		return model.Zone{}, false
	}
	return r.zones[i], true
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.index))
	for _, z := range r.zones {
		if z.Active() {
			names = append(names, z.Name)
		}
	}
	return names
}

func (r *Registry) SetTarget(name string, target float64) error {
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return fmt.Errorf("target for zone %q is not a finite number", name)
	}
	r.zones[i].TemperatureTarget = target
	return nil
}

// Ingest copies every mapped channel of the snapshot into its zone field. An unknown
// channel clears the field; unmapped fields keep their last reading.
func (r *Registry) Ingest(s model.Snapshot) {
	for _, b := range r.bindings {
		r.zones[b.zone].Set(b.field, s.At(b.channel))
	}
}

// Mapped reports whether the zone has a channel bound to the given field.
func (r *Registry) Mapped(name string, f model.Field) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	for _, b := range r.bindings {
		if b.zone == i && b.field == f {
			return true
		}
	}
	return false
}
