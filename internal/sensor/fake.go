package sensor

import (
	"sync"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

// FakeSource is a test double with a settable snapshot.
type FakeSource struct {
	mu       sync.Mutex
	snapshot model.Snapshot
	Infos    []model.SensorInfo
}

func NewFakeSource(values ...float64) *FakeSource {
	return &FakeSource{snapshot: model.Snapshot(values)}
}

func (f *FakeSource) Set(values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshot = model.Snapshot(values)
}

func (f *FakeSource) Latest() model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append(model.Snapshot(nil), f.snapshot...)
}

func (f *FakeSource) Enumerate() []model.SensorInfo {
	return f.Infos
}
