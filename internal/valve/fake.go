package valve

import "sync"

// FakeDriver records servo writes per channel.
type FakeDriver struct {
	mu     sync.Mutex
	writes map[int][]int

	// Err, if set, will be returned by WriteAngle.
	Err error
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{writes: map[int][]int{}}
}

func (f *FakeDriver) WriteAngle(channel, degrees int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	f.writes[channel] = append(f.writes[channel], degrees)
	return nil
}

// Writes returns a copy of the angles written to a channel.
func (f *FakeDriver) Writes(channel int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int(nil), f.writes[channel]...)
}

func (f *FakeDriver) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Err = err
}
