package gpio

// FakeHeater is a test double that records commands.
type FakeHeater struct {
	// On is the state Status reports.
	On bool

	// Commands records every Set call in order.
	Commands []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// StatusError, if set, will be returned by Status.
	StatusError error
}

func NewFakeHeater(on bool) *FakeHeater {
	return &FakeHeater{On: on}
}

func (f *FakeHeater) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Commands = append(f.Commands, on)
	f.On = on
	return nil
}

func (f *FakeHeater) Status() (bool, error) {
	if f.StatusError != nil {
		return false, f.StatusError
	}
	return f.On, nil
}
