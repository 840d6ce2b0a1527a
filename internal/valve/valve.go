// Package valve ramps servo-driven zone valves without blocking the caller. Each valve
// moves one degree per step on its own goroutine and reports completion on a channel.
package valve

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrValveUnavailable = errors.New("valve unavailable")

const (
	DefaultMaxAngle  = 90
	DefaultStepDelay = 5 * time.Millisecond
)

// Driver writes a servo angle in degrees.
type Driver interface {
	WriteAngle(channel, degrees int) error
}

// Servo binds a valve id to a driver channel.
type Servo struct {
	ValveID int `json:"valve_id"`
	Channel int `json:"channel"`
}

type Config struct {
	MaxAngle  int
	StepDelay time.Duration
}

// Completion reports a finished or aborted ramp.
type Completion struct {
	ValveID int
	Opening int
	Err     error
}

type servoState struct {
	channel     int
	angle       int
	target      int
	targetAngle int
	position    int
	moving      bool
}

// Actuator owns every servo. It is safe for concurrent use.
type Actuator struct {
	mu     sync.Mutex
	driver Driver
	cfg    Config
	servos map[int]*servoState
	done   chan Completion
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func New(driver Driver, servos []Servo, cfg Config) (*Actuator, error) {
	if cfg.MaxAngle <= 0 {
		cfg.MaxAngle = DefaultMaxAngle
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = DefaultStepDelay
	}

	a := &Actuator{
		driver: driver,
		cfg:    cfg,
		servos: make(map[int]*servoState, len(servos)),
		done:   make(chan Completion, len(servos)+1),
		stop:   make(chan struct{}),
	}
	for _, s := range servos {
		if s.ValveID <= 0 {
			return nil, fmt.Errorf("servo on channel %d: valve id must be positive", s.Channel)
		}
		if _, dup := a.servos[s.ValveID]; dup {
			return nil, fmt.Errorf("valve %d configured twice", s.ValveID)
		}
		a.servos[s.ValveID] = &servoState{channel: s.Channel}
	}
	return a, nil
}

// Home drives every servo to its closed position.
func (a *Actuator) Home() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for id, s := range a.servos {
		if err := a.driver.WriteAngle(s.channel, 0); err != nil {
			errs = append(errs, fmt.Errorf("valve %d: %w", id, err))
			continue
		}
		s.angle, s.target, s.targetAngle, s.position = 0, 0, 0, 0
	}
	return errors.Join(errs...)
}

// Angle maps an opening percentage onto the servo travel.
func (a *Actuator) Angle(percent int) int {
	return percent * a.cfg.MaxAngle / 100
}

// SetOpening accepts a new target and starts a ramp when the servo is idle. A moving
// servo picks up the new target on its next step.
func (a *Actuator) SetOpening(valveID, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("valve %d: opening %d out of range", valveID, percent)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("valve %d: %w", valveID, ErrValveUnavailable)
	}
	s, ok := a.servos[valveID]
	if !ok {
		return fmt.Errorf("valve %d: %w", valveID, ErrValveUnavailable)
	}
	if s.target == percent && (s.moving || s.position == percent) {
		return nil
	}

	s.target = percent
	s.targetAngle = a.Angle(percent)
	if !s.moving {
		s.moving = true
		a.wg.Add(1)
		go a.ramp(valveID, s)
	}
	return nil
}

// Position reports the opening reached by the last completed move.
func (a *Actuator) Position(valveID int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.servos[valveID]
	if !ok {
		return 0, false
	}
	return s.position, true
}

// Moving reports whether any servo is ramping.
func (a *Actuator) Moving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.servos {
		if s.moving {
			return true
		}
	}
	return false
}

// Done delivers completions. Completions are dropped when nobody drains the channel.
func (a *Actuator) Done() <-chan Completion {
	return a.done
}

func (a *Actuator) ramp(valveID int, s *servoState) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.StepDelay)
	defer ticker.Stop()

	for {
		a.mu.Lock()
		if s.angle == s.targetAngle {
			s.moving = false
			s.position = s.target
			c := Completion{ValveID: valveID, Opening: s.target}
			a.mu.Unlock()
			a.notify(c)
			log.Debug().Int("valve", valveID).Int("opening", c.Opening).Msg("Valve reached target")
			return
		}
		next := s.angle + 1
		if s.targetAngle < s.angle {
			next = s.angle - 1
		}
		channel := s.channel
		a.mu.Unlock()

		if err := a.driver.WriteAngle(channel, next); err != nil {
			a.mu.Lock()
			s.moving = false
			target := s.target
			a.mu.Unlock()
			a.notify(Completion{ValveID: valveID, Opening: target, Err: err})
			log.Error().Err(err).Int("valve", valveID).Int("angle", next).Msg("Servo write failed")
			return
		}

		a.mu.Lock()
		s.angle = next
		a.mu.Unlock()

		select {
		case <-a.stop:
			a.mu.Lock()
			s.moving = false
			a.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

func (a *Actuator) notify(c Completion) {
	select {
	case a.done <- c:
	default:
		log.Warn().Int("valve", c.ValveID).Msg("Dropping valve completion")
	}
}

// Close stops all ramps and waits for them to exit.
func (a *Actuator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.stop)
	a.mu.Unlock()
	a.wg.Wait()
}
