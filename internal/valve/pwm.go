package valve

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultPWMChip  = "/sys/class/pwm/pwmchip0"
	DefaultPeriod   = 20 * time.Millisecond
	DefaultMinPulse = 500 * time.Microsecond
	DefaultMaxPulse = 2500 * time.Microsecond

	// servoTravel is the angle covered between the minimum and maximum pulse.
	servoTravel = 180
)

// PWM drives hobby servos through the kernel sysfs PWM interface.
type PWM struct {
	Chip     string
	Period   time.Duration
	MinPulse time.Duration
	MaxPulse time.Duration

	mu       sync.Mutex
	exported map[int]bool
}

func NewPWM(chip string) *PWM {
	if chip == "" {
		chip = DefaultPWMChip
	}
	return &PWM{
		Chip:     chip,
		Period:   DefaultPeriod,
		MinPulse: DefaultMinPulse,
		MaxPulse: DefaultMaxPulse,
		exported: map[int]bool{},
	}
}

// PulseFor converts an angle into the pulse width for it.
func (p *PWM) PulseFor(degrees int) time.Duration {
	if degrees < 0 {
		degrees = 0
	}
	if degrees > servoTravel {
		degrees = servoTravel
	}
	span := p.MaxPulse - p.MinPulse
	return p.MinPulse + span*time.Duration(degrees)/servoTravel
}

func (p *PWM) WriteAngle(channel, degrees int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.exported[channel] {
		if err := p.export(channel); err != nil {
			return err
		}
		p.exported[channel] = true
	}

	duty := p.PulseFor(degrees)
	if err := p.write(channel, "duty_cycle", duty.Nanoseconds()); err != nil {
		return err
	}
	return nil
}

func (p *PWM) export(channel int) error {
	dir := p.channelDir(channel)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(p.Chip, "export"), []byte(strconv.Itoa(channel)), 0o200); err != nil {
			return fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
	}
	if err := p.write(channel, "period", p.Period.Nanoseconds()); err != nil {
		return err
	}
	if err := p.write(channel, "enable", 1); err != nil {
		return err
	}
	return nil
}

func (p *PWM) write(channel int, attr string, v int64) error {
	path := filepath.Join(p.channelDir(channel), attr)
	if err := os.WriteFile(path, []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (p *PWM) channelDir(channel int) string {
	return filepath.Join(p.Chip, fmt.Sprintf("pwm%d", channel))
}
