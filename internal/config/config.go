package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/zone-heater/internal/datadog"
	"github.com/thatsimonsguy/zone-heater/internal/gpio"
	"github.com/thatsimonsguy/zone-heater/internal/model"
	"github.com/thatsimonsguy/zone-heater/internal/mqtt"
	"github.com/thatsimonsguy/zone-heater/internal/sensor"
	"github.com/thatsimonsguy/zone-heater/internal/valve"
	"github.com/thatsimonsguy/zone-heater/internal/zones"
)

// Zone is one configured slot. An empty name keeps the slot but disables it.
type Zone struct {
	Name    string   `json:"name"`
	Target  *float64 `json:"target"`
	ValveID int      `json:"valve_id"`
}

// Mapping routes a sensor channel into a zone field.
type Mapping struct {
	Channel int    `json:"channel"`
	Zone    string `json:"zone"`
	Field   string `json:"field"`
}

type Sensors struct {
	DevicesDir  string           `json:"devices_dir"`
	PollSeconds int              `json:"poll_seconds"`
	Channels    []sensor.Channel `json:"channels"`
}

type Heater struct {
	Chip            string `json:"chip"`
	StatusPin       *int   `json:"status_pin"`
	ControlPin      *int   `json:"control_pin"`
	StatusActiveLow bool   `json:"status_active_low"`
	Mode            string `json:"mode"`
	PulseMillis     int    `json:"pulse_millis"`
}

type Valves struct {
	PWMChip         string        `json:"pwm_chip"`
	MaxAngle        int           `json:"max_angle"`
	StepDelayMillis int           `json:"step_delay_millis"`
	Servos          []valve.Servo `json:"servos"`
}

type Cadence struct {
	TelemetrySeconds int `json:"telemetry_seconds"`
	ControlSeconds   int `json:"control_seconds"`
	KeepaliveSeconds int `json:"keepalive_seconds"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	Zones      []Zone           `json:"zones"`
	Mappings   []Mapping        `json:"mappings"`
	Sensors    Sensors          `json:"sensors"`
	Hysteresis model.Hysteresis `json:"hysteresis"`
	Cadence    Cadence          `json:"cadence"`

	MQTT    mqtt.Config    `json:"mqtt"`
	Heater  Heater         `json:"heater"`
	Valves  Valves         `json:"valves"`
	Datadog datadog.Config `json:"datadog"`

	DBPath       string `json:"db_path"`
	HTTPPort     int    `json:"http_port"`
	NtfyServer   string `json:"ntfy_server"`
	NtfyTopic    string `json:"ntfy_topic"`
	FirmwarePath string `json:"firmware_path"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (stderr when empty)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Hysteresis.Under == 0 && cfg.Hysteresis.Over == 0 {
		cfg.Hysteresis = model.Hysteresis{Under: 2.0, Over: 1.0}
	}
	if cfg.Cadence.TelemetrySeconds == 0 {
		cfg.Cadence.TelemetrySeconds = 10
	}
	if cfg.Cadence.ControlSeconds == 0 {
		cfg.Cadence.ControlSeconds = 5
	}
	if cfg.Cadence.KeepaliveSeconds == 0 {
		cfg.Cadence.KeepaliveSeconds = 30
	}
	if cfg.Sensors.PollSeconds == 0 {
		cfg.Sensors.PollSeconds = cfg.Cadence.TelemetrySeconds
	}
	if cfg.Sensors.DevicesDir == "" {
		cfg.Sensors.DevicesDir = sensor.DefaultDevicesDir
	}
	if cfg.Heater.Mode == "" {
		cfg.Heater.Mode = string(gpio.ModeToggle)
	}
	if cfg.Heater.PulseMillis == 0 {
		cfg.Heater.PulseMillis = int(gpio.DefaultPulse / time.Millisecond)
	}
	if cfg.Valves.MaxAngle == 0 {
		cfg.Valves.MaxAngle = valve.DefaultMaxAngle
	}
	if cfg.Valves.StepDelayMillis == 0 {
		cfg.Valves.StepDelayMillis = int(valve.DefaultStepDelay / time.Millisecond)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/zone-heater.db"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.FirmwarePath == "" {
		cfg.FirmwarePath = "data/firmware/zone-heater"
	}
}

func (cfg *Config) validate() {
	var problems []string

	if _, err := cfg.Registry(); err != nil {
		problems = append(problems, err.Error())
	}

	channels := map[int]bool{}
	for _, c := range cfg.Sensors.Channels {
		if c.Index < 0 {
			problems = append(problems, fmt.Sprintf("sensor channel %d is negative", c.Index))
		}
		if channels[c.Index] {
			problems = append(problems, fmt.Sprintf("sensor channel %d configured twice", c.Index))
		}
		channels[c.Index] = true
	}

	temperatureMapped := map[string]bool{}
	for _, m := range cfg.Mappings {
		if !channels[m.Channel] {
			problems = append(problems, fmt.Sprintf("zone %q %s maps to channel %d which no sensor feeds", m.Zone, m.Field, m.Channel))
			continue
		}
		if m.Field == string(model.FieldTemperature) {
			temperatureMapped[m.Zone] = true
		}
	}

	valveIDs := map[int]bool{}
	for _, s := range cfg.Valves.Servos {
		valveIDs[s.ValveID] = true
	}
	for _, z := range cfg.Zones {
		if z.Name == "" {
			continue
		}
		if z.Target == nil {
			problems = append(problems, fmt.Sprintf("zone %q has no target", z.Name))
		}
		if !temperatureMapped[z.Name] {
			problems = append(problems, fmt.Sprintf("zone %q has no temperature channel", z.Name))
		}
		if z.ValveID > 0 && !valveIDs[z.ValveID] {
			problems = append(problems, fmt.Sprintf("zone %q uses valve %d which has no servo", z.Name, z.ValveID))
		}
	}

	if cfg.Hysteresis.Under < 0 || cfg.Hysteresis.Over < 0 {
		problems = append(problems, "hysteresis bounds must not be negative")
	}
	if _, err := gpio.ParseControlMode(cfg.Heater.Mode); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Heater.StatusPin == nil {
		problems = append(problems, "heater.status_pin is required")
	}
	if cfg.Heater.ControlPin == nil {
		problems = append(problems, "heater.control_pin is required")
	}
	if cfg.Heater.StatusPin != nil && cfg.Heater.ControlPin != nil && *cfg.Heater.StatusPin == *cfg.Heater.ControlPin {
		problems = append(problems, fmt.Sprintf("heater status and control both use pin %d", *cfg.Heater.StatusPin))
	}
	if cfg.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required")
	}
	if cfg.MQTT.BasePath == "" {
		problems = append(problems, "mqtt.base_path is required")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

// Registry builds the zone registry described by the config.
func (cfg *Config) Registry() (*zones.Registry, error) {
	zs := make([]model.Zone, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		var target float64
		if z.Target != nil {
			target = *z.Target
		}
		zs = append(zs, model.NewZone(z.Name, target, z.ValveID))
	}
	ms := make([]zones.Mapping, 0, len(cfg.Mappings))
	for _, m := range cfg.Mappings {
		ms = append(ms, zones.Mapping{Channel: m.Channel, Zone: m.Zone, Field: model.Field(m.Field)})
	}
	return zones.New(zs, ms)
}

func (cfg *Config) RelayConfig() gpio.RelayConfig {
	mode, _ := gpio.ParseControlMode(cfg.Heater.Mode)
	rc := gpio.RelayConfig{
		Chip:            cfg.Heater.Chip,
		StatusActiveLow: cfg.Heater.StatusActiveLow,
		Mode:            mode,
		Pulse:           time.Duration(cfg.Heater.PulseMillis) * time.Millisecond,
	}
	if cfg.Heater.StatusPin != nil {
		rc.StatusPin = *cfg.Heater.StatusPin
	}
	if cfg.Heater.ControlPin != nil {
		rc.ControlPin = *cfg.Heater.ControlPin
	}
	return rc
}

func (cfg *Config) ValveConfig() valve.Config {
	return valve.Config{
		MaxAngle:  cfg.Valves.MaxAngle,
		StepDelay: time.Duration(cfg.Valves.StepDelayMillis) * time.Millisecond,
	}
}

func (c Cadence) Telemetry() time.Duration { return time.Duration(c.TelemetrySeconds) * time.Second }
func (c Cadence) Control() time.Duration   { return time.Duration(c.ControlSeconds) * time.Second }
func (c Cadence) Keepalive() time.Duration { return time.Duration(c.KeepaliveSeconds) * time.Second }
