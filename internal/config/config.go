package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

const (
	DefaultVelocity = 8 // half-steps per second
	DefaultWebPort  = 8080
	DefaultBackend  = "mock"
	DefaultChip     = "gpiochip0"
)

// MotorConfig describes the four-wire stepper and its starting state.
type MotorConfig struct {
	PinA        int    `yaml:"pin_a"` // coil line A (BCM / line offset)
	PinB        int    `yaml:"pin_b"`
	PinC        int    `yaml:"pin_c"`
	PinD        int    `yaml:"pin_d"`
	StepsPerRev int    `yaml:"steps_per_rev"` // full steps; 2048 for a 28BYJ-48
	Velocity    int    `yaml:"velocity"`      // half-steps per second (default 8)
	Direction   string `yaml:"direction"`     // "right" or "left" (default right)
}

// HomingConfig describes the optional home switch.
type HomingConfig struct {
	Pin       int `yaml:"pin"`        // 0 = no homing input
	TimeoutMs int `yaml:"timeout_ms"` // 0 = wait forever
}

// WaypointConfig is one stop of a program.
type WaypointConfig struct {
	Degrees   float64 `yaml:"degrees"`
	Direction string  `yaml:"direction"` // empty keeps the current direction
	Velocity  int     `yaml:"velocity"`  // 0 keeps the current velocity
	DwellMs   int     `yaml:"dwell_ms"`
}

// TriggerConfig is an optional output pulsed on arrival at each waypoint.
type TriggerConfig struct {
	Pin       int  `yaml:"pin"` // 0 = no trigger
	ActiveLow bool `yaml:"active_low"`
	SettleMs  int  `yaml:"settle_ms"`
	HoldMs    int  `yaml:"hold_ms"`
}

// ProgramConfig is an optional list of waypoints run in order.
type ProgramConfig struct {
	Repeat    int              `yaml:"repeat"` // passes over the waypoints (default 1)
	Waypoints []WaypointConfig `yaml:"waypoints"`
	Trigger   TriggerConfig    `yaml:"trigger"`
}

// GPIOConfig selects the GPIO backend.
type GPIOConfig struct {
	Backend string `yaml:"backend"` // mock, rpio or cdev
	Chip    string `yaml:"chip"`    // cdev only
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	WebPort    int `yaml:"web_port"`    // port used by -web with no value
}

// Config aggregates all application configuration.
type Config struct {
	Motor    MotorConfig    `yaml:"motor"`
	Homing   HomingConfig   `yaml:"homing"`
	Program  ProgramConfig  `yaml:"program"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q: must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Motor.Velocity == 0 {
		c.Motor.Velocity = DefaultVelocity
	}
	if c.Motor.Direction == "" {
		c.Motor.Direction = "right"
	}
	if c.Program.Repeat == 0 {
		c.Program.Repeat = 1
	}
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = DefaultBackend
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = DefaultChip
	}
	if c.Defaults.WebPort == 0 {
		c.Defaults.WebPort = DefaultWebPort
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	m := c.Motor
	if m.StepsPerRev <= 0 {
		return fmt.Errorf("motor.steps_per_rev must be > 0, got %d", m.StepsPerRev)
	}
	if m.Velocity < 0 {
		return fmt.Errorf("motor.velocity must be > 0, got %d", m.Velocity)
	}
	if !validDirection(m.Direction) {
		return fmt.Errorf("motor.direction must be right or left, got %q", m.Direction)
	}

	pins := c.MotorPins()
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if p < 0 {
			return fmt.Errorf("motor pins must be >= 0, got %d", p)
		}
		if seen[p] {
			return fmt.Errorf("motor pins must be distinct, %d used twice", p)
		}
		seen[p] = true
	}

	if c.Homing.Pin < 0 {
		return fmt.Errorf("homing.pin must be >= 0, got %d", c.Homing.Pin)
	}
	if c.Homing.Pin > 0 && seen[c.Homing.Pin] {
		return fmt.Errorf("homing.pin %d is already a motor pin", c.Homing.Pin)
	}
	if c.Homing.TimeoutMs < 0 {
		return fmt.Errorf("homing.timeout_ms must be >= 0, got %d", c.Homing.TimeoutMs)
	}

	if c.Program.Repeat < 0 {
		return fmt.Errorf("program.repeat must be >= 1, got %d", c.Program.Repeat)
	}
	for i, w := range c.Program.Waypoints {
		if math.IsNaN(w.Degrees) || math.IsInf(w.Degrees, 0) {
			return fmt.Errorf("program.waypoints[%d].degrees must be finite", i)
		}
		if w.Direction != "" && !validDirection(w.Direction) {
			return fmt.Errorf("program.waypoints[%d].direction must be right or left, got %q", i, w.Direction)
		}
		if w.Velocity < 0 {
			return fmt.Errorf("program.waypoints[%d].velocity must be >= 0, got %d", i, w.Velocity)
		}
		if w.DwellMs < 0 {
			return fmt.Errorf("program.waypoints[%d].dwell_ms must be >= 0, got %d", i, w.DwellMs)
		}
	}

	tr := c.Program.Trigger
	if tr.Pin < 0 {
		return fmt.Errorf("program.trigger.pin must be >= 0, got %d", tr.Pin)
	}
	if tr.Pin > 0 && (seen[tr.Pin] || tr.Pin == c.Homing.Pin) {
		return fmt.Errorf("program.trigger.pin %d is already in use", tr.Pin)
	}
	if tr.SettleMs < 0 || tr.HoldMs < 0 {
		return errors.New("program.trigger delays must be >= 0")
	}

	switch c.GPIO.Backend {
	case "mock", "rpio", "cdev":
	default:
		return fmt.Errorf("gpio.backend must be mock, rpio or cdev, got %q", c.GPIO.Backend)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.WebPort < 0 || c.Defaults.WebPort > 65535 {
		return fmt.Errorf("defaults.web_port must be 1-65535, got %d", c.Defaults.WebPort)
	}
	return nil
}

func validDirection(s string) bool {
	switch strings.ToLower(s) {
	case "right", "left":
		return true
	}
	return false
}

// MotorPins returns the coil pins in A, B, C, D order.
func (c *Config) MotorPins() [4]int {
	return [4]int{c.Motor.PinA, c.Motor.PinB, c.Motor.PinC, c.Motor.PinD}
}

// HasHoming reports whether a home switch is wired.
func (c *Config) HasHoming() bool {
	return c.Homing.Pin > 0
}

// HomeTimeout returns the homing bound; 0 means unbounded.
func (c *Config) HomeTimeout() time.Duration {
	return time.Duration(c.Homing.TimeoutMs) * time.Millisecond
}

// HasProgram reports whether any waypoint is configured.
func (c *Config) HasProgram() bool {
	return len(c.Program.Waypoints) > 0
}

// HasTrigger reports whether a waypoint trigger output is wired.
func (c *Config) HasTrigger() bool {
	return c.Program.Trigger.Pin > 0
}

// Settle returns the wait before the pulse.
func (t TriggerConfig) Settle() time.Duration {
	return time.Duration(t.SettleMs) * time.Millisecond
}

// Hold returns the pulse width.
func (t TriggerConfig) Hold() time.Duration {
	return time.Duration(t.HoldMs) * time.Millisecond
}

// Dwell returns the pause after reaching the waypoint.
func (w WaypointConfig) Dwell() time.Duration {
	return time.Duration(w.DwellMs) * time.Millisecond
}
