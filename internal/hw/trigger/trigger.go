// Package trigger pulses an output line, e.g. a camera shutter or a
// data-logger input, when a program reaches a waypoint.
package trigger

import (
	"fmt"
	"time"

	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/clock"
	"github.com/cjeanneret/halfstep/internal/hw/gpio"
)

// Trigger fires once per call.
type Trigger interface {
	Fire() error
}

// Config describes a GPIO pulse.
type Config struct {
	Pin       int
	ActiveLow bool          // opto-isolated remotes usually pull the line LOW
	Settle    time.Duration // wait before asserting, lets the motor stop ringing
	Hold      time.Duration // how long the line stays asserted
}

// GPIO is a Trigger that asserts one pin for Hold.
//
// Pulse sequence:
// 1. wait Settle
// 2. pin to active level
// 3. wait Hold
// 4. pin back to idle level
type GPIO struct {
	gpio  gpio.Driver
	clock clock.Clock
	cfg   Config
}

// NewGPIO claims the pin as an output and drives it idle.
func NewGPIO(g gpio.Driver, clk clock.Clock, cfg Config) (*GPIO, error) {
	if clk == nil {
		clk = clock.System{}
	}
	t := &GPIO{gpio: g, clock: clk, cfg: cfg}
	if err := g.SetupPin(cfg.Pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup trigger pin %d: %w", cfg.Pin, err)
	}
	if err := g.WritePin(cfg.Pin, t.idle()); err != nil {
		return nil, fmt.Errorf("idle trigger pin %d: %w", cfg.Pin, err)
	}
	return t, nil
}

func (t *GPIO) active() gpio.Level { return gpio.Level(!t.cfg.ActiveLow) }
func (t *GPIO) idle() gpio.Level   { return gpio.Level(t.cfg.ActiveLow) }

// Fire emits one pulse. The line is released even if asserting it failed.
func (t *GPIO) Fire() error {
	debug.Verbose("Trigger: pulse on pin %d (hold %v)", t.cfg.Pin, t.cfg.Hold)

	if t.cfg.Settle > 0 {
		t.clock.Sleep(t.cfg.Settle)
	}

	if err := t.gpio.WritePin(t.cfg.Pin, t.active()); err != nil {
		_ = t.gpio.WritePin(t.cfg.Pin, t.idle())
		return fmt.Errorf("assert trigger pin %d: %w", t.cfg.Pin, err)
	}

	if t.cfg.Hold > 0 {
		t.clock.Sleep(t.cfg.Hold)
	}

	if err := t.gpio.WritePin(t.cfg.Pin, t.idle()); err != nil {
		return fmt.Errorf("release trigger pin %d: %w", t.cfg.Pin, err)
	}
	return nil
}
