package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/halfstep/internal/config"
	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/clock"
	"github.com/cjeanneret/halfstep/internal/hw/stepper"
	"github.com/cjeanneret/halfstep/internal/hw/trigger"
	"github.com/cjeanneret/halfstep/internal/logic/motion"
)

// ErrEmpty is returned when running a program with no waypoints.
var ErrEmpty = errors.New("program: no waypoints")

// Waypoint is one absolute target of a program.
type Waypoint struct {
	Degrees       float64
	Direction     stepper.Direction
	KeepDirection bool          // ignore Direction, use whatever the motor has
	Velocity      int           // half-steps per second; 0 keeps the current pacing
	Dwell         time.Duration // pause after arriving
}

// Program is a list of waypoints visited Repeat times.
type Program struct {
	Waypoints []Waypoint
	Repeat    int // < 1 is treated as 1
}

// FromConfig builds a Program from its YAML form.
func FromConfig(pc config.ProgramConfig) (Program, error) {
	p := Program{Repeat: pc.Repeat}
	for i, wc := range pc.Waypoints {
		w := Waypoint{
			Degrees:       wc.Degrees,
			KeepDirection: wc.Direction == "",
			Velocity:      wc.Velocity,
			Dwell:         wc.Dwell(),
		}
		if !w.KeepDirection {
			dir, err := stepper.ParseDirection(wc.Direction)
			if err != nil {
				return Program{}, fmt.Errorf("waypoint %d: %w", i+1, err)
			}
			w.Direction = dir
		}
		p.Waypoints = append(p.Waypoints, w)
	}
	return p, nil
}

// Runner drives a motion controller through programs.
type Runner struct {
	motion  *motion.Controller
	clock   clock.Clock
	trigger trigger.Trigger // optional, fired on arrival at each waypoint
}

// NewRunner returns a runner pacing dwells with clk (system clock when nil).
func NewRunner(m *motion.Controller, clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.System{}
	}
	return &Runner{motion: m, clock: clk}
}

// SetTrigger makes the runner fire t after each move, before the dwell.
func (r *Runner) SetTrigger(t trigger.Trigger) {
	r.trigger = t
}

// Run visits every waypoint in order, Repeat times. Cancellation is honoured
// between waypoints; a move in progress always completes.
func (r *Runner) Run(ctx context.Context, p Program) error {
	if len(p.Waypoints) == 0 {
		return ErrEmpty
	}
	passes := p.Repeat
	if passes < 1 {
		passes = 1
	}

	debug.Section("Program")
	debug.Value("Waypoints", len(p.Waypoints))
	debug.Value("Passes", passes)

	total := len(p.Waypoints)
	for pass := 0; pass < passes; pass++ {
		if passes > 1 {
			debug.Step(pass+1, fmt.Sprintf("pass %d/%d", pass+1, passes))
		}
		for i, w := range p.Waypoints {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := r.visit(i+1, total, w); err != nil {
				return err
			}
		}
	}

	debug.Summary("Program complete")
	return nil
}

func (r *Runner) visit(index, total int, w Waypoint) error {
	if w.Velocity > 0 {
		if err := r.motion.SetVelocity(w.Velocity); err != nil {
			return fmt.Errorf("waypoint %d: %w", index, err)
		}
	}

	dir := w.Direction
	if w.KeepDirection {
		var err error
		dir, err = stepper.ParseDirection(r.motion.State().Direction)
		if err != nil {
			return fmt.Errorf("waypoint %d: %w", index, err)
		}
	}

	debug.Waypoint(index, total, w.Degrees, dir.String())
	if err := r.motion.MoveTo(w.Degrees, dir); err != nil {
		return fmt.Errorf("waypoint %d: %w", index, err)
	}

	if r.trigger != nil {
		if err := r.trigger.Fire(); err != nil {
			return fmt.Errorf("waypoint %d: trigger: %w", index, err)
		}
	}

	if w.Dwell > 0 {
		debug.Verbose("  dwell %s", w.Dwell)
		r.clock.Sleep(w.Dwell)
	}
	return nil
}
