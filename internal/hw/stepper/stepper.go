package stepper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/clock"
	"github.com/cjeanneret/halfstep/internal/hw/gpio"
)

// DefaultVelocity is the pacing used when Config.Velocity is zero, in half-steps per second.
const DefaultVelocity = 8

// MaxSteps is the largest count MoveBySteps accepts. The half-step loop
// counter stays below math.MaxInt.
const MaxSteps = math.MaxInt/2 - 1

var (
	ErrInvalidStepsPerRev = errors.New("stepper: steps per revolution must be > 0")
	ErrInvalidVelocity    = errors.New("stepper: velocity must be > 0")
	ErrNegativeSteps      = errors.New("stepper: step count must be >= 0")
	ErrTooManySteps       = errors.New("stepper: step count too large")
)

// Config holds the hardware configuration for a four-wire stepper motor.
type Config struct {
	StepsPerRev int // full steps per revolution; doubled internally for half-stepping
	PinA        int
	PinB        int
	PinC        int
	PinD        int
	Velocity    int // half-steps per second. 0 = DefaultVelocity.
}

// Sequencer drives a four-wire stepper in half-step mode and tracks its angle.
// It is not safe for concurrent use; one caller drives one motor.
type Sequencer struct {
	gpio  gpio.Driver
	clock clock.Clock

	pins            [4]int
	halfStepsPerRev int

	phase     Phase
	direction Direction
	velocity  int
	degrees   float64
}

// NewSequencer claims the four pins as outputs and returns a sequencer at
// phase 0001, direction Right, position 0°.
func NewSequencer(g gpio.Driver, clk clock.Clock, cfg Config) (*Sequencer, error) {
	if cfg.StepsPerRev <= 0 {
		return nil, ErrInvalidStepsPerRev
	}
	if cfg.Velocity < 0 {
		return nil, ErrInvalidVelocity
	}
	velocity := cfg.Velocity
	if velocity == 0 {
		velocity = DefaultVelocity
	}
	if clk == nil {
		clk = clock.System{}
	}

	s := &Sequencer{
		gpio:            g,
		clock:           clk,
		pins:            [4]int{cfg.PinA, cfg.PinB, cfg.PinC, cfg.PinD},
		halfStepsPerRev: 2 * cfg.StepsPerRev,
		phase:           Phase0001,
		direction:       Right,
		velocity:        velocity,
	}

	for _, pin := range s.pins {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}

	debug.Verbose("Stepper: %d half-steps/rev on pins A=%d B=%d C=%d D=%d",
		s.halfStepsPerRev, cfg.PinA, cfg.PinB, cfg.PinC, cfg.PinD)
	return s, nil
}

// move performs one half-step in the current direction and waits 1000/velocity ms.
// It never touches the tracked angle. If a write fails, the pins already
// written are put back to the current phase and no wait happens.
func (s *Sequencer) move() error {
	next := s.phase.Next(s.direction)
	for i, level := range next.Levels() {
		if err := s.gpio.WritePin(s.pins[i], level); err != nil {
			s.restore(i)
			return fmt.Errorf("half-step %s->%s: %w", s.phase, next, err)
		}
	}
	debug.Trace("Stepper: phase %s -> %s (%s)", s.phase, next, s.direction)
	s.phase = next

	s.clock.Sleep(s.halfStepDelay())
	return nil
}

// restore rewrites the current phase on the first n pins. Errors are only
// logged; the caller already reports the failed write.
func (s *Sequencer) restore(n int) {
	levels := s.phase.Levels()
	for i := 0; i < n; i++ {
		if err := s.gpio.WritePin(s.pins[i], levels[i]); err != nil {
			debug.Live("Stepper: could not restore pin %d: %v", s.pins[i], err)
		}
	}
}

func (s *Sequencer) halfStepDelay() time.Duration {
	return time.Duration(float64(time.Second) / float64(s.velocity))
}

// MoveBySteps turns the motor by steps full steps in the current direction.
//
// The loop issues 2*steps+1 half-steps: the current phase counts as the first
// cycle, so one extra transition is needed to land on the target. The angle is
// then updated arithmetically from steps, not from the transitions issued.
func (s *Sequencer) MoveBySteps(steps int) error {
	if steps < 0 {
		return ErrNegativeSteps
	}
	if steps > MaxSteps {
		return ErrTooManySteps
	}

	debug.Move("steps", steps, s.direction.String())

	for i := 0; i <= 2*steps; i++ {
		if err := s.move(); err != nil {
			return err
		}
	}

	s.degrees = Advance(s.degrees, steps, s.DegreesPerStep(), s.direction)
	debug.Verbose("Stepper: now at %.3f°", s.degrees)
	return nil
}

// MoveByDegrees turns to the absolute angle target, honouring the current
// direction even when the other way round is shorter. target is folded into
// [0, 360) first.
func (s *Sequencer) MoveByDegrees(target float64) error {
	target = Normalize(target)
	steps := StepsToTarget(s.degrees, target, s.DegreesPerStep(), s.direction)
	debug.Verbose("Stepper: %.3f° -> %.3f° (%s) = %d steps", s.degrees, target, s.direction, steps)
	return s.MoveBySteps(steps)
}

// HomeOnSignal configures pin as an input and half-steps in the current
// direction until it reads HIGH. There is no timeout and the tracked angle is
// left as is; callers decide whether the homed phase is their zero.
func (s *Sequencer) HomeOnSignal(pin int) error {
	return s.HomeOnSignalContext(context.Background(), pin)
}

// HomeOnSignalContext is HomeOnSignal, stopping with ctx.Err() when ctx is done.
func (s *Sequencer) HomeOnSignalContext(ctx context.Context, pin int) error {
	_, err := s.HomeOnSignalCount(ctx, pin)
	return err
}

// HomeOnSignalCount homes like HomeOnSignalContext and reports how many
// half-steps it took.
func (s *Sequencer) HomeOnSignalCount(ctx context.Context, pin int) (int, error) {
	if err := s.gpio.SetupPin(pin, gpio.Input); err != nil {
		return 0, fmt.Errorf("setup home pin %d: %w", pin, err)
	}

	debug.Live("Stepper: homing on pin %d (%s)", pin, s.direction)

	moves := 0
	for {
		level, err := s.gpio.ReadPin(pin)
		if err != nil {
			return moves, fmt.Errorf("read home pin %d: %w", pin, err)
		}
		if level == gpio.High {
			debug.Live("Stepper: home signal after %d half-steps", moves)
			return moves, nil
		}

		select {
		case <-ctx.Done():
			return moves, ctx.Err()
		default:
		}

		if err := s.move(); err != nil {
			return moves, err
		}
		moves++
	}
}

// CurrentDegrees returns the tracked angle, in [0, 360).
func (s *Sequencer) CurrentDegrees() float64 {
	return s.degrees
}

// SetDirection sets the direction of subsequent moves.
func (s *Sequencer) SetDirection(dir Direction) {
	s.direction = dir
}

// Direction returns the current direction.
func (s *Sequencer) Direction() Direction {
	return s.direction
}

// SetVelocity sets the pacing of subsequent moves, in half-steps per second.
func (s *Sequencer) SetVelocity(halfStepsPerSecond int) error {
	if halfStepsPerSecond <= 0 {
		return ErrInvalidVelocity
	}
	s.velocity = halfStepsPerSecond
	return nil
}

// Velocity returns the pacing in half-steps per second.
func (s *Sequencer) Velocity() int {
	return s.velocity
}

// Phase returns the coil pattern last written.
func (s *Sequencer) Phase() Phase {
	return s.phase
}

// HalfStepsPerRev returns twice the configured full steps per revolution.
func (s *Sequencer) HalfStepsPerRev() int {
	return s.halfStepsPerRev
}

// DegreesPerStep is 360 / half-steps-per-revolution.
func (s *Sequencer) DegreesPerStep() float64 {
	return 360.0 / float64(s.halfStepsPerRev)
}
