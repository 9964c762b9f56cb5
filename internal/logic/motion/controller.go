package motion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/stepper"
)

// ErrBusy is returned when an operation is already running on the motor.
var ErrBusy = errors.New("motion: motor is busy")

// State is a snapshot of the motor taken after the last completed operation.
type State struct {
	Degrees   float64 `json:"degrees"`
	Direction string  `json:"direction"`
	Velocity  int     `json:"velocity"`
	Phase     string  `json:"phase"`
	Homed     bool    `json:"homed"`
	Busy      bool    `json:"busy"`
}

// Controller serializes access to a single sequencer.
// It's the layer between business logic (programs, web, jog) and the
// low-level half-step driver.
type Controller struct {
	seq *stepper.Sequencer

	// op is held for the whole duration of a motor operation.
	op sync.Mutex

	mu       sync.RWMutex
	state    State
	onChange func(State)
}

func NewController(seq *stepper.Sequencer) *Controller {
	c := &Controller{seq: seq}
	c.state = c.snapshot(false)
	return c
}

// OnChange registers fn to be called with the new state after each
// operation starts and completes. fn must not call back into the controller's
// blocking operations.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns the latest snapshot. It never blocks on a running move.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Busy reports whether an operation is in progress.
func (c *Controller) Busy() bool {
	return c.State().Busy
}

// MoveTo sets the direction then turns to the absolute angle target.
func (c *Controller) MoveTo(target float64, dir stepper.Direction) error {
	return c.run(func() error {
		c.seq.SetDirection(dir)
		return c.seq.MoveByDegrees(target)
	})
}

// Rotate sets the direction then turns by steps full steps.
func (c *Controller) Rotate(steps int, dir stepper.Direction) error {
	return c.run(func() error {
		c.seq.SetDirection(dir)
		return c.seq.MoveBySteps(steps)
	})
}

// SetVelocity changes the pacing of subsequent moves.
func (c *Controller) SetVelocity(halfStepsPerSecond int) error {
	return c.run(func() error {
		return c.seq.SetVelocity(halfStepsPerSecond)
	})
}

// SetDirection changes the direction used by Home and jog steps.
func (c *Controller) SetDirection(dir stepper.Direction) error {
	return c.run(func() error {
		c.seq.SetDirection(dir)
		return nil
	})
}

// Home half-steps in the current direction until pin reads HIGH. A timeout
// of 0 waits until ctx is done. The tracked angle is not reset.
func (c *Controller) Home(ctx context.Context, pin int, timeout time.Duration) error {
	return c.run(func() error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		moves, err := c.seq.HomeOnSignalCount(ctx, pin)
		if err != nil {
			debug.Live("Homing stopped after %d half-steps", moves)
			return err
		}
		c.mu.Lock()
		c.state.Homed = true
		c.mu.Unlock()
		return nil
	})
}

func (c *Controller) run(op func() error) error {
	if !c.op.TryLock() {
		return ErrBusy
	}
	defer c.op.Unlock()

	c.publish(c.snapshot(true))
	err := op()
	c.publish(c.snapshot(false))
	return err
}

// snapshot reads the sequencer; callers hold op or are the constructor.
func (c *Controller) snapshot(busy bool) State {
	c.mu.RLock()
	homed := c.state.Homed
	c.mu.RUnlock()
	return State{
		Degrees:   c.seq.CurrentDegrees(),
		Direction: c.seq.Direction().String(),
		Velocity:  c.seq.Velocity(),
		Phase:     c.seq.Phase().String(),
		Homed:     homed,
		Busy:      busy,
	}
}

func (c *Controller) publish(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
