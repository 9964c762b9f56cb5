package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/cjeanneret/halfstep/internal/debug"
)

const consumer = "halfstep"

// cdevLine is the subset of *gpiocdev.Line the driver uses.
type cdevLine interface {
	SetValue(value int) error
	Value() (int, error)
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

var requestLine = func(chip string, offset int, options ...gpiocdev.LineReqOption) (cdevLine, error) {
	return gpiocdev.RequestLine(chip, offset, options...)
}

// CdevDriver drives pins through the Linux GPIO character device
// (/dev/gpiochipN). Pin numbers are line offsets on the chip.
type CdevDriver struct {
	chip  string
	lines map[int]cdevLine
	modes map[int]PinMode
}

// NewCdevDriver creates a character-device driver for chip (e.g. "gpiochip0").
// Lines are requested lazily by SetupPin.
func NewCdevDriver(chip string) *CdevDriver {
	debug.Info("Using GPIO character device driver (%s)", chip)
	return &CdevDriver{
		chip:  chip,
		lines: make(map[int]cdevLine),
		modes: make(map[int]PinMode),
	}
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	if l, ok := c.lines[pin]; ok {
		if c.modes[pin] == mode {
			return nil
		}
		var err error
		switch mode {
		case Input:
			err = l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown)
		case Output:
			err = l.Reconfigure(gpiocdev.AsOutput(0))
		default:
			return fmt.Errorf("unknown pin mode: %d", mode)
		}
		if err != nil {
			return fmt.Errorf("reconfigure %s line %d: %w", c.chip, pin, err)
		}
		c.modes[pin] = mode
		return nil
	}

	var opts []gpiocdev.LineReqOption
	switch mode {
	case Input:
		opts = []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithConsumer(consumer)}
	case Output:
		opts = []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer)}
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	l, err := requestLine(c.chip, pin, opts...)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", c.chip, pin, err)
	}
	c.lines[pin] = l
	c.modes[pin] = mode
	return nil
}

func (c *CdevDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	l, ok := c.lines[pin]
	if !ok || c.modes[pin] != Output {
		return fmt.Errorf("write pin %d: not set up as output", pin)
	}
	v := 0
	if level == High {
		v = 1
	}
	return l.SetValue(v)
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	l, ok := c.lines[pin]
	if !ok {
		return Low, fmt.Errorf("read pin %d: not set up", pin)
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read %s line %d: %w", c.chip, pin, err)
	}
	debug.GPIO("ReadPin", pin, v)
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Close drives outputs LOW and releases every requested line.
func (c *CdevDriver) Close() error {
	debug.Trace("GPIO Close (cdev driver)")

	var firstErr error
	for pin, l := range c.lines {
		if c.modes[pin] == Output {
			_ = l.SetValue(0)
		}
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s line %d: %w", c.chip, pin, err)
		}
		delete(c.lines, pin)
		delete(c.modes, pin)
	}
	return firstErr
}
