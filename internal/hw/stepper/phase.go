package stepper

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/halfstep/internal/hw/gpio"
)

// Direction is the sense in which the phase ring is walked.
type Direction int

const (
	Right Direction = iota // forward along the ring
	Left                   // backward along the ring
)

func (d Direction) String() string {
	switch d {
	case Right:
		return "right"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts "right" or "left" (any case).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "right":
		return Right, nil
	case "left":
		return Left, nil
	default:
		return Right, fmt.Errorf("invalid direction %q (want right or left)", s)
	}
}

// Phase is a 4-bit coil pattern. Bit 3 drives line A, bit 0 drives line D.
type Phase uint8

const (
	Phase0001 Phase = 0b0001
	Phase0011 Phase = 0b0011
	Phase0010 Phase = 0b0010
	Phase0110 Phase = 0b0110
	Phase0100 Phase = 0b0100
	Phase1100 Phase = 0b1100
	Phase1000 Phase = 0b1000
	Phase1001 Phase = 0b1001
)

// ring is the half-step sequence. Neighbours differ by exactly one bit.
var ring = [8]Phase{
	Phase0001,
	Phase0011,
	Phase0010,
	Phase0110,
	Phase0100,
	Phase1100,
	Phase1000,
	Phase1001,
}

func (p Phase) String() string {
	return fmt.Sprintf("%04b", uint8(p))
}

// index returns the position of p on the ring, or -1.
func (p Phase) index() int {
	for i, q := range ring {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the neighbouring phase in direction dir.
func (p Phase) Next(dir Direction) Phase {
	i := p.index()
	if i < 0 {
		return Phase0001
	}
	if dir == Left {
		return ring[(i+len(ring)-1)%len(ring)]
	}
	return ring[(i+1)%len(ring)]
}

// Levels returns the output levels for lines A, B, C, D.
func (p Phase) Levels() [4]gpio.Level {
	var out [4]gpio.Level
	for i := range out {
		out[i] = gpio.Level(p&(1<<(3-i)) != 0)
	}
	return out
}
