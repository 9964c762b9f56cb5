package stepper

import "math"

// Normalize folds deg into [0, 360). NaN and infinities come back as NaN.
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-14 + 360 rounds to 360.
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Advance returns the position reached after steps of degreesPerStep in dir.
// Right decreases the angle, Left increases it.
func Advance(current float64, steps int, degreesPerStep float64, dir Direction) float64 {
	delta := degreesPerStep * float64(steps)
	if dir == Right {
		return Normalize(current - delta)
	}
	return Normalize(current + delta)
}

// StepsToTarget returns the step count that reaches target from current while
// turning only in dir. It never picks the shorter way round; a target equal to
// current turning Right costs a full revolution.
func StepsToTarget(current, target, degreesPerStep float64, dir Direction) int {
	round := func(deg float64) int {
		return int(math.Round(deg / degreesPerStep))
	}

	if current > target {
		if dir == Right {
			return round(current - target)
		}
		return round(360-current) + round(target)
	}
	if dir == Right {
		return round(current) + round(360-target)
	}
	return round(target - current)
}
