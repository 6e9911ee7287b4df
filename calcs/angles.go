// Package calcs holds the small numeric helpers shared by the drive and claw controllers.
package calcs

import "math"

// WrapDegrees maps an angle onto [0, 360).
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-15 + 360 rounds to 360
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// ShortestDelta returns the signed rotation from current to target in (-180, 180].
// 359 -> 1 is +2, never -358.
func ShortestDelta(current, target float64) float64 {
	delta := WrapDegrees(target - current)
	if delta > 180 {
		delta -= 360
	}
	return delta
}

func Clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// Sign returns -1, 0 or 1.
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
