// Package num provides small numeric helpers shared across the engine.
package num

import "golang.org/x/exp/constraints"

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Unit bounds v to [0, 1].
func Unit(v float64) float64 {
	return Clamp(v, 0.0, 1.0)
}
