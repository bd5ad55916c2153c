// Package mathx provides generic math helpers that the standard library leaves out.
package mathx

import "golang.org/x/exp/constraints"

// Number is any integer or floating-point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Min returns the smallest value of all provided values.
func Min[T constraints.Ordered](values ...T) T {
	minValue := values[0]
	for _, value := range values[1:] {
		if value < minValue {
			minValue = value
		}
	}
	return minValue
}

// Max returns the largest value of all provided values.
func Max[T constraints.Ordered](values ...T) T {
	maxValue := values[0]
	for _, value := range values[1:] {
		if value > maxValue {
			maxValue = value
		}
	}
	return maxValue
}

// Clamp returns v limited to the closed interval [low, high].
func Clamp[T constraints.Ordered](low, v, high T) T {
	return Max(low, Min(v, high))
}

// Sum returns the sum of the provided values.
func Sum[T Number](values ...T) T {
	var total T
	for _, value := range values {
		total += value
	}
	return total
}

// Mean returns the arithmetic mean of the provided values, or zero when empty.
func Mean[T Number](values ...T) float64 {
	if len(values) == 0 {
		return 0
	}
	return float64(Sum(values...)) / float64(len(values))
}
