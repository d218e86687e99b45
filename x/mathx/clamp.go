package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// ClampFraction limits f to [0, 1]. NaN maps to 0.
func ClampFraction[T constraints.Float](f T) T {
	if f != f {
		return 0
	}
	return Clamp(f, 0, 1)
}

// Lerp returns a + (b-a)*t with t clamped to [0, 1].
func Lerp[T constraints.Float](a, b, t T) T {
	t = ClampFraction(t)
	return a + (b-a)*t
}
