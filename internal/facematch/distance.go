package facematch

import "math"

// EuclideanDistance returns the L2 distance between two descriptors of equal length.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, malformed("length %d does not match %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Validate checks that d has exactly dim finite components.
func Validate(d Descriptor, dim int) error {
	if len(d) != dim {
		return malformed("got %d values, want %d", len(d), dim)
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return malformed("value %d is not finite", i)
		}
	}
	return nil
}
