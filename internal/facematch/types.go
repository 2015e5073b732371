// Package facematch compares face descriptors by Euclidean distance.
// Matchers never mutate state; stores feed them lazily through iter.Seq2.
package facematch

import (
	"fmt"

	"github.com/kozaktomas/attendance/internal/apperr"
)

// Descriptor is a fixed-length numeric summary of one detected face.
type Descriptor []float64

// Float32 converts the descriptor for vector indexes and pgvector columns.
func (d Descriptor) Float32() []float32 {
	out := make([]float32, len(d))
	for i, v := range d {
		out[i] = float32(v)
	}
	return out
}

// Candidate is a stored descriptor together with the identity it belongs to.
type Candidate struct {
	ID         string
	Descriptor Descriptor
}

// ErrMalformedDescriptor is returned for descriptors of the wrong length or with non-finite values.
var ErrMalformedDescriptor = apperr.New(apperr.ErrValidation, "malformed face descriptor")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDescriptor, fmt.Sprintf(format, args...))
}
