// Package descriptor turns uploaded images into face descriptors.
package descriptor

import (
	"context"
	"errors"

	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// Extractor converts raw image bytes into the descriptor of one detected face.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (facematch.Descriptor, error)
}

// Failure is an extraction error with a machine-readable reason.
type Failure struct {
	Reason  string
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Unwrap classifies every failure as an extraction error.
func (f *Failure) Unwrap() error {
	return apperr.ErrExtraction
}

var (
	ErrNoFaceDetected = &Failure{Reason: "no_face_detected", Message: "No face detected in the image"}
	ErrEncodingFailed = &Failure{Reason: "encoding_failed", Message: "Could not encode the detected face"}
	ErrDecode         = &Failure{Reason: "decode_error", Message: "Invalid or unsupported image"}
)

// ReasonOf returns the failure reason carried by err, or "" if err is not a Failure.
func ReasonOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
