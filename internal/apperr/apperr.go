// Package apperr defines the error kinds shared by the attendance services.
// Concrete errors wrap exactly one kind so callers can branch with errors.Is.
package apperr

import "errors"

// Error kinds
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("unauthorized")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrExtraction = errors.New("extraction failure")
)

// Error is a client-facing error classified by kind.
type Error struct {
	kind error
	msg  string
}

// New creates an error of the given kind.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Unwrap returns the kind so errors.Is(err, ErrConflict) works.
func (e *Error) Unwrap() error {
	return e.kind
}

// Kind returns the kind sentinel.
func (e *Error) Kind() error {
	return e.kind
}

// Attendance
var (
	ErrAlreadyCheckedIn       = New(ErrConflict, "Already checked in")
	ErrNoOpenSession          = New(ErrConflict, "No active check-in found")
	ErrConcurrentModification = New(ErrConflict, "session was modified concurrently")
	ErrInvalidSessionTimes    = New(ErrConflict, "check-out time precedes check-in")
	ErrFaceMismatch           = New(ErrAuth, "Face does not match")
	ErrNoDescriptor           = New(ErrValidation, "no face registered for this account")
)

// Accounts
var (
	ErrEmailTaken         = New(ErrConflict, "Email already registered")
	ErrFaceTaken          = New(ErrConflict, "Face already registered")
	ErrInvalidCredentials = New(ErrAuth, "Invalid email or password")
	ErrFaceNotRecognized  = New(ErrAuth, "Face not recognized")
	ErrInvalidToken       = New(ErrAuth, "Could not validate credentials")
	ErrNotOwner           = New(ErrForbidden, "Employee does not belong to this employer")
	ErrWrongRole          = New(ErrForbidden, "Not authorized for this resource")
	ErrEmployerNotFound   = New(ErrNotFound, "Employer not found")
	ErrEmployeeNotFound   = New(ErrNotFound, "Employee not found")
)

// KindOf returns the kind of err, or nil when err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrAuth, ErrForbidden, ErrConflict, ErrExtraction} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
