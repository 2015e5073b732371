package database

import (
	"context"
	"iter"

	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// IdentityReader provides read-only access to employers and employees.
// Finders return nil, nil when the record does not exist.
type IdentityReader interface {
	// FindEmployer retrieves an employer by ID
	FindEmployer(ctx context.Context, id string) (*Employer, error)
	// FindEmployee retrieves an employee by ID
	FindEmployee(ctx context.Context, id string) (*Employee, error)
	// FindEmployerByEmail retrieves an employer by normalized email
	FindEmployerByEmail(ctx context.Context, email string) (*Employer, error)
	// FindEmployeeByEmail retrieves an employee by normalized email
	FindEmployeeByEmail(ctx context.Context, email string) (*Employee, error)
	// ListEmployees returns the employees of one employer ordered by username
	ListEmployees(ctx context.Context, employerID string) ([]Employee, error)
	// StreamDescriptors lazily yields every stored descriptor of one role in a stable order
	StreamDescriptors(ctx context.Context, role auth.Role) iter.Seq2[facematch.Candidate, error]
}

// IdentityWriter provides write access to identities.
type IdentityWriter interface {
	IdentityReader

	// InsertEmployer stores a new employer; a duplicate email yields apperr.ErrEmailTaken
	InsertEmployer(ctx context.Context, e *Employer) error
	// InsertEmployee stores a new employee; a duplicate email yields apperr.ErrEmailTaken
	InsertEmployee(ctx context.Context, e *Employee) error
}

// NearestFinder is implemented by identity stores that can rank descriptors by distance
// (pgvector or an in-memory HNSW index). Results are a short candidate list for a matcher.
type NearestFinder interface {
	NearestDescriptors(ctx context.Context, role auth.Role, d facematch.Descriptor, k int) iter.Seq2[facematch.Candidate, error]
}

// SessionStore provides access to attendance sessions.
type SessionStore interface {
	// FindOpenSession returns the employee's open session, or nil
	FindOpenSession(ctx context.Context, employeeID string) (*Session, error)
	// InsertSession stores a new open session; an existing open session yields apperr.ErrAlreadyCheckedIn
	InsertSession(ctx context.Context, s *Session) error
	// CloseSession writes check-out fields only if the session is still open.
	// It returns false when the session was already closed.
	CloseSession(ctx context.Context, sessionID string, c SessionClose) (bool, error)
	// StreamSessions lazily yields sessions matching the filter ordered by check-in
	StreamSessions(ctx context.Context, f SessionFilter) iter.Seq2[Session, error]
	// MarkPaid sets paid on every unpaid session of the employee and returns the count
	MarkPaid(ctx context.Context, employeeID string) (int64, error)
}

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}
