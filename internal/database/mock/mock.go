// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// MockIdentityStore is an in-memory implementation of database.IdentityWriter
type MockIdentityStore struct {
	mu        sync.RWMutex
	employers []database.Employer
	employees []database.Employee

	// Error injection
	FindError   error
	InsertError error
	StreamError error
	ListError   error
}

// NewMockIdentityStore creates a new mock identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{}
}

// AddEmployer adds an employer to the mock store
func (m *MockIdentityStore) AddEmployer(e database.Employer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Role = auth.RoleEmployer
	m.employers = append(m.employers, e)
}

// AddEmployee adds an employee to the mock store
func (m *MockIdentityStore) AddEmployee(e database.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Role = auth.RoleEmployee
	m.employees = append(m.employees, e)
}

// FindEmployer retrieves an employer by ID
func (m *MockIdentityStore) FindEmployer(ctx context.Context, id string) (*database.Employer, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.employers {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

// FindEmployee retrieves an employee by ID
func (m *MockIdentityStore) FindEmployee(ctx context.Context, id string) (*database.Employee, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.employees {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

// FindEmployerByEmail retrieves an employer by email
func (m *MockIdentityStore) FindEmployerByEmail(ctx context.Context, email string) (*database.Employer, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.employers {
		if strings.EqualFold(e.Email, email) {
			return &e, nil
		}
	}
	return nil, nil
}

// FindEmployeeByEmail retrieves an employee by email
func (m *MockIdentityStore) FindEmployeeByEmail(ctx context.Context, email string) (*database.Employee, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.employees {
		if strings.EqualFold(e.Email, email) {
			return &e, nil
		}
	}
	return nil, nil
}

// ListEmployees returns the employees of one employer ordered by username
func (m *MockIdentityStore) ListEmployees(ctx context.Context, employerID string) ([]database.Employee, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Employee
	for _, e := range m.employees {
		if e.EmployerID == employerID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b database.Employee) int { return cmp.Compare(a.Username, b.Username) })
	return out, nil
}

// StreamDescriptors yields descriptors of one role in insertion order
func (m *MockIdentityStore) StreamDescriptors(ctx context.Context, role auth.Role) iter.Seq2[facematch.Candidate, error] {
	return func(yield func(facematch.Candidate, error) bool) {
		if m.StreamError != nil {
			yield(facematch.Candidate{}, m.StreamError)
			return
		}
		for _, c := range m.snapshot(role) {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// snapshot copies candidates so yield runs without holding the lock.
func (m *MockIdentityStore) snapshot(role auth.Role) []facematch.Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []facematch.Candidate
	switch role {
	case auth.RoleEmployer:
		for _, e := range m.employers {
			if e.HasDescriptor() {
				out = append(out, facematch.Candidate{ID: e.ID, Descriptor: e.FaceDescriptor})
			}
		}
	case auth.RoleEmployee:
		for _, e := range m.employees {
			if e.HasDescriptor() {
				out = append(out, facematch.Candidate{ID: e.ID, Descriptor: e.FaceDescriptor})
			}
		}
	}
	return out
}

// emailTakenLocked checks the per-table unique constraint.
func (m *MockIdentityStore) emailTakenLocked(role auth.Role, email string) bool {
	if role == auth.RoleEmployer {
		return slices.ContainsFunc(m.employers, func(e database.Employer) bool { return strings.EqualFold(e.Email, email) })
	}
	return slices.ContainsFunc(m.employees, func(e database.Employee) bool { return strings.EqualFold(e.Email, email) })
}

// InsertEmployer stores a new employer
func (m *MockIdentityStore) InsertEmployer(ctx context.Context, e *database.Employer) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTakenLocked(auth.RoleEmployer, e.Email) {
		return apperr.ErrEmailTaken
	}
	e.Role = auth.RoleEmployer
	m.employers = append(m.employers, *e)
	return nil
}

// InsertEmployee stores a new employee
func (m *MockIdentityStore) InsertEmployee(ctx context.Context, e *database.Employee) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTakenLocked(auth.RoleEmployee, e.Email) {
		return apperr.ErrEmailTaken
	}
	e.Role = auth.RoleEmployee
	m.employees = append(m.employees, *e)
	return nil
}

// MockSessionStore is an in-memory implementation of database.SessionStore.
// Writes are conditional under one mutex, matching the atomicity the Postgres store gets
// from its partial unique index and guarded UPDATE.
type MockSessionStore struct {
	mu       sync.Mutex
	sessions []database.Session

	// Error injection
	FindOpenError  error
	InsertError    error
	CloseError     error
	StreamError    error
	MarkPaidError  error
	CloseConflicts bool // CloseSession reports the session as already closed
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

// AddSession adds a session to the mock store
func (m *MockSessionStore) AddSession(s database.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
}

// Sessions returns a copy of every stored session
func (m *MockSessionStore) Sessions() []database.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sessions)
}

// FindOpenSession returns the employee's open session, or nil
func (m *MockSessionStore) FindOpenSession(ctx context.Context, employeeID string) (*database.Session, error) {
	if m.FindOpenError != nil {
		return nil, m.FindOpenError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EmployeeID == employeeID && s.IsOpen() {
			return &s, nil
		}
	}
	return nil, nil
}

// InsertSession stores a new open session unless one is already open
func (m *MockSessionStore) InsertSession(ctx context.Context, s *database.Session) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.EmployeeID == s.EmployeeID && existing.IsOpen() {
			return apperr.ErrAlreadyCheckedIn
		}
	}
	m.sessions = append(m.sessions, *s)
	return nil
}

// CloseSession writes check-out fields if the session is still open
func (m *MockSessionStore) CloseSession(ctx context.Context, sessionID string, c database.SessionClose) (bool, error) {
	if m.CloseError != nil {
		return false, m.CloseError
	}
	if m.CloseConflicts {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.ID != sessionID || !s.IsOpen() {
			continue
		}
		if c.CheckOut.Before(s.CheckIn) {
			return false, apperr.ErrInvalidSessionTimes
		}
		checkOut, hours, earnings := c.CheckOut, c.HoursWorked, c.Earnings
		s.CheckOut = &checkOut
		s.HoursWorked = &hours
		s.Earnings = &earnings
		s.Paid = false
		return true, nil
	}
	return false, nil
}

// StreamSessions yields matching sessions ordered by check-in
func (m *MockSessionStore) StreamSessions(ctx context.Context, f database.SessionFilter) iter.Seq2[database.Session, error] {
	return func(yield func(database.Session, error) bool) {
		if m.StreamError != nil {
			yield(database.Session{}, m.StreamError)
			return
		}
		m.mu.Lock()
		var out []database.Session
		for _, s := range m.sessions {
			if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
				continue
			}
			if f.Paid != nil && s.Paid != *f.Paid {
				continue
			}
			if f.OpenOnly && !s.IsOpen() {
				continue
			}
			out = append(out, s)
		}
		m.mu.Unlock()

		slices.SortStableFunc(out, func(a, b database.Session) int { return a.CheckIn.Compare(b.CheckIn) })
		for _, s := range out {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// MarkPaid sets paid on every unpaid session of the employee
func (m *MockSessionStore) MarkPaid(ctx context.Context, employeeID string) (int64, error) {
	if m.MarkPaidError != nil {
		return 0, m.MarkPaidError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.sessions {
		if m.sessions[i].EmployeeID == employeeID && !m.sessions[i].Paid {
			m.sessions[i].Paid = true
			n++
		}
	}
	return n, nil
}
