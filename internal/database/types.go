package database

import (
	"time"

	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// Identity is the shape shared by employers and employees.
type Identity struct {
	ID             string
	Role           auth.Role
	Username       string
	Email          string
	PasswordHash   string
	FaceDescriptor facematch.Descriptor // nil when no face was registered
	CreatedAt      time.Time
}

// HasDescriptor reports whether face login is available for this identity.
func (i *Identity) HasDescriptor() bool {
	return len(i.FaceDescriptor) > 0
}

// Employer owns employees and pays their sessions.
type Employer struct {
	Identity
}

// Employee works shifts for one employer at an hourly rate.
type Employee struct {
	Identity
	EmployerID string
	HourlyRate float64
}

// Session is one attendance shift. CheckOut is nil while the session is open.
type Session struct {
	ID          string
	EmployeeID  string
	CheckIn     time.Time
	CheckOut    *time.Time
	HoursWorked *float64
	Earnings    *float64
	Paid        bool
}

// IsOpen reports whether the employee is still checked in on this session.
func (s *Session) IsOpen() bool {
	return s.CheckOut == nil
}

// SessionClose carries the fields written once at check-out.
type SessionClose struct {
	CheckOut    time.Time
	HoursWorked float64
	Earnings    float64
}

// SessionFilter narrows a session stream. Zero values mean no filter.
type SessionFilter struct {
	EmployeeID string
	Paid       *bool
	OpenOnly   bool
}
