// Package ledger manages the attendance session lifecycle of employees:
// check-in, check-out, summaries and payment marking.
//
// Each employee is either checked out (no open session) or has exactly one open
// session. The ledger never assumes it is the only writer; the store enforces the
// open-session invariant atomically and the ledger reports the resulting conflict.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// Ledger records attendance sessions for employees.
type Ledger struct {
	sessions  database.SessionStore
	tolerance float64
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a ledger that verifies faces within tolerance.
func New(sessions database.SessionStore, tolerance float64, opts ...Option) *Ledger {
	l := &Ledger{
		sessions:  sessions,
		tolerance: tolerance,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckOutResult is what a completed session reports back.
type CheckOutResult struct {
	Session     database.Session
	HoursWorked float64
	Earnings    float64
}

// Summary aggregates every session of one employee.
type Summary struct {
	TotalHoursWorked float64
	TotalEarnings    float64
	CurrentlyWorking bool
	LastCheckIn      *time.Time
	LastCheckOut     *time.Time
}

// Standing is the employer's view of an employee: unpaid work and current status.
type Standing struct {
	Working             bool
	LastCheckIn         *time.Time
	TotalUnpaidEarnings float64
}

// roundMoney rounds the exact binary value to two decimals, ties to even.
// Shifts in multiples of 7.5 minutes land on exact ties (2.125 -> 2.12).
func roundMoney(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', constants.MoneyDecimals, 64), 64)
	return r
}

// verifyFace compares the submitted descriptor with the employee's own stored one.
func (l *Ledger) verifyFace(ctx context.Context, employee *database.Employee, d facematch.Descriptor) error {
	if !employee.HasDescriptor() {
		return apperr.ErrNoDescriptor
	}
	ok, err := facematch.Verify(d, employee.FaceDescriptor, l.tolerance)
	if err != nil {
		return err
	}
	if !ok {
		l.logger.WarnContext(ctx, "attendance face mismatch", "employee_id", employee.ID)
		return apperr.ErrFaceMismatch
	}
	return nil
}

// CheckIn opens a session for the employee after a 1:1 face verification.
func (l *Ledger) CheckIn(ctx context.Context, employee *database.Employee, d facematch.Descriptor) (*database.Session, error) {
	if err := l.verifyFace(ctx, employee, d); err != nil {
		return nil, err
	}

	open, err := l.sessions.FindOpenSession(ctx, employee.ID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open != nil {
		return nil, apperr.ErrAlreadyCheckedIn
	}

	s := &database.Session{
		ID:         uuid.NewString(),
		EmployeeID: employee.ID,
		CheckIn:    l.now().UTC(),
	}
	// A concurrent check-in can still win between the lookup and the insert;
	// the store rejects the loser with ErrAlreadyCheckedIn.
	if err := l.sessions.InsertSession(ctx, s); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "checked in", "employee_id", employee.ID, "session_id", s.ID)
	return s, nil
}

// CheckOut closes the employee's open session and computes hours and earnings.
func (l *Ledger) CheckOut(ctx context.Context, employee *database.Employee, d facematch.Descriptor) (*CheckOutResult, error) {
	if err := l.verifyFace(ctx, employee, d); err != nil {
		return nil, err
	}

	open, err := l.sessions.FindOpenSession(ctx, employee.ID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open == nil {
		return nil, apperr.ErrNoOpenSession
	}

	checkOut := l.now().UTC()
	if checkOut.Before(open.CheckIn) {
		// The clock moved backwards; the store requires check_out >= check_in.
		l.logger.WarnContext(ctx, "check-out precedes check-in, closing with zero hours",
			"employee_id", employee.ID, "session_id", open.ID)
		checkOut = open.CheckIn
	}
	hours := checkOut.Sub(open.CheckIn).Hours()
	closed := database.SessionClose{
		CheckOut:    checkOut,
		HoursWorked: roundMoney(hours),
		Earnings:    roundMoney(hours * employee.HourlyRate),
	}

	ok, err := l.sessions.CloseSession(ctx, open.ID, closed)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	if !ok {
		return nil, apperr.ErrConcurrentModification
	}

	s := *open
	s.CheckOut = &closed.CheckOut
	s.HoursWorked = &closed.HoursWorked
	s.Earnings = &closed.Earnings
	s.Paid = false

	l.logger.InfoContext(ctx, "checked out",
		"employee_id", employee.ID, "session_id", s.ID, "hours", closed.HoursWorked, "earnings", closed.Earnings)
	return &CheckOutResult{Session: s, HoursWorked: closed.HoursWorked, Earnings: closed.Earnings}, nil
}

func latest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}

// Summarize aggregates all sessions of the employee.
func (l *Ledger) Summarize(ctx context.Context, employeeID string) (Summary, error) {
	var sum Summary
	for s, err := range l.sessions.StreamSessions(ctx, database.SessionFilter{EmployeeID: employeeID}) {
		if err != nil {
			return Summary{}, fmt.Errorf("stream sessions: %w", err)
		}
		if s.HoursWorked != nil {
			sum.TotalHoursWorked += *s.HoursWorked
		}
		if s.Earnings != nil {
			sum.TotalEarnings += *s.Earnings
		}
		if s.IsOpen() {
			sum.CurrentlyWorking = true
		}
		sum.LastCheckIn = latest(sum.LastCheckIn, s.CheckIn)
		if s.CheckOut != nil {
			sum.LastCheckOut = latest(sum.LastCheckOut, *s.CheckOut)
		}
	}
	sum.TotalHoursWorked = roundMoney(sum.TotalHoursWorked)
	sum.TotalEarnings = roundMoney(sum.TotalEarnings)
	return sum, nil
}

// History returns the employee's sessions ordered by check-in, optionally filtered by paid state.
func (l *Ledger) History(ctx context.Context, employeeID string, paid *bool) ([]database.Session, error) {
	sessions := []database.Session{}
	for s, err := range l.sessions.StreamSessions(ctx, database.SessionFilter{EmployeeID: employeeID, Paid: paid}) {
		if err != nil {
			return nil, fmt.Errorf("stream sessions: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Standing summarizes unpaid work for the employer roster.
func (l *Ledger) Standing(ctx context.Context, employeeID string) (Standing, error) {
	var st Standing
	unpaid := false
	for s, err := range l.sessions.StreamSessions(ctx, database.SessionFilter{EmployeeID: employeeID, Paid: &unpaid}) {
		if err != nil {
			return Standing{}, fmt.Errorf("stream sessions: %w", err)
		}
		if s.Earnings != nil {
			st.TotalUnpaidEarnings += *s.Earnings
		}
	}
	st.TotalUnpaidEarnings = roundMoney(st.TotalUnpaidEarnings)

	open, err := l.sessions.FindOpenSession(ctx, employeeID)
	if err != nil {
		return Standing{}, fmt.Errorf("find open session: %w", err)
	}
	if open != nil {
		st.Working = true
		checkIn := open.CheckIn
		st.LastCheckIn = &checkIn
	}
	return st, nil
}

// MarkPaid marks every unpaid session of the employee as paid, open ones included.
// Callers must have checked that the employer owns the employee.
func (l *Ledger) MarkPaid(ctx context.Context, employeeID string) (int64, error) {
	n, err := l.sessions.MarkPaid(ctx, employeeID)
	if err != nil {
		return 0, fmt.Errorf("mark sessions paid: %w", err)
	}
	l.logger.InfoContext(ctx, "sessions marked paid", "employee_id", employeeID, "count", n)
	return n, nil
}
