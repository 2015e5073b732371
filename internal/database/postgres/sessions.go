package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage.
// The partial unique index attendance_sessions_open_key keeps one open session per employee.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

var sessionColumns = []string{"id", "employee_id", "check_in", "check_out", "hours_worked", "earnings", "paid"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func scanSession(scanner interface{ Scan(...any) error }) (database.Session, error) {
	var s database.Session
	var checkOut sql.NullTime
	var hours, earnings sql.NullFloat64
	if err := scanner.Scan(&s.ID, &s.EmployeeID, &s.CheckIn, &checkOut, &hours, &earnings, &s.Paid); err != nil {
		return s, err
	}
	s.CheckIn = s.CheckIn.UTC()
	if checkOut.Valid {
		t := checkOut.Time.UTC()
		s.CheckOut = &t
	}
	if hours.Valid {
		s.HoursWorked = &hours.Float64
	}
	if earnings.Valid {
		s.Earnings = &earnings.Float64
	}
	return s, nil
}

// FindOpenSession returns the employee's open session, or nil
func (r *SessionRepository) FindOpenSession(ctx context.Context, employeeID string) (*database.Session, error) {
	if uuid.Validate(employeeID) != nil {
		return nil, nil
	}
	query, args, err := psql.Select(sessionColumns...).
		From("attendance_sessions").
		Where(sq.Eq{"employee_id": employeeID, "check_out": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build open session query: %w", err)
	}

	s, err := scanSession(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open session: %w", err)
	}
	return &s, nil
}

// InsertSession stores a new open session
func (r *SessionRepository) InsertSession(ctx context.Context, s *database.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_sessions (id, employee_id, check_in, paid)
		VALUES ($1, $2, $3, FALSE)
	`, s.ID, s.EmployeeID, s.CheckIn)
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyCheckedIn
	}
	if isForeignKeyViolation(err) {
		return apperr.ErrEmployeeNotFound
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession writes the check-out fields in one conditional update
func (r *SessionRepository) CloseSession(ctx context.Context, sessionID string, c database.SessionClose) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance_sessions
		SET check_out = $2, hours_worked = $3, earnings = $4, paid = FALSE
		WHERE id = $1 AND check_out IS NULL
	`, sessionID, c.CheckOut, c.HoursWorked, c.Earnings)
	if isCheckViolation(err) {
		return false, apperr.ErrInvalidSessionTimes
	}
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}

// StreamSessions yields sessions matching the filter ordered by check-in
func (r *SessionRepository) StreamSessions(ctx context.Context, f database.SessionFilter) iter.Seq2[database.Session, error] {
	return func(yield func(database.Session, error) bool) {
		q := psql.Select(sessionColumns...).From("attendance_sessions").OrderBy("check_in", "id")
		if f.EmployeeID != "" {
			if uuid.Validate(f.EmployeeID) != nil {
				return
			}
			q = q.Where(sq.Eq{"employee_id": f.EmployeeID})
		}
		if f.Paid != nil {
			q = q.Where(sq.Eq{"paid": *f.Paid})
		}
		if f.OpenOnly {
			q = q.Where(sq.Eq{"check_out": nil})
		}

		query, args, err := q.ToSql()
		if err != nil {
			yield(database.Session{}, fmt.Errorf("build sessions query: %w", err))
			return
		}
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(database.Session{}, fmt.Errorf("query sessions: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSession(rows)
			if err != nil {
				yield(database.Session{}, fmt.Errorf("scan session: %w", err))
				return
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.Session{}, fmt.Errorf("iterate sessions: %w", err))
		}
	}
}

// MarkPaid sets paid on every unpaid session of the employee, open ones included
func (r *SessionRepository) MarkPaid(ctx context.Context, employeeID string) (int64, error) {
	if uuid.Validate(employeeID) != nil {
		return 0, nil
	}
	result, err := r.pool.Exec(ctx,
		"UPDATE attendance_sessions SET paid = TRUE WHERE employee_id = $1 AND paid = FALSE", employeeID)
	if err != nil {
		return 0, fmt.Errorf("mark sessions paid: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

var _ database.SessionStore = (*SessionRepository)(nil)
