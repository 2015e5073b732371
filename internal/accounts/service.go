// Package accounts registers employers and employees, authenticates them by password
// or face, and runs the attendance flows that start from an uploaded image.
package accounts

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/descriptor"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/ledger"
)

// Service implements the account and attendance use cases.
type Service struct {
	identities database.IdentityWriter
	extractor  descriptor.Extractor
	matcher    facematch.Matcher
	tokens     *auth.TokenService
	ledger     *ledger.Ledger
	face       config.FaceConfig
	logger     *slog.Logger
}

// NewService wires the account service. The match policy comes from face config.
func NewService(
	identities database.IdentityWriter,
	extractor descriptor.Extractor,
	tokens *auth.TokenService,
	l *ledger.Ledger,
	face config.FaceConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identities: identities,
		extractor:  extractor,
		matcher:    facematch.NewMatcher(face.MatchPolicy),
		tokens:     tokens,
		ledger:     l,
		face:       face,
		logger:     logger,
	}
}

// RegisterEmployerInput is the employer registration form.
type RegisterEmployerInput struct {
	Username string
	Email    string
	Password string
	Image    []byte // optional; without it face login is unavailable
}

// RegisterEmployeeInput is the employee registration form.
type RegisterEmployeeInput struct {
	Username   string
	Email      string
	Password   string
	EmployerID string
	HourlyRate float64
	Image      []byte
}

// LoginResult is returned by every successful login.
type LoginResult struct {
	AccessToken string
	Role        auth.Role
	SubjectID   string
	Username    string
	Email       string
}

// RosterEntry is one employee as seen by their employer.
type RosterEntry struct {
	Employee database.Employee
	Standing ledger.Standing
}

func validationError(msg string) error {
	return apperr.New(apperr.ErrValidation, msg)
}

// validateCredentials normalizes and checks the fields shared by both registration forms.
func validateCredentials(username, email, password string) (string, string, error) {
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	switch {
	case username == "":
		return "", "", validationError("username is required")
	case email == "" || !ValidEmail(email):
		return "", "", validationError("a valid email is required")
	case password == "":
		return "", "", validationError("password is required")
	case len(password) > auth.MaxPasswordBytes:
		return "", "", validationError(fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return username, email, nil
}

// emailTaken checks uniqueness across employers and employees.
func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	employer, err := s.identities.FindEmployerByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("find employer by email: %w", err)
	}
	if employer != nil {
		return true, nil
	}
	employee, err := s.identities.FindEmployeeByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("find employee by email: %w", err)
	}
	return employee != nil, nil
}

// candidates returns the descriptors a matcher should scan for one role.
// Under the nearest policy an indexing store narrows the scan to a ranked short list.
func (s *Service) candidates(ctx context.Context, role auth.Role, d facematch.Descriptor) iter.Seq2[facematch.Candidate, error] {
	if s.face.MatchPolicy == constants.MatchPolicyNearest {
		if nf, ok := s.identities.(database.NearestFinder); ok {
			return nf.NearestDescriptors(ctx, role, d, database.NearestCandidates)
		}
	}
	return s.identities.StreamDescriptors(ctx, role)
}

// identify runs a 1:N match over the given roles in order.
func (s *Service) identify(ctx context.Context, d facematch.Descriptor, tolerance float64, roles ...auth.Role) (facematch.Candidate, auth.Role, bool, error) {
	for _, role := range roles {
		c, ok, err := s.matcher.Match(ctx, d, s.candidates(ctx, role, d), tolerance)
		if err != nil {
			return facematch.Candidate{}, "", false, fmt.Errorf("match %s faces: %w", role, err)
		}
		if ok {
			return c, role, true, nil
		}
	}
	return facematch.Candidate{}, "", false, nil
}

// extractOptional extracts a descriptor when an image was supplied.
func (s *Service) extractOptional(ctx context.Context, image []byte) (facematch.Descriptor, error) {
	if len(image) == 0 {
		return nil, nil
	}
	return s.extractor.Extract(ctx, image)
}

// RegisterEmployer creates an employer. A face already registered to anyone is rejected.
func (s *Service) RegisterEmployer(ctx context.Context, in RegisterEmployerInput) (string, error) {
	username, email, err := validateCredentials(in.Username, in.Email, in.Password)
	if err != nil {
		return "", err
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.ErrEmailTaken
	}

	d, err := s.extractOptional(ctx, in.Image)
	if err != nil {
		return "", err
	}
	if d != nil {
		_, _, dup, err := s.identify(ctx, d, s.face.DuplicateTolerance, auth.RoleEmployer, auth.RoleEmployee)
		if err != nil {
			return "", err
		}
		if dup {
			return "", apperr.ErrFaceTaken
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	e := &database.Employer{Identity: database.Identity{
		ID:             uuid.NewString(),
		Role:           auth.RoleEmployer,
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		FaceDescriptor: d,
	}}
	if err := s.identities.InsertEmployer(ctx, e); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "employer registered", "employer_id", e.ID, "face", d != nil)
	return e.ID, nil
}

// RegisterEmployee creates an employee under an existing employer.
func (s *Service) RegisterEmployee(ctx context.Context, in RegisterEmployeeInput) (string, error) {
	username, email, err := validateCredentials(in.Username, in.Email, in.Password)
	if err != nil {
		return "", err
	}
	if in.EmployerID == "" {
		return "", validationError("employer_id is required")
	}
	if in.HourlyRate < 0 || math.IsNaN(in.HourlyRate) || math.IsInf(in.HourlyRate, 0) {
		return "", validationError("hourly_rate must be a non-negative number")
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.ErrEmailTaken
	}

	employer, err := s.identities.FindEmployer(ctx, in.EmployerID)
	if err != nil {
		return "", fmt.Errorf("find employer: %w", err)
	}
	if employer == nil {
		return "", apperr.ErrEmployerNotFound
	}

	d, err := s.extractOptional(ctx, in.Image)
	if err != nil {
		return "", err
	}
	if d != nil && s.face.EmployeeDedup {
		_, _, dup, err := s.identify(ctx, d, s.face.DuplicateTolerance, auth.RoleEmployee, auth.RoleEmployer)
		if err != nil {
			return "", err
		}
		if dup {
			return "", apperr.ErrFaceTaken
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	e := &database.Employee{
		Identity: database.Identity{
			ID:             uuid.NewString(),
			Role:           auth.RoleEmployee,
			Username:       username,
			Email:          email,
			PasswordHash:   hash,
			FaceDescriptor: d,
		},
		EmployerID: employer.ID,
		HourlyRate: in.HourlyRate,
	}
	if err := s.identities.InsertEmployee(ctx, e); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "employee registered", "employee_id", e.ID, "employer_id", employer.ID, "face", d != nil)
	return e.ID, nil
}

func (s *Service) loginResult(identity database.Identity) (*LoginResult, error) {
	token, err := s.tokens.Issue(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		Role:        identity.Role,
		SubjectID:   identity.ID,
		Username:    identity.Username,
		Email:       identity.Email,
	}, nil
}

// LoginPassword authenticates by email and password. Employers are checked first.
func (s *Service) LoginPassword(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	var identity *database.Identity
	employer, err := s.identities.FindEmployerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find employer by email: %w", err)
	}
	if employer != nil {
		identity = &employer.Identity
	} else {
		employee, err := s.identities.FindEmployeeByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("find employee by email: %w", err)
		}
		if employee != nil {
			identity = &employee.Identity
		}
	}

	if identity == nil || !auth.CheckPassword(identity.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	return s.loginResult(*identity)
}

// LoginFace identifies the face in image among the given roles, in order.
func (s *Service) LoginFace(ctx context.Context, image []byte, roles ...auth.Role) (*LoginResult, error) {
	if len(image) == 0 {
		return nil, validationError("image is required")
	}
	d, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, err
	}

	c, role, ok, err := s.identify(ctx, d, s.face.LoginTolerance, roles...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrFaceNotRecognized
	}

	var identity database.Identity
	switch role {
	case auth.RoleEmployer:
		e, err := s.Employer(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		identity = e.Identity
	default:
		e, err := s.Employee(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		identity = e.Identity
	}
	return s.loginResult(identity)
}

// Employer returns an employer or apperr.ErrEmployerNotFound.
func (s *Service) Employer(ctx context.Context, id string) (*database.Employer, error) {
	e, err := s.identities.FindEmployer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find employer: %w", err)
	}
	if e == nil {
		return nil, apperr.ErrEmployerNotFound
	}
	return e, nil
}

// Employee returns an employee or apperr.ErrEmployeeNotFound.
func (s *Service) Employee(ctx context.Context, id string) (*database.Employee, error) {
	e, err := s.identities.FindEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	if e == nil {
		return nil, apperr.ErrEmployeeNotFound
	}
	return e, nil
}

// Roster lists an employer's employees with their unpaid earnings and status.
func (s *Service) Roster(ctx context.Context, employerID string) ([]RosterEntry, error) {
	employees, err := s.identities.ListEmployees(ctx, employerID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	entries := make([]RosterEntry, 0, len(employees))
	for _, e := range employees {
		st, err := s.ledger.Standing(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, RosterEntry{Employee: e, Standing: st})
	}
	return entries, nil
}

// PayEmployee marks all unpaid sessions of an employee paid, if employerID owns them.
func (s *Service) PayEmployee(ctx context.Context, employerID, employeeID string) (int64, error) {
	e, err := s.Employee(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	if e.EmployerID != employerID {
		return 0, apperr.ErrNotOwner
	}
	return s.ledger.MarkPaid(ctx, e.ID)
}

// CheckIn extracts the face in image and opens a session for the employee.
func (s *Service) CheckIn(ctx context.Context, employeeID string, image []byte) (*database.Session, error) {
	e, d, err := s.attendanceSubject(ctx, employeeID, image)
	if err != nil {
		return nil, err
	}
	return s.ledger.CheckIn(ctx, e, d)
}

// CheckOut extracts the face in image and closes the employee's open session.
func (s *Service) CheckOut(ctx context.Context, employeeID string, image []byte) (*ledger.CheckOutResult, error) {
	e, d, err := s.attendanceSubject(ctx, employeeID, image)
	if err != nil {
		return nil, err
	}
	return s.ledger.CheckOut(ctx, e, d)
}

func (s *Service) attendanceSubject(ctx context.Context, employeeID string, image []byte) (*database.Employee, facematch.Descriptor, error) {
	e, err := s.Employee(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	if !e.HasDescriptor() {
		return nil, nil, apperr.ErrNoDescriptor
	}
	if len(image) == 0 {
		return nil, nil, validationError("image is required")
	}
	d, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, nil, err
	}
	return e, d, nil
}

// Ledger exposes the session ledger for read-only views.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}
