package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var roles = []auth.Role{auth.RoleEmployer, auth.RoleEmployee}

// IdentityRepository stores employers and employees, with an optional in-memory
// HNSW index per role for nearest-descriptor search.
type IdentityRepository struct {
	pool          *Pool
	logger        *slog.Logger
	hnswIndexes   map[auth.Role]*database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Directory to persist HNSW graphs (optional)
	hnswMu        sync.RWMutex
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool, logger *slog.Logger) *IdentityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityRepository{pool: pool, logger: logger}
}

func tableFor(role auth.Role) (string, error) {
	switch role {
	case auth.RoleEmployer:
		return "employers", nil
	case auth.RoleEmployee:
		return "employees", nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// faceColumns converts a descriptor into the exact array and the pgvector column.
// The vector column is left NULL when the dimension does not fit the schema.
func faceColumns(d facematch.Descriptor) (any, any) {
	if len(d) == 0 {
		return nil, nil
	}
	arr := pq.Float64Array(d)
	if len(d) != constants.DescriptorDim {
		return arr, nil
	}
	return arr, pgvector.NewVector(d.Float32())
}

const employerColumns = `id, username, email, password_hash, face_descriptor, created_at`

const employeeColumns = `id, employer_id, username, email, password_hash, hourly_rate, face_descriptor, created_at`

func scanEmployer(scanner interface{ Scan(...any) error }) (*database.Employer, error) {
	var e database.Employer
	var desc pq.Float64Array
	if err := scanner.Scan(&e.ID, &e.Username, &e.Email, &e.PasswordHash, &desc, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Role = auth.RoleEmployer
	if len(desc) > 0 {
		e.FaceDescriptor = facematch.Descriptor(desc)
	}
	return &e, nil
}

func scanEmployee(scanner interface{ Scan(...any) error }) (*database.Employee, error) {
	var e database.Employee
	var desc pq.Float64Array
	if err := scanner.Scan(
		&e.ID, &e.EmployerID, &e.Username, &e.Email, &e.PasswordHash, &e.HourlyRate, &desc, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Role = auth.RoleEmployee
	if len(desc) > 0 {
		e.FaceDescriptor = facematch.Descriptor(desc)
	}
	return &e, nil
}

// FindEmployer retrieves an employer by ID.
func (r *IdentityRepository) FindEmployer(ctx context.Context, id string) (*database.Employer, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+employerColumns+` FROM employers WHERE id = $1`, id)
	e, err := scanEmployer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employer: %w", err)
	}
	return e, nil
}

// FindEmployee retrieves an employee by ID.
func (r *IdentityRepository) FindEmployee(ctx context.Context, id string) (*database.Employee, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// FindEmployerByEmail retrieves an employer by email, case-insensitively.
func (r *IdentityRepository) FindEmployerByEmail(ctx context.Context, email string) (*database.Employer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employerColumns+` FROM employers WHERE lower(email) = lower($1)`, email)
	e, err := scanEmployer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employer by email: %w", err)
	}
	return e, nil
}

// FindEmployeeByEmail retrieves an employee by email, case-insensitively.
func (r *IdentityRepository) FindEmployeeByEmail(ctx context.Context, email string) (*database.Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE lower(email) = lower($1)`, email)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee by email: %w", err)
	}
	return e, nil
}

// ListEmployees returns the employees of one employer ordered by username.
func (r *IdentityRepository) ListEmployees(ctx context.Context, employerID string) ([]database.Employee, error) {
	if uuid.Validate(employerID) != nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employer_id = $1 ORDER BY username, id`, employerID)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []database.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

// StreamDescriptors yields every registered descriptor of one role in registration order.
// Rows are read lazily so a first-match scan stops reading once it has a hit.
func (r *IdentityRepository) StreamDescriptors(ctx context.Context, role auth.Role) iter.Seq2[facematch.Candidate, error] {
	return func(yield func(facematch.Candidate, error) bool) {
		table, err := tableFor(role)
		if err != nil {
			yield(facematch.Candidate{}, err)
			return
		}
		rows, err := r.pool.Query(ctx,
			`SELECT id, face_descriptor FROM `+table+` WHERE face_descriptor IS NOT NULL ORDER BY created_at, id`)
		if err != nil {
			yield(facematch.Candidate{}, fmt.Errorf("query %s descriptors: %w", role, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var c facematch.Candidate
			var desc pq.Float64Array
			if err := rows.Scan(&c.ID, &desc); err != nil {
				yield(facematch.Candidate{}, fmt.Errorf("scan %s descriptor: %w", role, err))
				return
			}
			c.Descriptor = facematch.Descriptor(desc)
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(facematch.Candidate{}, fmt.Errorf("iterate %s descriptors: %w", role, err))
		}
	}
}

func (r *IdentityRepository) collectDescriptors(ctx context.Context, role auth.Role) ([]facematch.Candidate, error) {
	var out []facematch.Candidate
	for c, err := range r.StreamDescriptors(ctx, role) {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// InsertEmployer stores a new employer.
func (r *IdentityRepository) InsertEmployer(ctx context.Context, e *database.Employer) error {
	desc, vec := faceColumns(e.FaceDescriptor)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO employers (id, username, email, password_hash, face_descriptor, face_vector)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.Username, e.Email, e.PasswordHash, desc, vec).Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert employer: %w", err)
	}
	e.Role = auth.RoleEmployer
	r.indexDescriptor(auth.RoleEmployer, e.ID, e.FaceDescriptor)
	return nil
}

// InsertEmployee stores a new employee.
func (r *IdentityRepository) InsertEmployee(ctx context.Context, e *database.Employee) error {
	desc, vec := faceColumns(e.FaceDescriptor)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO employees (id, employer_id, username, email, password_hash, hourly_rate, face_descriptor, face_vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.EmployerID, e.Username, e.Email, e.PasswordHash, e.HourlyRate, desc, vec).Scan(&e.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return apperr.ErrEmailTaken
	case isForeignKeyViolation(err):
		return apperr.ErrEmployerNotFound
	case err != nil:
		return fmt.Errorf("insert employee: %w", err)
	}
	e.Role = auth.RoleEmployee
	r.indexDescriptor(auth.RoleEmployee, e.ID, e.FaceDescriptor)
	return nil
}

func (r *IdentityRepository) indexDescriptor(role auth.Role, id string, d facematch.Descriptor) {
	if len(d) == 0 {
		return
	}
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if idx := r.hnswIndexes[role]; r.hnswEnabled && idx != nil {
		idx.Add(facematch.Candidate{ID: id, Descriptor: d})
	}
}

// NearestDescriptors yields up to k descriptors of one role closest to d.
// Uses the in-memory HNSW index if enabled, otherwise the pgvector index.
func (r *IdentityRepository) NearestDescriptors(
	ctx context.Context, role auth.Role, d facematch.Descriptor, k int,
) iter.Seq2[facematch.Candidate, error] {
	r.hnswMu.RLock()
	idx := r.hnswIndexes[role]
	enabled := r.hnswEnabled && idx != nil
	r.hnswMu.RUnlock()

	if enabled {
		return func(yield func(facematch.Candidate, error) bool) {
			found, err := idx.Search(d, k)
			if err != nil {
				yield(facematch.Candidate{}, fmt.Errorf("HNSW search: %w", err))
				return
			}
			for _, c := range found {
				if !yield(c, nil) {
					return
				}
			}
		}
	}
	return r.nearestPostgres(ctx, role, d, k)
}

// nearestPostgres ranks by L2 distance with pgvector, raising ef_search for better recall.
func (r *IdentityRepository) nearestPostgres(
	ctx context.Context, role auth.Role, d facematch.Descriptor, k int,
) iter.Seq2[facematch.Candidate, error] {
	return func(yield func(facematch.Candidate, error) bool) {
		table, err := tableFor(role)
		if err != nil {
			yield(facematch.Candidate{}, err)
			return
		}
		if len(d) != constants.DescriptorDim {
			yield(facematch.Candidate{}, fmt.Errorf("%w: vector search needs %d dimensions, got %d",
				facematch.ErrMalformedDescriptor, constants.DescriptorDim, len(d)))
			return
		}

		tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			yield(facematch.Candidate{}, err)
			return
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
			yield(facematch.Candidate{}, fmt.Errorf("set ef_search: %w", err))
			return
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, face_descriptor FROM `+table+`
			WHERE face_vector IS NOT NULL
			ORDER BY face_vector <-> $1
			LIMIT $2
		`, pgvector.NewVector(d.Float32()), k)
		if err != nil {
			yield(facematch.Candidate{}, fmt.Errorf("query nearest %s: %w", role, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var c facematch.Candidate
			var desc pq.Float64Array
			if err := rows.Scan(&c.ID, &desc); err != nil {
				yield(facematch.Candidate{}, fmt.Errorf("scan nearest %s: %w", role, err))
				return
			}
			c.Descriptor = facematch.Descriptor(desc)
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(facematch.Candidate{}, fmt.Errorf("iterate nearest %s: %w", role, err))
		}
	}
}

func indexFile(dir string, role auth.Role) string {
	return filepath.Join(dir, string(role)+".hnsw")
}

// EnableHNSW loads or builds one in-memory HNSW index per role.
// If indexPath is provided, graphs are loaded from it first and saved after building.
// This should be called once at startup.
func (r *IdentityRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	indexes := make(map[auth.Role]*database.HNSWIndex, len(roles))
	for _, role := range roles {
		candidates, err := r.collectDescriptors(ctx, role)
		if err != nil {
			return fmt.Errorf("failed to load %s descriptors: %w", role, err)
		}

		idx := database.NewHNSWIndex()
		loaded := false
		if indexPath != "" {
			if err := idx.Load(indexFile(indexPath, role), candidates); err != nil {
				r.logger.InfoContext(ctx, "HNSW index not loaded, rebuilding", "role", role, "error", err)
			} else {
				loaded = true
			}
		}
		if !loaded {
			idx.Build(candidates)
		}
		indexes[role] = idx
		r.logger.InfoContext(ctx, "HNSW index ready", "role", role, "count", idx.Count(), "from_disk", loaded)
	}

	r.hnswMu.Lock()
	r.hnswIndexes = indexes
	r.hnswIndexPath = indexPath
	r.hnswEnabled = true
	r.hnswMu.Unlock()

	if indexPath != "" {
		if err := r.SaveHNSWIndex(); err != nil {
			r.logger.WarnContext(ctx, "failed to save HNSW index", "error", err)
		}
	}
	return nil
}

// DisableHNSW falls back to pgvector queries.
func (r *IdentityRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndexes = nil
}

// HNSWCount returns the number of descriptors across all role indexes.
func (r *IdentityRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	n := 0
	for _, idx := range r.hnswIndexes {
		n += idx.Count()
	}
	return n
}

// RebuildHNSW rebuilds the HNSW indexes from PostgreSQL data.
func (r *IdentityRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.Lock()
	indexPath := r.hnswIndexPath
	r.hnswIndexes = nil
	r.hnswMu.Unlock()

	if indexPath != "" {
		for _, role := range roles {
			_ = os.Remove(indexFile(indexPath, role))
		}
	}
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current indexes to disk (if path configured).
func (r *IdentityRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndexes == nil {
		return nil
	}
	if err := os.MkdirAll(r.hnswIndexPath, 0o750); err != nil {
		return fmt.Errorf("create HNSW index directory: %w", err)
	}
	for role, idx := range r.hnswIndexes {
		if err := idx.Save(indexFile(r.hnswIndexPath, role)); err != nil {
			return fmt.Errorf("saving %s HNSW index: %w", role, err)
		}
	}
	return nil
}

var (
	_ database.IdentityWriter = (*IdentityRepository)(nil)
	_ database.NearestFinder  = (*IdentityRepository)(nil)
	_ database.HNSWRebuilder  = (*IdentityRepository)(nil)
)
