package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/accounts"
)

// EmployerHandler handles employer registration, roster and payments
type EmployerHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewEmployerHandler creates a new employer handler
func NewEmployerHandler(svc *accounts.Service, logger *slog.Logger) *EmployerHandler {
	return &EmployerHandler{
		accounts: svc,
		logger:   logger,
	}
}

// EmployerDetailsResponse describes the calling employer
type EmployerDetailsResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RosterEmployeeResponse is one employee in the employer's roster
type RosterEmployeeResponse struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	HourlyRate          float64    `json:"hourly_rate"`
	Status              string     `json:"status"`
	LastCheckIn         *time.Time `json:"last_check_in"`
	TotalUnpaidEarnings float64    `json:"total_unpaid_earnings"`
}

// PayResponse reports how many sessions were marked paid
type PayResponse struct {
	Message       string `json:"message"`
	ModifiedCount int64  `json:"modified_count"`
}

// Register handles employer registration (multipart form)
func (h *EmployerHandler) Register(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id, err := h.accounts.RegisterEmployer(r.Context(), accounts.RegisterEmployerInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Image:    image,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, RegisterResponse{Message: "Employer registered successfully", ID: id})
}

// Details returns the calling employer's profile
func (h *EmployerHandler) Details(w http.ResponseWriter, r *http.Request) {
	e, err := h.accounts.Employer(r.Context(), principal(r).SubjectID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, EmployerDetailsResponse{ID: e.ID, Username: e.Username, Email: e.Email})
}

// Employees lists the calling employer's employees with their unpaid earnings
func (h *EmployerHandler) Employees(w http.ResponseWriter, r *http.Request) {
	roster, err := h.accounts.Roster(r.Context(), principal(r).SubjectID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := make([]RosterEmployeeResponse, 0, len(roster))
	for _, entry := range roster {
		status := "Not Working"
		if entry.Standing.Working {
			status = "Working"
		}
		out = append(out, RosterEmployeeResponse{
			ID:                  entry.Employee.ID,
			Username:            entry.Employee.Username,
			Email:               entry.Employee.Email,
			HourlyRate:          entry.Employee.HourlyRate,
			Status:              status,
			LastCheckIn:         entry.Standing.LastCheckIn,
			TotalUnpaidEarnings: entry.Standing.TotalUnpaidEarnings,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// PayEmployee marks every unpaid session of one of the caller's employees as paid
func (h *EmployerHandler) PayEmployee(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	n, err := h.accounts.PayEmployee(r.Context(), principal(r).SubjectID, employeeID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, PayResponse{
		Message:       fmt.Sprintf("%d sessions marked as paid.", n),
		ModifiedCount: n,
	})
}
