package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/accounts"
	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/database"
)

// EmployeeHandler handles employee registration and self-service views
type EmployeeHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewEmployeeHandler creates a new employee handler
func NewEmployeeHandler(svc *accounts.Service, logger *slog.Logger) *EmployeeHandler {
	return &EmployeeHandler{
		accounts: svc,
		logger:   logger,
	}
}

// RegisterResponse is returned after a successful registration
type RegisterResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// EmployeeDetailsResponse describes the calling employee
type EmployeeDetailsResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	HourlyRate float64 `json:"hourly_rate"`
	EmployerID string  `json:"employer_id"`
}

// SummaryResponse aggregates all sessions of the calling employee
type SummaryResponse struct {
	TotalHoursWorked float64    `json:"total_hours_worked"`
	TotalEarnings    float64    `json:"total_earnings"`
	CurrentlyWorking bool       `json:"currently_working"`
	LastCheckIn      *time.Time `json:"last_check_in"`
	LastCheckOut     *time.Time `json:"last_check_out"`
}

// SessionResponse is one attendance session
type SessionResponse struct {
	ID          string     `json:"id"`
	CheckIn     time.Time  `json:"check_in"`
	CheckOut    *time.Time `json:"check_out"`
	HoursWorked *float64   `json:"hours_worked"`
	Earnings    *float64   `json:"earnings"`
	Paid        bool       `json:"paid"`
}

func newSessionResponse(s database.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		CheckIn:     s.CheckIn,
		CheckOut:    s.CheckOut,
		HoursWorked: s.HoursWorked,
		Earnings:    s.Earnings,
		Paid:        s.Paid,
	}
}

// Register handles employee registration (multipart form)
func (h *EmployeeHandler) Register(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("hourly_rate")), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "hourly_rate must be a number")
		return
	}

	id, err := h.accounts.RegisterEmployee(r.Context(), accounts.RegisterEmployeeInput{
		Username:   r.FormValue("username"),
		Email:      r.FormValue("email"),
		Password:   r.FormValue("password"),
		EmployerID: strings.TrimSpace(r.FormValue("employer_id")),
		HourlyRate: rate,
		Image:      image,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, RegisterResponse{Message: "Employee registered successfully", ID: id})
}

// Details returns the calling employee's profile
func (h *EmployeeHandler) Details(w http.ResponseWriter, r *http.Request) {
	e, err := h.accounts.Employee(r.Context(), principal(r).SubjectID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, EmployeeDetailsResponse{
		ID:         e.ID,
		Username:   e.Username,
		Email:      e.Email,
		HourlyRate: e.HourlyRate,
		EmployerID: e.EmployerID,
	})
}

// Summary returns totals over all of the calling employee's sessions
func (h *EmployeeHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.accounts.Ledger().Summarize(r.Context(), principal(r).SubjectID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, SummaryResponse{
		TotalHoursWorked: sum.TotalHoursWorked,
		TotalEarnings:    sum.TotalEarnings,
		CurrentlyWorking: sum.CurrentlyWorking,
		LastCheckIn:      sum.LastCheckIn,
		LastCheckOut:     sum.LastCheckOut,
	})
}

// parsePaidFilter reads the optional ?paid=true|false query parameter.
func parsePaidFilter(r *http.Request) (*bool, error) {
	raw := r.URL.Query().Get("paid")
	if raw == "" {
		return nil, nil
	}
	paid, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "paid must be true or false")
	}
	return &paid, nil
}

// History lists the calling employee's sessions ordered by check-in
func (h *EmployeeHandler) History(w http.ResponseWriter, r *http.Request) {
	paid, err := parsePaidFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sessions, err := h.accounts.Ledger().History(r.Context(), principal(r).SubjectID, paid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionResponse(s))
	}
	respondJSON(w, http.StatusOK, out)
}
