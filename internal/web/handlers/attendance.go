package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/accounts"
)

// AttendanceHandler handles face-verified check-in and check-out
type AttendanceHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *accounts.Service, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		accounts: svc,
		logger:   logger,
	}
}

// CheckInResponse confirms an opened session
type CheckInResponse struct {
	Message string    `json:"message"`
	CheckIn time.Time `json:"check_in"`
}

// CheckOutResponse reports a closed session
type CheckOutResponse struct {
	Message     string    `json:"message"`
	HoursWorked float64   `json:"hours_worked"`
	Earnings    float64   `json:"earnings"`
	CheckOut    time.Time `json:"check_out"`
}

// CheckIn opens a session for the calling employee
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	s, err := h.accounts.CheckIn(r.Context(), principal(r).SubjectID, image)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckInResponse{Message: "Check-in successful", CheckIn: s.CheckIn})
}

// CheckOut closes the calling employee's open session
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.CheckOut(r.Context(), principal(r).SubjectID, image)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckOutResponse{
		Message:     "Check-out successful",
		HoursWorked: res.HoursWorked,
		Earnings:    res.Earnings,
		CheckOut:    *res.Session.CheckOut,
	})
}
