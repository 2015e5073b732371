package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/descriptor"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error kind to an HTTP status.
// Attendance state conflicts keep the statuses clients already rely on.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNoOpenSession):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyCheckedIn):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError classifies err and writes the matching response.
// Unclassified errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, status, "internal server error")
		return
	}

	if errors.Is(err, apperr.ErrAuth) {
		logger.WarnContext(r.Context(), "authentication failed",
			"path", r.URL.Path, "client_ip", middleware.ClientIP(r), "reason", err.Error())
	}

	body := map[string]string{"error": err.Error()}
	if reason := descriptor.ReasonOf(err); reason != "" {
		body["reason"] = reason
	}
	respondJSON(w, status, body)
}

// readImage returns the bytes of the multipart "image" field.
// A missing field yields nil so the service decides whether the image is required.
// The body is capped at constants.MaxRequestSize before any of it is parsed.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.New(apperr.ErrValidation, "request body is too large")
		}
		return nil, apperr.New(apperr.ErrValidation, "invalid multipart form")
	}

	file, _, err := r.FormFile(constants.ImageFormField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "invalid image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image upload: %w", err)
	}
	if len(data) > constants.MaxUploadSize {
		return nil, apperr.New(apperr.ErrValidation, "image is too large")
	}
	return data, nil
}

// principal returns the authenticated caller; RequireAuth guarantees it exists.
func principal(r *http.Request) auth.Principal {
	p, _ := middleware.GetPrincipalFromContext(r.Context())
	return p
}

// Root answers the service banner.
func Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Attendance service is running",
	})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
