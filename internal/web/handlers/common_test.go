package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/descriptor"
)

func TestRespondJSON_SetsContentType(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, map[string]string{"status": "ok"})

	assertContentType(t, recorder, "application/json")
}

func TestRespondJSON_SetsStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Created", http.StatusCreated},
		{"BadRequest", http.StatusBadRequest},
		{"NotFound", http.StatusNotFound},
		{"InternalServerError", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, nil)
			assertStatusCode(t, recorder, tc.statusCode)
		})
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "invalid input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContentType(t, recorder, "application/json")
	assertJSONError(t, recorder, "invalid input")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrNoOpenSession, http.StatusNotFound},
		{apperr.ErrAlreadyCheckedIn, http.StatusBadRequest},
		{apperr.ErrConcurrentModification, http.StatusConflict},
		{apperr.ErrEmailTaken, http.StatusConflict},
		{apperr.ErrFaceMismatch, http.StatusUnauthorized},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.ErrNotOwner, http.StatusForbidden},
		{apperr.ErrEmployeeNotFound, http.StatusNotFound},
		{apperr.ErrNoDescriptor, http.StatusBadRequest},
		{descriptor.ErrNoFaceDetected, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.ErrEmployerNotFound), http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/employee/details", nil)

	writeError(recorder, req, logger, errors.New("pq: connection refused"))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal server error")
	if !strings.Contains(logs.String(), "connection refused") {
		t.Errorf("expected the cause to be logged, got %q", logs.String())
	}
}

func TestWriteError_ExtractionReason(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/attendance/checkin", nil)

	writeError(recorder, req, logger, descriptor.ErrDecode)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	var body map[string]string
	parseJSONResponse(t, recorder, &body)
	if body["error"] != "Invalid or unsupported image" || body["reason"] != "decode_error" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWriteError_AuthFailureLogsClientIP(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login/password", nil)
	req.Header.Set("X-Real-Ip", "203.0.113.7")

	writeError(recorder, req, logger, apperr.ErrInvalidCredentials)

	assertStatusCode(t, recorder, http.StatusUnauthorized)
	assertJSONError(t, recorder, "Invalid email or password")
	if !strings.Contains(logs.String(), "203.0.113.7") {
		t.Errorf("expected client ip in log, got %q", logs.String())
	}
}

func TestReadImage(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/", nil, []byte("pixels"))
		data, err := readImage(httptest.NewRecorder(), req)
		if err != nil {
			t.Fatalf("readImage() error = %v", err)
		}
		if string(data) != "pixels" {
			t.Errorf("readImage() = %q", data)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/", map[string]string{"email": "a@example.com"}, nil)
		data, err := readImage(httptest.NewRecorder(), req)
		if err != nil || data != nil {
			t.Errorf("readImage() = %v, %v; want nil, nil", data, err)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a"}`))
		req.Header.Set("Content-Type", "application/json")
		data, err := readImage(httptest.NewRecorder(), req)
		if err != nil || data != nil {
			t.Errorf("readImage() = %v, %v; want nil, nil", data, err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/", nil, bytes.Repeat([]byte("x"), constants.MaxUploadSize+1))
		_, err := readImage(httptest.NewRecorder(), req)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("readImage() error = %v, want validation error", err)
		}
	})

	t.Run("body over request limit", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/", nil, bytes.Repeat([]byte("x"), constants.MaxRequestSize+1))
		data, err := readImage(httptest.NewRecorder(), req)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("readImage() error = %v, want validation error", err)
		}
		if data != nil {
			t.Errorf("readImage() returned %d bytes for an oversized body", len(data))
		}
		if err.Error() != "request body is too large" {
			t.Errorf("readImage() error = %q", err.Error())
		}
	})
}

func TestRoot(t *testing.T) {
	recorder := httptest.NewRecorder()

	Root(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var body map[string]string
	parseJSONResponse(t, recorder, &body)
	if body["message"] != "Attendance service is running" {
		t.Errorf("unexpected message %q", body["message"])
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}
