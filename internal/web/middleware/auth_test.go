package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/auth"
)

func newTokens() *auth.TokenService {
	return auth.NewTokenService("test-secret", 30*time.Minute, nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			t.Error("principal missing from context")
		}
		w.Write([]byte(p.SubjectID + ":" + string(p.Role)))
	})
}

func TestRequireAuth(t *testing.T) {
	tokens := newTokens()
	valid, err := tokens.Issue("emp-1", auth.RoleEmployee)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	foreign, _ := auth.NewTokenService("other-secret", time.Minute, nil).Issue("emp-1", auth.RoleEmployee)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "emp-1:employee"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "emp-1:employee"},
		{"missing header", "", http.StatusUnauthorized, "Not authenticated"},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "Not authenticated"},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, "Could not validate credentials"},
		{"foreign secret", "Bearer " + foreign, http.StatusUnauthorized, "Could not validate credentials"},
	}

	handler := RequireAuth(tokens, discardLogger())(principalEcho(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/employee/details", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.body)
			}
			if tt.status == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("expected WWW-Authenticate: Bearer")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleEmployer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		principal *auth.Principal
		status    int
	}{
		{"matching role", &auth.Principal{SubjectID: "b", Role: auth.RoleEmployer}, http.StatusNoContent},
		{"other role", &auth.Principal{SubjectID: "e", Role: auth.RoleEmployee}, http.StatusForbidden},
		{"no principal", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/employer/details", nil)
			if tt.principal != nil {
				req = req.WithContext(SetPrincipalInContext(req.Context(), *tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"http://localhost:5173", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %q: Allow-Origin = %q, want %q", tt.origin, got, tt.origin)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %q: Allow-Origin = %q, want empty", tt.origin, got)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/attendance/checkin", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/attendance/checkin", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"status":418`, `"path":"/attendance/checkin"`, `"client_ip":"203.0.113.7"`, `"bytes":15`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}
