package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/accounts"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/descriptor"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/ledger"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

// stubExtractor maps image payloads to descriptors
type stubExtractor map[string]facematch.Descriptor

func (s stubExtractor) Extract(ctx context.Context, image []byte) (facematch.Descriptor, error) {
	if string(image) == "corrupt" {
		return nil, descriptor.ErrDecode
	}
	if d, ok := s[string(image)]; ok {
		return d, nil
	}
	return nil, descriptor.ErrNoFaceDetected
}

func testFace(v float64) facematch.Descriptor {
	d := make(facematch.Descriptor, constants.DescriptorDim)
	d[0] = v
	return d
}

// testEnv wires the account service over in-memory stores
type testEnv struct {
	svc        *accounts.Service
	identities *mock.MockIdentityStore
	sessions   *mock.MockSessionStore
	faces      stubExtractor
	tokens     *auth.TokenService
	now        time.Time
	logger     *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		identities: mock.NewMockIdentityStore(),
		sessions:   mock.NewMockSessionStore(),
		faces:      stubExtractor{},
		now:        time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	clock := func() time.Time { return env.now }
	face := config.FaceConfig{
		Dim:                 constants.DescriptorDim,
		LoginTolerance:      constants.DefaultLoginTolerance,
		AttendanceTolerance: constants.DefaultAttendanceTolerance,
		DuplicateTolerance:  constants.DefaultDuplicateTolerance,
		MatchPolicy:         constants.MatchPolicyFirst,
	}
	env.tokens = auth.NewTokenService("test-secret", constants.TokenLifetime, clock)
	l := ledger.New(env.sessions, face.AttendanceTolerance, ledger.WithClock(clock), ledger.WithLogger(env.logger))
	env.svc = accounts.NewService(env.identities, env.faces, env.tokens, l, face, env.logger)
	return env
}

// addEmployer stores an employer with password "secret"
func (e *testEnv) addEmployer(t *testing.T, id, email string, d facematch.Descriptor) {
	t.Helper()
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	e.identities.AddEmployer(database.Employer{Identity: database.Identity{
		ID: id, Username: "Boss " + id, Email: email, PasswordHash: hash, FaceDescriptor: d,
	}})
}

// addEmployee stores an employee with password "secret"
func (e *testEnv) addEmployee(t *testing.T, id, employerID, email string, rate float64, d facematch.Descriptor) {
	t.Helper()
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	e.identities.AddEmployee(database.Employee{
		Identity:   database.Identity{ID: id, Username: "Worker " + id, Email: email, PasswordHash: hash, FaceDescriptor: d},
		EmployerID: employerID,
		HourlyRate: rate,
	})
}

// multipartRequest builds a multipart form request with an optional image field
func multipartRequest(t *testing.T, method, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile(constants.ImageFormField, "face.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		fw.Write(image)
	}
	mw.Close()

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// asPrincipal attaches an authenticated caller to the request
func asPrincipal(r *http.Request, id string, role auth.Role) *http.Request {
	ctx := middleware.SetPrincipalInContext(r.Context(), auth.Principal{SubjectID: id, Role: role})
	return r.WithContext(ctx)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
