package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/attendance/internal/auth"
)

func TestEmployerHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	env.addEmployee(t, "emp-1", "boss-0", "worker@example.com", 15, testFace(5))
	env.faces["boss"] = testFace(0.1)
	env.faces["lookalike"] = testFace(5.1)
	handler := NewEmployerHandler(env.svc, env.logger)

	fields := map[string]string{"username": "Boss", "email": "boss@example.com", "password": "pw"}
	recorder := httptest.NewRecorder()
	handler.Register(recorder, multipartRequest(t, http.MethodPost, "/employer/register", fields, []byte("boss")))

	assertStatusCode(t, recorder, http.StatusCreated)
	var response RegisterResponse
	parseJSONResponse(t, recorder, &response)
	if response.Message != "Employer registered successfully" {
		t.Errorf("unexpected message %q", response.Message)
	}

	fields = map[string]string{"username": "Twin", "email": "twin@example.com", "password": "pw"}
	recorder = httptest.NewRecorder()
	handler.Register(recorder, multipartRequest(t, http.MethodPost, "/employer/register", fields, []byte("lookalike")))
	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "Face already registered")
}

func TestEmployerHandler_Details(t *testing.T) {
	env := newTestEnv(t)
	env.addEmployer(t, "boss-1", "boss@example.com", nil)
	handler := NewEmployerHandler(env.svc, env.logger)

	recorder := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/employer/details", nil), "boss-1", auth.RoleEmployer)
	handler.Details(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var response EmployerDetailsResponse
	parseJSONResponse(t, recorder, &response)
	if response.ID != "boss-1" || response.Email != "boss@example.com" {
		t.Errorf("unexpected details %+v", response)
	}
}

func TestEmployerHandler_Employees(t *testing.T) {
	env := newTestEnv(t)
	env.addEmployer(t, "boss-1", "boss@example.com", nil)
	env.addEmployee(t, "emp-1", "boss-1", "a@example.com", 15, nil)
	env.addEmployee(t, "emp-2", "boss-1", "b@example.com", 20, nil)
	env.addEmployee(t, "emp-3", "boss-2", "c@example.com", 20, nil)
	seedSessions(env, "emp-1")
	handler := NewEmployerHandler(env.svc, env.logger)

	recorder := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/employer/employees", nil), "boss-1", auth.RoleEmployer)
	handler.Employees(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var response []RosterEmployeeResponse
	parseJSONResponse(t, recorder, &response)
	if len(response) != 2 {
		t.Fatalf("expected 2 employees, got %d", len(response))
	}
	byID := map[string]RosterEmployeeResponse{}
	for _, e := range response {
		byID[e.ID] = e
	}
	if byID["emp-1"].Status != "Working" || byID["emp-1"].TotalUnpaidEarnings != 22.5 {
		t.Errorf("unexpected emp-1 %+v", byID["emp-1"])
	}
	if byID["emp-1"].LastCheckIn == nil {
		t.Error("expected last_check_in for a working employee")
	}
	if byID["emp-2"].Status != "Not Working" || byID["emp-2"].TotalUnpaidEarnings != 0 {
		t.Errorf("unexpected emp-2 %+v", byID["emp-2"])
	}
}

func TestEmployerHandler_PayEmployee(t *testing.T) {
	env := newTestEnv(t)
	env.addEmployer(t, "boss-1", "boss@example.com", nil)
	env.addEmployer(t, "boss-2", "other@example.com", nil)
	env.addEmployee(t, "emp-1", "boss-1", "a@example.com", 15, nil)
	seedSessions(env, "emp-1")
	handler := NewEmployerHandler(env.svc, env.logger)

	pay := func(employerID, employeeID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/employer/pay_employee/"+employeeID, nil)
		req = requestWithChiParams(asPrincipal(req, employerID, auth.RoleEmployer), map[string]string{"id": employeeID})
		recorder := httptest.NewRecorder()
		handler.PayEmployee(recorder, req)
		return recorder
	}

	recorder := pay("boss-2", "emp-1")
	assertStatusCode(t, recorder, http.StatusForbidden)

	recorder = pay("boss-1", "missing")
	assertStatusCode(t, recorder, http.StatusNotFound)

	recorder = pay("boss-1", "emp-1")
	assertStatusCode(t, recorder, http.StatusOK)
	var response PayResponse
	parseJSONResponse(t, recorder, &response)
	if response.ModifiedCount != 2 || response.Message != "2 sessions marked as paid." {
		t.Errorf("unexpected response %+v", response)
	}

	recorder = pay("boss-1", "emp-1")
	parseJSONResponse(t, recorder, &response)
	if response.ModifiedCount != 0 {
		t.Errorf("second payment should modify nothing, got %d", response.ModifiedCount)
	}
}
