package handlers

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"github.com/kozaktomas/attendance/internal/accounts"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/constants"
)

// AuthHandler handles password and face login
type AuthHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *accounts.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: svc,
		logger:   logger,
	}
}

// LoginResponse represents a successful login
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserType    string `json:"user_type"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}

func newLoginResponse(res *accounts.LoginResult) LoginResponse {
	return LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   constants.TokenType,
		UserType:    string(res.Role),
		Username:    res.Username,
		Email:       res.Email,
	}
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readPasswordLogin accepts form fields and, for API clients, a JSON body.
func readPasswordLogin(r *http.Request) (passwordLoginRequest, error) {
	var req passwordLoginRequest
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	req.Email = r.FormValue("email")
	req.Password = r.FormValue("password")
	return req, nil
}

// LoginPassword handles email and password login
func (h *AuthHandler) LoginPassword(w http.ResponseWriter, r *http.Request) {
	req, err := readPasswordLogin(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	res, err := h.accounts.LoginPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.DebugContext(r.Context(), "password login rejected", "email", sanitizeForLog(req.Email))
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newLoginResponse(res))
}

// LoginFace returns a handler that identifies the uploaded face among the given roles, in order
func (h *AuthHandler) LoginFace(roles ...auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		image, err := readImage(w, r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		res, err := h.accounts.LoginFace(r.Context(), image, roles...)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newLoginResponse(res))
	}
}
