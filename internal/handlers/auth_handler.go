package handlers

import (
	"net/http"

	"mathquest/internal/logger"
	"mathquest/internal/security"
	"mathquest/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService          *service.AuthService
	csrf                 *security.CSRFGenerator
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	log                  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, csrf *security.CSRFGenerator, oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL string, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		csrf:                 csrf,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		log:                  log.With("handler", "auth"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	*service.Login
	CSRFToken string `json:"csrfToken"`
}

// Register creates an account and signs it in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	if _, err := h.authService.Register(r.Context(), in); err != nil {
		respondWithServiceError(w, h.log, "Registration failed", err)
		return
	}

	login, err := h.authService.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		respondWithServiceError(w, h.log, "Login after registration failed", err)
		return
	}
	h.startSession(w, r, http.StatusCreated, login)
}

// Login checks credentials and opens a login session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	login, err := h.authService.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		respondWithServiceError(w, h.log, "Login failed", err)
		return
	}
	h.startSession(w, r, http.StatusOK, login)
}

// startSession sets the session cookie and returns the bearer token with
// the CSRF token browser clients send on writes
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, login *service.Login) {
	csrfToken, err := h.csrf.GenerateToken(login.SessionID)
	if err != nil {
		respondWithError(w, h.log, http.StatusInternalServerError, ErrInternalServerError, "Failed to generate CSRF token", err)
		return
	}
	http.SetCookie(w, security.CreateSessionCookie(r, security.SessionCookieName, login.SessionID, login.ExpiresAt))
	respondJSON(w, status, loginResponse{Login: login, CSRFToken: csrfToken})
}

// Logout ends the caller's login session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := GetLoginSessionFromContext(r.Context())
	if err := h.authService.Logout(r.Context(), sessionID); err != nil {
		respondWithServiceError(w, h.log, "Logout failed", err)
		return
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
	w.WriteHeader(http.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset always answers 202 so addresses cannot be probed
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in passwordResetRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	if err := h.authService.RequestPasswordReset(r.Context(), in.Email); err != nil {
		h.log.Error("Password reset request failed", "error", err)
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, a reset email was sent"})
}

type passwordResetConfirm struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ConfirmPasswordReset sets a new password from an emailed token
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in passwordResetConfirm
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	if err := h.authService.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		respondWithServiceError(w, h.log, "Password reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
