package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/security"
	"mathquest/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey      ContextKey = "user"
	LoginSessionContext ContextKey = "loginSession"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService *service.AuthService
	csrf        *security.CSRFGenerator
	limiter     *security.RateLimiter
	log         *logger.Logger
}

// NewMiddleware creates a new middleware instance. limiter may be nil.
func NewMiddleware(authService *service.AuthService, csrf *security.CSRFGenerator, limiter *security.RateLimiter, log *logger.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		csrf:        csrf,
		limiter:     limiter,
		log:         log.With("component", "middleware"),
	}
}

// RequireAuth resolves the caller from a bearer token or the session
// cookie. Cookie-authenticated writes must also carry the CSRF header.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := security.BearerToken(r); token != "" {
			user, sessionID, err := m.authService.AuthenticateToken(ctx, token)
			if err != nil {
				respondWithServiceError(w, m.log, "Bearer authentication failed", err)
				return
			}
			next(w, r.WithContext(withUser(ctx, user, sessionID)))
			return
		}

		cookie, err := r.Cookie(security.SessionCookieName)
		if err != nil || cookie.Value == "" {
			respondWithError(w, m.log, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		user, err := m.authService.ValidateSession(ctx, cookie.Value)
		if err != nil {
			http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
			respondWithServiceError(w, m.log, "Session validation failed", err)
			return
		}

		if !isSafeMethod(r.Method) && !m.csrf.ValidateRequest(r, cookie.Value) {
			m.log.Warn("CSRF validation failed", "path", r.URL.Path, "userID", user.ID)
			respondWithError(w, m.log, http.StatusForbidden, "Invalid CSRF token", "", nil)
			return
		}

		next(w, r.WithContext(withUser(ctx, user, cookie.Value)))
	}
}

// RequireRole allows only callers with one of the given account types
func (m *Middleware) RequireRole(next http.HandlerFunc, roles ...models.AccountType) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		for _, role := range roles {
			if user.AccountType == role {
				next(w, r)
				return
			}
		}
		respondWithError(w, m.log, http.StatusForbidden, ErrForbidden, "", nil)
	})
}

// RequireAdmin allows only administrators
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireRole(next, models.AccountAdministrator)
}

// RequireGuardian allows only guardians
func (m *Middleware) RequireGuardian(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireRole(next, models.AccountGuardian)
}

// RequireLearner allows only learners
func (m *Middleware) RequireLearner(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireRole(next, models.AccountLearner)
}

// RateLimit throttles unauthenticated endpoints per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	if m.limiter == nil {
		return next
	}
	return m.limiter.Middleware(next).ServeHTTP
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func withUser(ctx context.Context, user *models.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, LoginSessionContext, sessionID)
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetLoginSessionFromContext returns the login session id of the caller
func GetLoginSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(LoginSessionContext).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging middleware logs HTTP requests
func Logging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"ip", security.GetClientIP(r),
		)
	})
}

// pathID parses a numeric path segment
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
