package handlers

import (
	"context"
	"net/http"
	"time"

	"mathquest/internal/logger"
)

// Pinger is satisfied by *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers groups everything the router mounts
type Handlers struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Learner    *LearnerHandler
	Guardian   *GuardianHandler
	Admin      *AdminHandler
	Events     *EventsHandler
	DB         Pinger
	Log        *logger.Logger
}

// Routes registers every endpoint on a new ServeMux
func (hs *Handlers) Routes() *http.ServeMux {
	m := hs.Middleware
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", hs.Health)

	mux.HandleFunc("POST /api/auth/register", m.RateLimit(hs.Auth.Register))
	mux.HandleFunc("POST /api/auth/login", m.RateLimit(hs.Auth.Login))
	mux.HandleFunc("POST /api/auth/logout", m.RequireAuth(hs.Auth.Logout))
	mux.HandleFunc("POST /api/auth/password-reset", m.RateLimit(hs.Auth.RequestPasswordReset))
	mux.HandleFunc("POST /api/auth/password-reset/confirm", m.RateLimit(hs.Auth.ConfirmPasswordReset))
	mux.HandleFunc("GET /api/auth/providers", hs.Auth.ListOAuthProviders)
	mux.HandleFunc("GET /auth/{provider}/start", hs.Auth.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", hs.Auth.OAuthCallback)

	mux.HandleFunc("GET /api/me", m.RequireAuth(hs.Learner.Me))
	mux.HandleFunc("PUT /api/me/avatar", m.RequireAuth(hs.Learner.UpdateAvatar))
	mux.HandleFunc("GET /api/avatar-options", m.RequireAuth(hs.Learner.AvatarOptions))
	mux.HandleFunc("GET /api/activities", m.RequireAuth(hs.Learner.ListActivities))
	mux.HandleFunc("GET /api/activities/{id}", m.RequireAuth(hs.Learner.GetActivity))
	mux.HandleFunc("POST /api/activities/{id}/complete", m.RequireLearner(hs.Learner.CompleteActivity))
	mux.HandleFunc("GET /api/sessions", m.RequireAuth(hs.Learner.ListSessions))
	mux.HandleFunc("POST /api/sessions/{id}/join", m.RequireAuth(hs.Learner.JoinSession))
	mux.HandleFunc("POST /api/sessions/{id}/leave", m.RequireAuth(hs.Learner.LeaveSession))

	mux.HandleFunc("GET /api/guardian/children", m.RequireGuardian(hs.Guardian.ListChildren))
	mux.HandleFunc("POST /api/guardian/children", m.RequireGuardian(hs.Guardian.CreateChild))
	mux.HandleFunc("POST /api/guardian/children/link", m.RequireGuardian(hs.Guardian.LinkChild))
	mux.HandleFunc("GET /api/guardian/children/{id}", m.RequireGuardian(hs.Guardian.ChildDashboard))
	mux.HandleFunc("PUT /api/guardian/children/{id}/controls", m.RequireGuardian(hs.Guardian.UpdateControls))
	mux.HandleFunc("POST /api/guardian/children/{id}/password", m.RequireGuardian(hs.Guardian.RegeneratePassword))

	mux.HandleFunc("POST /api/admin/activities", m.RequireAdmin(hs.Admin.CreateActivity))
	mux.HandleFunc("PUT /api/admin/activities/{id}", m.RequireAdmin(hs.Admin.UpdateActivity))
	mux.HandleFunc("DELETE /api/admin/activities/{id}", m.RequireAdmin(hs.Admin.DeleteActivity))
	mux.HandleFunc("POST /api/admin/sessions", m.RequireAdmin(hs.Admin.CreateSession))
	mux.HandleFunc("PUT /api/admin/sessions/{id}", m.RequireAdmin(hs.Admin.UpdateSession))
	mux.HandleFunc("DELETE /api/admin/sessions/{id}", m.RequireAdmin(hs.Admin.DeleteSession))
	mux.HandleFunc("POST /api/admin/generate/lesson", m.RequireAdmin(hs.Admin.GenerateLesson))
	mux.HandleFunc("POST /api/admin/generate/quiz", m.RequireAdmin(hs.Admin.GenerateQuiz))
	mux.HandleFunc("GET /api/admin/database", m.RequireAdmin(hs.Admin.GetDatabaseStats))
	mux.HandleFunc("GET /api/admin/database/export", m.RequireAdmin(hs.Admin.ExportDatabase))
	mux.HandleFunc("POST /api/admin/database/import", m.RequireAdmin(hs.Admin.ImportDatabase))

	mux.HandleFunc("GET /api/events", m.RequireAuth(hs.Events.Stream))

	return mux
}

// Health reports whether the database answers
func (hs *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := hs.DB.PingContext(ctx); err != nil {
		respondWithError(w, hs.Log, http.StatusServiceUnavailable, "database unavailable", "Health check failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
