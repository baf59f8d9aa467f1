package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/security"
	"mathquest/internal/service"
)

type apiEnv struct {
	server *httptest.Server
	auth   *service.AuthService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunMigrations(ctx, "../../migrations")
	require.NoError(t, err)
	db.SetMaxTxAttempts(50)

	log := logger.FromZap(zaptest.NewLogger(t))
	hub := realtime.NewHub()
	publisher := realtime.NewPublisher(hub, log)

	users := repository.NewUserRepository(db)
	activities := repository.NewActivityRepository(db)
	completions := repository.NewCompletionRepository(db)
	sessions := repository.NewSessionRepository(db)
	guardians := repository.NewGuardianRepository(db)

	authService := service.NewAuthService(db, users, security.NewTokenIssuer("test-secret"), nil, log, time.Hour)
	progressService := service.NewProgressService(db, users, completions, activities, guardians, publisher, nil, log)
	scheduleService := service.NewScheduleService(db, sessions, users, publisher, log)
	catalogService := service.NewCatalogService(activities, publisher, log)
	contentService := service.NewContentService(nil, catalogService, log)
	guardianService := service.NewGuardianService(db, users, guardians, progressService, scheduleService, log)
	backupService := service.NewBackupService(db, log)
	csrf := security.NewCSRFGenerator("csrf-secret")

	hs := &Handlers{
		Middleware: NewMiddleware(authService, csrf, nil, log),
		Auth:       NewAuthHandler(authService, csrf, nil, "", log),
		Learner:    NewLearnerHandler(progressService, scheduleService, log),
		Guardian:   NewGuardianHandler(guardianService, log),
		Admin:      NewAdminHandler(catalogService, scheduleService, contentService, backupService, log),
		Events:     NewEventsHandler(hub, guardianService, log),
		DB:         db,
		Log:        log,
	}

	server := httptest.NewServer(Logging(log, hs.Routes()))
	t.Cleanup(server.Close)
	return &apiEnv{server: server, auth: authService}
}

func (e *apiEnv) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type loginBody struct {
	Token     string       `json:"token"`
	CSRFToken string       `json:"csrfToken"`
	User      *models.User `json:"user"`
}

func (e *apiEnv) register(t *testing.T, email string, accountType models.AccountType) loginBody {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/auth/register", "", service.RegisterInput{
		Email:       email,
		Password:    "secret123",
		FirstName:   "Test",
		AccountType: accountType,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[loginBody](t, resp)
}

func (e *apiEnv) admin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := e.auth.CreateAdministrator(ctx, "admin@example.com", "secret123", "Ada")
	require.NoError(t, err)
	login, err := e.auth.Login(ctx, "admin@example.com", "secret123")
	require.NoError(t, err)
	return login.Token
}

func (e *apiEnv) createActivity(t *testing.T, adminToken string, in service.ActivityInput) models.Activity {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/admin/activities", adminToken, in)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[models.Activity](t, resp)
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newAPIEnv(t)

	registered := env.register(t, "maya@example.com", "")
	assert.NotEmpty(t, registered.Token)
	assert.NotEmpty(t, registered.CSRFToken)
	assert.Equal(t, models.AccountLearner, registered.User.AccountType)

	resp := env.request(t, http.MethodPost, "/api/auth/register", "", service.RegisterInput{Email: "maya@example.com", Password: "secret123", FirstName: "Maya"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "maya@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "MAYA@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decodeBody[loginBody](t, resp).Token

	resp = env.request(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[service.Profile](t, resp)
	assert.Equal(t, 1, profile.Level.Level)
	assert.Equal(t, 0, profile.CompletedCount)

	resp = env.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodPost, "/api/auth/register", "", service.RegisterInput{Email: "not-an-email", Password: "secret123", FirstName: "Maya"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email", decodeBody[errorBody](t, resp).Field)

	resp = env.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@example.com", "surprise": "field"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/auth/register", "", service.RegisterInput{
		Email: "root@example.com", Password: "secret123", FirstName: "Root", AccountType: models.AccountAdministrator,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoleGuards(t *testing.T) {
	env := newAPIEnv(t)
	learner := env.register(t, "learner@example.com", models.AccountLearner)

	resp := env.request(t, http.MethodGet, "/api/activities", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/activities", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/admin/activities", learner.Token, service.ActivityInput{Title: "Sneaky", ContentType: models.ContentLesson})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/guardian/children", learner.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCompleteActivityOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)
	learner := env.register(t, "maya@example.com", models.AccountLearner)

	open := env.createActivity(t, adminToken, service.ActivityInput{Title: "Counting", ContentType: models.ContentLesson, DurationLabel: "15 min", XPValue: 50})
	lockedLevel := 5
	locked := env.createActivity(t, adminToken, service.ActivityInput{Title: "Fractions", ContentType: models.ContentQuiz, XPValue: 80, UnlockLevel: &lockedLevel,
		Questions: []models.QuizQuestion{{Question: "1/2 + 1/2?", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: 0}}})

	resp := env.request(t, http.MethodGet, "/api/activities", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	views := decodeBody[[]models.ActivityView](t, resp)
	require.Len(t, views, 2)

	resp = env.request(t, http.MethodGet, "/api/activities?type=quiz", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quizzes := decodeBody[[]models.ActivityView](t, resp)
	require.Len(t, quizzes, 1)
	assert.True(t, quizzes[0].Locked)

	resp = env.request(t, http.MethodGet, "/api/activities?type=podcast", learner.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	path := fmt.Sprintf("/api/activities/%d/complete", open.ID)
	resp = env.request(t, http.MethodPost, path, learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeBody[service.CompletionResult](t, resp)
	assert.True(t, first.Awarded)
	assert.Equal(t, 50, first.NewXP)
	assert.Equal(t, 1, first.NewStreak)
	assert.Equal(t, 15, first.NewTotalTime)

	resp = env.request(t, http.MethodPost, path, learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeBody[service.CompletionResult](t, resp)
	assert.False(t, again.Awarded)
	assert.Equal(t, 50, again.NewXP)

	resp = env.request(t, http.MethodPost, fmt.Sprintf("/api/activities/%d/complete", locked.ID), learner.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/activities/9999/complete", learner.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/activities/abc/complete", learner.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompleteActivityOnlyForLearners(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)
	guardian := env.register(t, "parent@example.com", models.AccountGuardian)
	activity := env.createActivity(t, adminToken, service.ActivityInput{Title: "Counting", ContentType: models.ContentLesson, DurationLabel: "15 min", XPValue: 50})
	path := fmt.Sprintf("/api/activities/%d/complete", activity.ID)

	resp := env.request(t, http.MethodPost, path, guardian.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPost, path, adminToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/me", guardian.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[service.Profile](t, resp)
	assert.Equal(t, 0, profile.User.XP)
	assert.Equal(t, 0, profile.CompletedCount)
}

func TestCookieWritesRequireCSRF(t *testing.T) {
	env := newAPIEnv(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := *env.server.Client()
	client.Jar = jar

	raw, err := json.Marshal(service.RegisterInput{Email: "maya@example.com", Password: "secret123", FirstName: "Maya"})
	require.NoError(t, err)
	resp, err := client.Post(env.server.URL+"/api/auth/register", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	csrfToken := decodeBody[loginBody](t, resp).CSRFToken

	get, err := client.Get(env.server.URL + "/api/me")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	avatar := func(header string) int {
		body := strings.NewReader(`{"character":"🐼","color":"green-lime"}`)
		req, err := http.NewRequest(http.MethodPut, env.server.URL+"/api/me/avatar", body)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set(security.CSRFHeader, header)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, avatar(""))
	assert.Equal(t, http.StatusForbidden, avatar("forged"))
	assert.Equal(t, http.StatusOK, avatar(csrfToken))
}

func TestSessionRosterOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)
	first := env.register(t, "first@example.com", models.AccountLearner)
	second := env.register(t, "second@example.com", models.AccountLearner)

	capacity := 1
	resp := env.request(t, http.MethodPost, "/api/admin/sessions", adminToken, service.SessionInput{
		Name: "Times tables", Day: "Monday", StartTime: "16:00", EndTime: "17:00", Teacher: "Mr Lee", Capacity: &capacity,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)

	join := fmt.Sprintf("/api/sessions/%d/join", session.ID)
	resp = env.request(t, http.MethodPost, join, first.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeBody[models.SessionView](t, resp)
	assert.True(t, view.Enrolled)
	assert.True(t, view.IsFull)

	resp = env.request(t, http.MethodPost, join, second.Token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.request(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/leave", session.ID), first.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[models.SessionView](t, resp).IsFull)

	resp = env.request(t, http.MethodPost, "/api/admin/sessions", adminToken, service.SessionInput{
		Name: "Backwards", Day: "Monday", StartTime: "17:00", EndTime: "16:00", Teacher: "Mr Lee",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, fmt.Sprintf("/api/admin/sessions/%d", session.ID), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.request(t, http.MethodPost, join, second.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGuardianRoutes(t *testing.T) {
	env := newAPIEnv(t)
	guardian := env.register(t, "parent@example.com", models.AccountGuardian)
	stranger := env.register(t, "stranger@example.com", models.AccountGuardian)

	resp := env.request(t, http.MethodPost, "/api/guardian/children", guardian.Token, createChildRequest{FirstName: "Sam", LastName: "Smith"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	child := decodeBody[service.ChildLogin](t, resp)
	assert.NotEmpty(t, child.Password)

	resp = env.request(t, http.MethodGet, "/api/guardian/children", guardian.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]service.ChildSummary](t, resp), 1)

	dashboard := fmt.Sprintf("/api/guardian/children/%d", child.User.ID)
	resp = env.request(t, http.MethodGet, dashboard, guardian.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, dashboard, stranger.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPut, dashboard+"/controls", guardian.Token, service.ControlsInput{DailyTimeLimitEnabled: true, DailyTimeLimitMinutes: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPut, dashboard+"/controls", guardian.Token, service.ControlsInput{DailyTimeLimitEnabled: true, DailyTimeLimitMinutes: 45})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45, decodeBody[models.GuardianControls](t, resp).DailyTimeLimitMinutes)

	resp = env.request(t, http.MethodPost, "/api/guardian/children/link", guardian.Token, linkChildRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateWithoutGenerator(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)

	resp := env.request(t, http.MethodPost, "/api/admin/generate/quiz", adminToken, service.GenerateRequest{Topic: "fractions"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/admin/generate/lesson", adminToken, service.GenerateRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasswordResetRequestIsAlwaysAccepted(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodPost, "/api/auth/password-reset", "", passwordResetRequest{Email: "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/auth/password-reset/confirm", "", passwordResetConfirm{Token: "bogus", Password: "newsecret123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminDatabaseExport(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)
	env.createActivity(t, adminToken, service.ActivityInput{Title: "Counting", ContentType: models.ContentLesson, XPValue: 10})

	resp := env.request(t, http.MethodGet, "/api/admin/database", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[DatabaseStats](t, resp)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Activities)

	resp = env.request(t, http.MethodGet, "/api/admin/database/export", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "mathquest_backup_")
	backup := decodeBody[service.BackupData](t, resp)
	assert.Equal(t, service.BackupVersion, backup.Version)
	assert.Len(t, backup.Activities, 1)
}

func TestEventStream(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.admin(t)
	learner := env.register(t, "maya@example.com", models.AccountLearner)
	other := env.register(t, "other@example.com", models.AccountLearner)
	activity := env.createActivity(t, adminToken, service.ActivityInput{Title: "Counting", ContentType: models.ContentLesson, XPValue: 50})

	topic := realtime.UserTopic(learner.User.ID)

	resp := env.request(t, http.MethodGet, "/api/events?topic="+topic, other.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/events?topic=*", learner.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/events", learner.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/events?topic="+topic, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+learner.Token)
	stream, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := bufio.NewScanner(stream.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, ": connected", lines.Text())

	done := env.request(t, http.MethodPost, fmt.Sprintf("/api/activities/%d/complete", activity.ID), learner.Token, nil)
	require.Equal(t, http.StatusOK, done.StatusCode)

	var events []string
	for len(events) < 2 && lines.Scan() {
		if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{realtime.EventUserUpdated, realtime.EventAchievementEarned}, events)
}
