package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/security"
)

const testMigrationsPath = "../../migrations"

type sentAchievement struct {
	to      string
	learner string
	ids     []string
}

type fakeMailer struct {
	mu           sync.Mutex
	resetTokens  map[string]string
	achievements []sentAchievement
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{resetTokens: make(map[string]string)}
}

func (m *fakeMailer) IsEnabled() bool { return true }

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, toEmail, _, resetToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[toEmail] = resetToken
	return nil
}

func (m *fakeMailer) SendAchievementEmail(_ context.Context, toEmail, _, learnerName string, earned []progress.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(earned))
	for i, a := range earned {
		ids[i] = a.ID
	}
	m.achievements = append(m.achievements, sentAchievement{to: toEmail, learner: learnerName, ids: ids})
	return nil
}

func (m *fakeMailer) sentAchievements() []sentAchievement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentAchievement(nil), m.achievements...)
}

type testEnv struct {
	db          *database.DB
	log         *logger.Logger
	hub         *realtime.Hub
	mailer      *fakeMailer
	users       *repository.UserRepository
	activities  *repository.ActivityRepository
	completions *repository.CompletionRepository
	sessions    *repository.SessionRepository
	guardians   *repository.GuardianRepository

	progress *ProgressService
	schedule *ScheduleService
	catalog  *CatalogService
	auth     *AuthService
	guardian *GuardianService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunMigrations(ctx, testMigrationsPath)
	require.NoError(t, err)
	db.SetMaxTxAttempts(50)

	env := &testEnv{
		db:          db,
		log:         logger.FromZap(zaptest.NewLogger(t)),
		hub:         realtime.NewHub(),
		mailer:      newFakeMailer(),
		users:       repository.NewUserRepository(db),
		activities:  repository.NewActivityRepository(db),
		completions: repository.NewCompletionRepository(db),
		sessions:    repository.NewSessionRepository(db),
		guardians:   repository.NewGuardianRepository(db),
	}
	publisher := realtime.NewPublisher(env.hub, env.log)

	env.progress = NewProgressService(db, env.users, env.completions, env.activities, env.guardians, publisher, env.mailer, env.log)
	env.schedule = NewScheduleService(db, env.sessions, env.users, publisher, env.log)
	env.catalog = NewCatalogService(env.activities, publisher, env.log)
	env.auth = NewAuthService(db, env.users, security.NewTokenIssuer("test-secret"), env.mailer, env.log, time.Hour)
	env.guardian = NewGuardianService(db, env.users, env.guardians, env.progress, env.schedule, env.log)
	return env
}

func (e *testEnv) createUser(t *testing.T, email string, accountType models.AccountType) *models.User {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), &models.User{
		Email:       email,
		FirstName:   "Test",
		AccountType: accountType,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createActivity(t *testing.T, title string, xp int, duration string, unlock *int) *models.Activity {
	t.Helper()
	activity, err := e.catalog.CreateActivity(context.Background(), ActivityInput{
		Title:         title,
		ContentType:   models.ContentLesson,
		DurationLabel: duration,
		XPValue:       xp,
		UnlockLevel:   unlock,
	})
	require.NoError(t, err)
	return activity
}

func intPtr(n int) *int { return &n }
