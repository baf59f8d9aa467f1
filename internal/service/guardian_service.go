package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"mathquest/internal/credentials"
	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/repository"
	"mathquest/internal/security"
	"mathquest/internal/validation"
)

// recentActivityLimit is how many completions a child summary shows
const recentActivityLimit = 10

// ChildLogin is the generated sign-in for a child account. The password is
// only ever returned here.
type ChildLogin struct {
	User     *models.User `json:"user"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
}

// ChildSummary is one row of the guardian dashboard
type ChildSummary struct {
	User           *models.User   `json:"user"`
	Level          progress.Level `json:"level"`
	CompletedCount int            `json:"completedCount"`
}

// ChildDashboard is everything a guardian sees about one child
type ChildDashboard struct {
	Profile          *Profile                 `json:"profile"`
	RecentActivity   []models.Completion      `json:"recentActivity"`
	EnrolledSessions []models.SessionView     `json:"enrolledSessions"`
	Controls         *models.GuardianControls `json:"controls"`
}

// GuardianService handles guardian links, child accounts and controls
type GuardianService struct {
	db        *database.DB
	users     *repository.UserRepository
	guardians *repository.GuardianRepository
	progress  *ProgressService
	schedule  *ScheduleService
	log       *logger.Logger
}

// NewGuardianService creates a new guardian service
func NewGuardianService(db *database.DB, users *repository.UserRepository, guardians *repository.GuardianRepository, progressSvc *ProgressService, schedule *ScheduleService, log *logger.Logger) *GuardianService {
	return &GuardianService{
		db:        db,
		users:     users,
		guardians: guardians,
		progress:  progressSvc,
		schedule:  schedule,
		log:       log.With("service", "GuardianService"),
	}
}

// VerifyAccess checks that guardianID is linked to learnerID
func (s *GuardianService) VerifyAccess(ctx context.Context, guardianID, learnerID int64) error {
	linked, err := s.guardians.IsLinked(ctx, guardianID, learnerID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrForbidden
	}
	return nil
}

// LinkLearnerByEmail links an existing learner account to guardianID
func (s *GuardianService) LinkLearnerByEmail(ctx context.Context, guardianID int64, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	learner, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, ErrProfileNotFound
	}
	if learner.AccountType != models.AccountLearner {
		return nil, ErrNotALearner
	}

	if err := s.guardians.LinkLearner(ctx, guardianID, learner.ID); err != nil {
		return nil, err
	}
	s.log.Info("Learner linked", "guardianID", guardianID, "learnerID", learner.ID)
	return learner, nil
}

// CreateChild creates a learner account with generated credentials and
// links it to guardianID
func (s *GuardianService) CreateChild(ctx context.Context, guardianID int64, firstName, lastName string) (*ChildLogin, error) {
	firstName = strings.TrimSpace(firstName)
	if err := validation.ValidateName(firstName); err != nil {
		return nil, err
	}

	username, err := s.uniqueChildUsername(ctx)
	if err != nil {
		return nil, err
	}
	password, err := credentials.GenerateChildPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var child *models.User
	err = s.db.RunInTx(ctx, func(tx *database.Tx) error {
		child, err = s.users.WithTx(tx).CreateUser(ctx, &models.User{
			Email:        credentials.ChildEmail(username),
			PasswordHash: hash,
			FirstName:    firstName,
			LastName:     strings.TrimSpace(lastName),
			AccountType:  models.AccountLearner,
		})
		if err != nil {
			return err
		}
		return s.guardians.WithTx(tx).LinkLearner(ctx, guardianID, child.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}

	s.log.Info("Child account created", "guardianID", guardianID, "learnerID", child.ID)
	return &ChildLogin{
		User:     child,
		Username: username,
		Email:    child.Email,
		Password: password,
	}, nil
}

func (s *GuardianService) uniqueChildUsername(ctx context.Context) (string, error) {
	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		username, err := credentials.GenerateChildUsername()
		if err != nil {
			return "", fmt.Errorf("failed to generate username: %w", err)
		}
		existing, err := s.users.GetUserByEmail(ctx, credentials.ChildEmail(username))
		if err != nil {
			return "", fmt.Errorf("failed to check username uniqueness: %w", err)
		}
		if existing == nil {
			return username, nil
		}
	}
	return "", fmt.Errorf("no free child username after %d attempts", maxRetries)
}

// RegenerateChildPassword issues a new password for a linked child and
// signs the child out everywhere
func (s *GuardianService) RegenerateChildPassword(ctx context.Context, guardianID, learnerID int64) (string, error) {
	if err := s.VerifyAccess(ctx, guardianID, learnerID); err != nil {
		return "", err
	}

	password, err := credentials.GenerateChildPassword()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.db.RunInTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)
		if err := users.UpdatePassword(ctx, learnerID, hash); err != nil {
			return err
		}
		return users.DeleteUserLoginSessions(ctx, learnerID)
	})
	if err != nil {
		return "", err
	}
	return password, nil
}

// ListChildren returns a summary of each linked learner
func (s *GuardianService) ListChildren(ctx context.Context, guardianID int64) ([]ChildSummary, error) {
	learners, err := s.guardians.ListLearners(ctx, guardianID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChildSummary, len(learners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range learners {
		i := i
		g.Go(func() error {
			profile, err := s.progress.GetProfile(gctx, learners[i].ID)
			if err != nil {
				return err
			}
			summaries[i] = ChildSummary{
				User:           profile.User,
				Level:          profile.Level,
				CompletedCount: profile.CompletedCount,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ChildDashboard loads a linked child's profile, recent activity, sessions
// and controls concurrently
func (s *GuardianService) ChildDashboard(ctx context.Context, guardianID, learnerID int64) (*ChildDashboard, error) {
	if err := s.VerifyAccess(ctx, guardianID, learnerID); err != nil {
		return nil, err
	}

	dash := &ChildDashboard{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dash.Profile, err = s.progress.GetProfile(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		dash.RecentActivity, err = s.progress.RecentCompletions(gctx, learnerID, recentActivityLimit)
		return err
	})
	g.Go(func() error {
		var err error
		dash.EnrolledSessions, err = s.schedule.EnrolledSessions(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		dash.Controls, err = s.guardians.GetControls(gctx, guardianID, learnerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dash.RecentActivity == nil {
		dash.RecentActivity = []models.Completion{}
	}
	return dash, nil
}

// ControlsInput holds the editable guardian controls
type ControlsInput struct {
	DailyTimeLimitEnabled bool `json:"dailyTimeLimitEnabled"`
	DailyTimeLimitMinutes int  `json:"dailyTimeLimitMinutes"`
	NotifyAchievements    bool `json:"notifyAchievements"`
	WeeklyReport          bool `json:"weeklyReport"`
}

// UpdateControls saves the controls a guardian set for a linked child
func (s *GuardianService) UpdateControls(ctx context.Context, guardianID, learnerID int64, in ControlsInput) (*models.GuardianControls, error) {
	if in.DailyTimeLimitEnabled && (in.DailyTimeLimitMinutes < 1 || in.DailyTimeLimitMinutes > 24*60) {
		return nil, validation.ValidationError{Field: "dailyTimeLimitMinutes", Message: "must be between 1 and 1440"}
	}
	if err := s.VerifyAccess(ctx, guardianID, learnerID); err != nil {
		return nil, err
	}

	controls := &models.GuardianControls{
		GuardianID:            guardianID,
		LearnerID:             learnerID,
		DailyTimeLimitEnabled: in.DailyTimeLimitEnabled,
		DailyTimeLimitMinutes: in.DailyTimeLimitMinutes,
		NotifyAchievements:    in.NotifyAchievements,
		WeeklyReport:          in.WeeklyReport,
	}
	if err := s.guardians.SaveControls(ctx, controls); err != nil {
		return nil, err
	}
	return controls, nil
}

// IsGuardianOf reports whether guardianID may see learnerID's updates
func (s *GuardianService) IsGuardianOf(ctx context.Context, guardianID, learnerID int64) (bool, error) {
	return s.guardians.IsLinked(ctx, guardianID, learnerID)
}
