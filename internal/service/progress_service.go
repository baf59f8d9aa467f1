package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
)

// CompletionResult is the outcome of CompleteActivity. When Awarded is false
// the values are the user's unchanged progress.
type CompletionResult struct {
	Awarded         bool                   `json:"awarded"`
	NewXP           int                    `json:"newXp"`
	NewStreak       int                    `json:"newStreak"`
	NewTotalTime    int                    `json:"newTotalTime"`
	Level           progress.Level         `json:"level"`
	NewAchievements []progress.Achievement `json:"newAchievements"`
}

// Profile is a user with everything derived from their progress
type Profile struct {
	User           *models.User           `json:"user"`
	Level          progress.Level         `json:"level"`
	CompletedCount int                    `json:"completedCount"`
	Achievements   []progress.Achievement `json:"achievements"`
}

// ProgressService owns the learner-earned fields of user records
type ProgressService struct {
	db          *database.DB
	users       *repository.UserRepository
	completions *repository.CompletionRepository
	activities  *repository.ActivityRepository
	guardians   *repository.GuardianRepository
	publisher   *realtime.Publisher
	mailer      Mailer
	log         *logger.Logger
	now         func() time.Time
}

// NewProgressService creates a new progress service. mailer may be nil.
func NewProgressService(
	db *database.DB,
	users *repository.UserRepository,
	completions *repository.CompletionRepository,
	activities *repository.ActivityRepository,
	guardians *repository.GuardianRepository,
	publisher *realtime.Publisher,
	mailer Mailer,
	log *logger.Logger,
) *ProgressService {
	return &ProgressService{
		db:          db,
		users:       users,
		completions: completions,
		activities:  activities,
		guardians:   guardians,
		publisher:   publisher,
		mailer:      mailer,
		log:         log.With("service", "ProgressService"),
		now:         time.Now,
	}
}

// CompleteActivityByID loads the activity and completes it for userID
func (s *ProgressService) CompleteActivityByID(ctx context.Context, userID, activityID int64) (*CompletionResult, error) {
	activity, err := s.activities.GetActivityByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return s.CompleteActivity(ctx, userID, *activity)
}

// CompleteActivity credits a first-time completion: XP, streak, total time
// and membership of the completed set change together in one transaction.
// A repeat completion is a no-op that reports Awarded=false. Only learner
// accounts earn progress.
func (s *ProgressService) CompleteActivity(ctx context.Context, userID int64, activity models.Activity) (*CompletionResult, error) {
	var result *CompletionResult
	var learner *models.User

	err := s.db.RetryTx(ctx, func(tx *database.Tx) error {
		result = nil
		users := s.users.WithTx(tx)
		completions := s.completions.WithTx(tx)

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrProfileNotFound
		}
		if user.AccountType != models.AccountLearner {
			return ErrNotALearner
		}

		done, err := completions.HasCompleted(ctx, userID, activity.ID)
		if err != nil {
			return err
		}
		if done {
			result = unchangedResult(user)
			return nil
		}

		if !progress.IsUnlocked(user.XP, activity.UnlockLevel) {
			return ErrActivityLocked
		}

		count, err := completions.CountCompletions(ctx, userID)
		if err != nil {
			return err
		}
		before := statsOf(user, count)

		today := progress.CalendarDate(s.now())
		minutes := progress.ParseDurationMinutes(activity.DurationLabel)

		user.CurrentStreak = progress.NextStreak(user.LastActivityDate, user.CurrentStreak, today)
		user.XP += activity.XPValue
		user.TotalTimeMinutes += minutes
		user.LastActivityDate = &today

		// the version check on the user row fails first for a racing
		// completion of the same activity
		if err := users.UpdateProgress(ctx, user); err != nil {
			return err
		}
		if err := completions.InsertCompletion(ctx, &models.Completion{
			UserID:          userID,
			ActivityID:      activity.ID,
			XPAwarded:       activity.XPValue,
			MinutesCredited: minutes,
			CompletedAt:     s.now(),
		}); err != nil {
			return err
		}

		result = &CompletionResult{
			Awarded:         true,
			NewXP:           user.XP,
			NewStreak:       user.CurrentStreak,
			NewTotalTime:    user.TotalTimeMinutes,
			Level:           progress.DeriveLevel(user.XP),
			NewAchievements: progress.NewlyEarned(before, statsOf(user, count+1)),
		}
		learner = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Awarded {
		s.log.Info("Activity completed", "userID", userID, "activityID", activity.ID, "xp", result.NewXP, "streak", result.NewStreak)
		s.publisher.Publish(ctx, realtime.UserTopic(userID), realtime.EventUserUpdated, learner)
		if len(result.NewAchievements) > 0 {
			s.publisher.Publish(ctx, realtime.UserTopic(userID), realtime.EventAchievementEarned, result.NewAchievements)
			s.notifyGuardians(ctx, learner, result.NewAchievements)
		}
	}
	return result, nil
}

func unchangedResult(user *models.User) *CompletionResult {
	return &CompletionResult{
		Awarded:         false,
		NewXP:           user.XP,
		NewStreak:       user.CurrentStreak,
		NewTotalTime:    user.TotalTimeMinutes,
		Level:           progress.DeriveLevel(user.XP),
		NewAchievements: []progress.Achievement{},
	}
}

func statsOf(user *models.User, completed int) progress.Stats {
	return progress.Stats{
		XP:               user.XP,
		CurrentStreak:    user.CurrentStreak,
		TotalTimeMinutes: user.TotalTimeMinutes,
		CompletedCount:   completed,
	}
}

// notifyGuardians emails opted-in guardians; failures are only logged
func (s *ProgressService) notifyGuardians(ctx context.Context, learner *models.User, earned []progress.Achievement) {
	if s.mailer == nil || !s.mailer.IsEnabled() {
		return
	}
	contacts, err := s.guardians.ListAchievementSubscribers(ctx, learner.ID)
	if err != nil {
		s.log.Warn("Failed to list guardians for achievement email", "userID", learner.ID, "error", err)
		return
	}
	for _, c := range contacts {
		if err := s.mailer.SendAchievementEmail(ctx, c.Email, c.Name, learner.FirstName, earned); err != nil {
			s.log.Warn("Failed to send achievement email", "guardianID", c.GuardianID, "error", err)
		}
	}
}

// GetProfile returns a user with derived level and achievements
func (s *ProgressService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}
	count, err := s.completions.CountCompletions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:           user,
		Level:          progress.DeriveLevel(user.XP),
		CompletedCount: count,
		Achievements:   nonNil(progress.Earned(statsOf(user, count))),
	}, nil
}

func nonNil(a []progress.Achievement) []progress.Achievement {
	if a == nil {
		return []progress.Achievement{}
	}
	return a
}

// UpdateAvatar changes the avatar after checking the options are known and
// unlocked at the user's current level
func (s *ProgressService) UpdateAvatar(ctx context.Context, userID int64, character, color string) (*models.User, error) {
	char, ok := progress.FindCharacter(character)
	if !ok || !progress.IsColorTheme(color) {
		return nil, ErrUnknownOption
	}

	var updated *models.User
	err := s.db.RetryTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)
		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrProfileNotFound
		}
		if !progress.IsUnlocked(user.XP, char.UnlockLevel) {
			return ErrOptionLocked
		}
		if err := users.UpdateAvatar(ctx, userID, user.Version, character, color); err != nil {
			return err
		}
		user.AvatarCharacter = character
		user.AvatarColor = color
		user.Version++
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, realtime.UserTopic(userID), realtime.EventUserUpdated, updated)
	return updated, nil
}

// ListActivities returns the catalogue annotated with completed and locked
// flags for userID
func (s *ProgressService) ListActivities(ctx context.Context, userID int64, contentType models.ContentType) ([]models.ActivityView, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}

	activities, err := s.activities.ListActivities(ctx, contentType)
	if err != nil {
		return nil, err
	}
	done, err := s.completions.CompletedActivityIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]models.ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, models.ActivityView{
			Activity:  a,
			Completed: done[a.ID],
			Locked:    !progress.IsUnlocked(user.XP, a.UnlockLevel),
		})
	}
	return views, nil
}

// GetActivity returns one activity annotated for userID
func (s *ProgressService) GetActivity(ctx context.Context, userID, activityID int64) (*models.ActivityView, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}

	activity, err := s.activities.GetActivityByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	done, err := s.completions.HasCompleted(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	return &models.ActivityView{
		Activity:  *activity,
		Completed: done,
		Locked:    !progress.IsUnlocked(user.XP, activity.UnlockLevel),
	}, nil
}

// RecentCompletions returns the latest completions for userID
func (s *ProgressService) RecentCompletions(ctx context.Context, userID int64, limit int) ([]models.Completion, error) {
	completions, err := s.completions.ListRecentCompletions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}
	return completions, nil
}

// IsRetryExhausted reports whether err means the write lost every retry
func IsRetryExhausted(err error) bool {
	return errors.Is(err, database.ErrRetryExhausted)
}
