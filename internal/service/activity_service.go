package service

import (
	"context"
	"strings"

	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/validation"
)

// ActivityInput holds the editable fields of an activity
type ActivityInput struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	ContentType   models.ContentType    `json:"contentType"`
	Difficulty    string                `json:"difficulty"`
	DurationLabel string                `json:"duration"`
	XPValue       int                   `json:"xpValue"`
	UnlockLevel   *int                  `json:"unlockLevel"`
	Icon          string                `json:"icon"`
	URL           string                `json:"url"`
	Body          string                `json:"body"`
	Questions     []models.QuizQuestion `json:"questions"`
}

var difficulties = map[string]bool{"Easy": true, "Medium": true, "Hard": true}

// Validate checks the activity input
func (in *ActivityInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Difficulty == "" {
		in.Difficulty = "Easy"
	}

	if err := validation.ValidateRequired("title", in.Title); err != nil {
		return err
	}
	if !in.ContentType.Valid() {
		return validation.ValidationError{Field: "contentType", Message: "must be lesson, quiz, video or download"}
	}
	if !difficulties[in.Difficulty] {
		return validation.ValidationError{Field: "difficulty", Message: "must be Easy, Medium or Hard"}
	}
	if err := validation.ValidateNonNegative("xpValue", in.XPValue); err != nil {
		return err
	}
	if in.UnlockLevel != nil && *in.UnlockLevel < 1 {
		return validation.ValidationError{Field: "unlockLevel", Message: "must be at least 1"}
	}
	if in.ContentType == models.ContentQuiz && len(in.Questions) > 0 {
		if err := validateQuestions(in.Questions); err != nil {
			return validation.ValidationError{Field: "questions", Message: err.Error()}
		}
	}
	return nil
}

func (in *ActivityInput) toActivity(id int64) *models.Activity {
	return &models.Activity{
		ID:            id,
		Title:         in.Title,
		Description:   in.Description,
		ContentType:   in.ContentType,
		Difficulty:    in.Difficulty,
		DurationLabel: in.DurationLabel,
		XPValue:       in.XPValue,
		UnlockLevel:   in.UnlockLevel,
		Icon:          in.Icon,
		URL:           in.URL,
		Body:          in.Body,
		Questions:     in.Questions,
	}
}

// CatalogService lets administrators author activities
type CatalogService struct {
	activities *repository.ActivityRepository
	publisher  *realtime.Publisher
	log        *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(activities *repository.ActivityRepository, publisher *realtime.Publisher, log *logger.Logger) *CatalogService {
	return &CatalogService{
		activities: activities,
		publisher:  publisher,
		log:        log.With("service", "CatalogService"),
	}
}

// CreateActivity adds an activity to the catalogue
func (s *CatalogService) CreateActivity(ctx context.Context, in ActivityInput) (*models.Activity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	created, err := s.activities.CreateActivity(ctx, in.toActivity(0))
	if err != nil {
		return nil, err
	}
	s.log.Info("Activity created", "activityID", created.ID, "title", created.Title)
	s.publisher.Publish(ctx, realtime.TopicActivities, realtime.EventActivityCreated, created)
	return created, nil
}

// UpdateActivity replaces an activity's fields
func (s *CatalogService) UpdateActivity(ctx context.Context, id int64, in ActivityInput) (*models.Activity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	activity := in.toActivity(id)
	found, err := s.activities.UpdateActivity(ctx, activity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrActivityNotFound
	}
	updated, err := s.activities.GetActivityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrActivityNotFound
	}
	s.publisher.Publish(ctx, realtime.TopicActivities, realtime.EventActivityUpdated, updated)
	return updated, nil
}

// DeleteActivity removes an activity. XP already awarded for it is kept.
func (s *CatalogService) DeleteActivity(ctx context.Context, id int64) error {
	found, err := s.activities.DeleteActivity(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrActivityNotFound
	}
	s.log.Info("Activity deleted", "activityID", id)
	s.publisher.Publish(ctx, realtime.TopicActivities, realtime.EventActivityDeleted, map[string]int64{"id": id})
	return nil
}
