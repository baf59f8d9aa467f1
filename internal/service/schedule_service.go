package service

import (
	"context"
	"strings"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/validation"
)

// ScheduleService manages tutoring sessions and their rosters
type ScheduleService struct {
	db        *database.DB
	sessions  *repository.SessionRepository
	users     *repository.UserRepository
	publisher *realtime.Publisher
	log       *logger.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(db *database.DB, sessions *repository.SessionRepository, users *repository.UserRepository, publisher *realtime.Publisher, log *logger.Logger) *ScheduleService {
	return &ScheduleService{
		db:        db,
		sessions:  sessions,
		users:     users,
		publisher: publisher,
		log:       log.With("service", "ScheduleService"),
	}
}

// JoinSession adds participantID to the roster. Joining twice succeeds
// without a write; joining a full session fails with ErrSessionFull and
// writes nothing.
func (s *ScheduleService) JoinSession(ctx context.Context, sessionID, participantID int64) (bool, error) {
	var updated *models.Session

	err := s.db.RetryTx(ctx, func(tx *database.Tx) error {
		updated = nil
		sessions := s.sessions.WithTx(tx)

		session, err := sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if session.HasParticipant(participantID) {
			return nil
		}
		if session.FullWith(len(session.Participants)) {
			return ErrSessionFull
		}

		participant, err := s.users.WithTx(tx).GetUserByID(ctx, participantID)
		if err != nil {
			return err
		}
		if participant == nil {
			return ErrProfileNotFound
		}

		roster := append(session.Participants, participantID)
		isFull := session.FullWith(len(roster))

		// claim the session version before touching the roster so a racing
		// join conflicts here instead of overfilling
		if err := sessions.UpdateRosterState(ctx, sessionID, session.Version, isFull); err != nil {
			return err
		}
		if err := sessions.AddParticipant(ctx, sessionID, participantID); err != nil {
			return err
		}

		session.Participants = roster
		session.IsFull = isFull
		session.Version++
		updated = session
		return nil
	})
	if err != nil {
		return false, err
	}

	if updated != nil {
		s.log.Info("Joined session", "sessionID", sessionID, "participantID", participantID, "isFull", updated.IsFull)
		s.publisher.Publish(ctx, realtime.SessionTopic(sessionID), realtime.EventSessionUpdated, updated)
	}
	return true, nil
}

// LeaveSession removes participantID from the roster. Leaving a session
// one is not on succeeds without a write.
func (s *ScheduleService) LeaveSession(ctx context.Context, sessionID, participantID int64) (bool, error) {
	var updated *models.Session

	err := s.db.RetryTx(ctx, func(tx *database.Tx) error {
		updated = nil
		sessions := s.sessions.WithTx(tx)

		session, err := sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if !session.HasParticipant(participantID) {
			return nil
		}

		roster := make([]int64, 0, len(session.Participants))
		for _, p := range session.Participants {
			if p != participantID {
				roster = append(roster, p)
			}
		}
		isFull := session.FullWith(len(roster))

		if err := sessions.UpdateRosterState(ctx, sessionID, session.Version, isFull); err != nil {
			return err
		}
		if _, err := sessions.RemoveParticipant(ctx, sessionID, participantID); err != nil {
			return err
		}

		session.Participants = roster
		session.IsFull = isFull
		session.Version++
		updated = session
		return nil
	})
	if err != nil {
		return false, err
	}

	if updated != nil {
		s.log.Info("Left session", "sessionID", sessionID, "participantID", participantID)
		s.publisher.Publish(ctx, realtime.SessionTopic(sessionID), realtime.EventSessionUpdated, updated)
	}
	return true, nil
}

// GetSession returns a session with its roster
func (s *ScheduleService) GetSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns every session annotated for viewerID
func (s *ScheduleService) ListSessions(ctx context.Context, viewerID int64) ([]models.SessionView, error) {
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, viewSession(session, viewerID))
	}
	return views, nil
}

// EnrolledSessions returns the sessions participantID is on the roster of
func (s *ScheduleService) EnrolledSessions(ctx context.Context, participantID int64) ([]models.SessionView, error) {
	ids, err := s.sessions.ListSessionIDsForParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	views := make([]models.SessionView, 0, len(ids))
	for _, id := range ids {
		session, err := s.sessions.GetSessionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if session != nil {
			views = append(views, viewSession(*session, participantID))
		}
	}
	return views, nil
}

func viewSession(session models.Session, viewerID int64) models.SessionView {
	return models.SessionView{
		Session:   session,
		Enrolled:  session.HasParticipant(viewerID),
		SpotsLeft: session.SpotsLeft(),
	}
}

// SessionInput holds the editable fields of a session
type SessionInput struct {
	Name      string             `json:"name"`
	Day       string             `json:"day"`
	StartTime string             `json:"startTime"`
	EndTime   string             `json:"endTime"`
	Type      models.SessionType `json:"type"`
	Teacher   string             `json:"teacher"`
	Capacity  *int               `json:"capacity"`
}

// Validate checks the session input
func (in *SessionInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Teacher = strings.TrimSpace(in.Teacher)
	if in.Type == "" {
		in.Type = models.SessionTutoring
	}

	if err := validation.ValidateRequired("name", in.Name); err != nil {
		return err
	}
	if err := validation.ValidateRequired("teacher", in.Teacher); err != nil {
		return err
	}
	if err := validation.ValidateWeekday(in.Day); err != nil {
		return err
	}
	if err := validation.ValidateClockTime("startTime", in.StartTime); err != nil {
		return err
	}
	if err := validation.ValidateClockTime("endTime", in.EndTime); err != nil {
		return err
	}
	if in.EndTime <= in.StartTime {
		return validation.ValidationError{Field: "endTime", Message: "must be after start time"}
	}
	if in.Type != models.SessionTutoring && in.Type != models.SessionGroup {
		return validation.ValidationError{Field: "type", Message: "must be Tutoring or Group"}
	}
	if in.Capacity != nil {
		if err := validation.ValidateNonNegative("capacity", *in.Capacity); err != nil {
			return err
		}
	}
	return nil
}

func (in *SessionInput) apply(session *models.Session) {
	session.Name = in.Name
	session.Day = in.Day
	session.StartTime = in.StartTime
	session.EndTime = in.EndTime
	session.Type = in.Type
	session.Teacher = in.Teacher
	session.Capacity = in.Capacity
}

// CreateSession schedules a new session
func (s *ScheduleService) CreateSession(ctx context.Context, in SessionInput) (*models.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	session := &models.Session{}
	in.apply(session)

	created, err := s.sessions.CreateSession(ctx, session)
	if err != nil {
		return nil, err
	}
	s.log.Info("Session created", "sessionID", created.ID, "name", created.Name)
	s.publisher.Publish(ctx, realtime.SessionTopic(created.ID), realtime.EventSessionUpdated, created)
	return created, nil
}

// UpdateSession edits a session. Changing capacity recomputes the full flag
// against the current roster; existing participants are never evicted.
func (s *ScheduleService) UpdateSession(ctx context.Context, sessionID int64, in SessionInput) (*models.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Session
	err := s.db.RetryTx(ctx, func(tx *database.Tx) error {
		sessions := s.sessions.WithTx(tx)
		session, err := sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		in.apply(session)
		session.IsFull = session.FullWith(len(session.Participants))
		if err := sessions.UpdateSessionDetails(ctx, session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, realtime.SessionTopic(sessionID), realtime.EventSessionUpdated, updated)
	return updated, nil
}

// DeleteSession removes a session and its roster
func (s *ScheduleService) DeleteSession(ctx context.Context, sessionID int64) error {
	var found bool
	err := s.db.RunInTx(ctx, func(tx *database.Tx) error {
		var err error
		found, err = s.sessions.WithTx(tx).DeleteSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	s.publisher.Publish(ctx, realtime.SessionTopic(sessionID), realtime.EventSessionDeleted, map[string]int64{"id": sessionID})
	return nil
}
