package models

import "time"

// SessionType distinguishes one-to-one tutoring from group sessions
type SessionType string

const (
	SessionTutoring SessionType = "Tutoring"
	SessionGroup    SessionType = "Group"
)

// Session is a scheduled tutoring or group meeting
type Session struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Day       string      `json:"day"`
	StartTime string      `json:"startTime"`
	EndTime   string      `json:"endTime"`
	Type      SessionType `json:"type"`
	Teacher   string      `json:"teacher"`
	// Capacity is nil for unlimited sessions
	Capacity *int `json:"capacity,omitempty"`
	// Participants holds user ids in join order
	Participants []int64   `json:"participants"`
	IsFull       bool      `json:"isFull"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasParticipant reports whether id is on the roster
func (s *Session) HasParticipant(id int64) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// FullWith reports whether a roster of n participants fills the session
func (s *Session) FullWith(n int) bool {
	return s.Capacity != nil && n >= *s.Capacity
}

// SpotsLeft returns the remaining places, or nil when unlimited
func (s *Session) SpotsLeft() *int {
	if s.Capacity == nil {
		return nil
	}
	left := *s.Capacity - len(s.Participants)
	if left < 0 {
		left = 0
	}
	return &left
}

// SessionView is a session annotated for a particular learner
type SessionView struct {
	Session
	Enrolled  bool `json:"enrolled"`
	SpotsLeft *int `json:"spotsLeft,omitempty"`
}
