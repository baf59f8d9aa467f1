package models

import "time"

// AccountType is the role an account was created with
type AccountType string

const (
	AccountLearner       AccountType = "learner"
	AccountGuardian      AccountType = "guardian"
	AccountAdministrator AccountType = "administrator"
)

// Valid reports whether t is one of the known account types
func (t AccountType) Valid() bool {
	switch t {
	case AccountLearner, AccountGuardian, AccountAdministrator:
		return true
	}
	return false
}

// User is an account together with its learner progress
type User struct {
	ID            int64       `json:"id"`
	Email         string      `json:"email"`
	PasswordHash  string      `json:"-"`
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	AccountType   AccountType `json:"accountType"`
	OAuthProvider string      `json:"-"`
	OAuthSubject  string      `json:"-"`

	AvatarCharacter string `json:"avatarCharacter"`
	AvatarColor     string `json:"avatarColor"`

	XP               int `json:"xp"`
	CurrentStreak    int `json:"currentStreak"`
	TotalTimeMinutes int `json:"totalTimeMinutes"`
	// LastActivityDate is a calendar date at midnight UTC, nil before the
	// first completion
	LastActivityDate *time.Time `json:"lastActivityDate,omitempty"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName joins first and last name
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user is an administrator
func (u *User) IsAdmin() bool {
	return u.AccountType == AccountAdministrator
}

// LoginSession represents an authenticated session
type LoginSession struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired
func (s *LoginSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// PasswordResetToken represents a token for password reset
type PasswordResetToken struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
}

// IsExpired checks if the reset token has expired
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// Completion is one member of a user's completed-activity set
type Completion struct {
	UserID          int64     `json:"userId"`
	ActivityID      int64     `json:"activityId"`
	ActivityTitle   string    `json:"activityTitle,omitempty"`
	XPAwarded       int       `json:"xpAwarded"`
	MinutesCredited int       `json:"minutesCredited"`
	CompletedAt     time.Time `json:"completedAt"`
}
