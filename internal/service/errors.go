package service

import "errors"

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrActivityNotFound = errors.New("activity not found")
	ErrActivityLocked   = errors.New("activity is locked for this level")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionFull      = errors.New("session is full")
	ErrMalformedContent = errors.New("generated content failed validation")
	ErrGeneratorOff     = errors.New("content generation is not configured")

	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLoginNotFound      = errors.New("login session not found")
	ErrLoginExpired       = errors.New("login session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")

	ErrForbidden     = errors.New("forbidden")
	ErrNotALearner   = errors.New("account is not a learner")
	ErrOptionLocked  = errors.New("avatar option is locked")
	ErrUnknownOption = errors.New("unknown avatar option")
)
