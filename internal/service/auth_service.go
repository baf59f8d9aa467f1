package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/repository"
	"mathquest/internal/security"
	"mathquest/internal/validation"
)

// resetTokenTTL is how long an emailed reset link stays valid
const resetTokenTTL = time.Hour

// Login is an authenticated login session and the bearer token that names it
type Login struct {
	SessionID string       `json:"-"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// RegisterInput holds sign-up fields
type RegisterInput struct {
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	AccountType models.AccountType `json:"accountType"`
}

// AuthService handles authentication business logic
type AuthService struct {
	db              *database.DB
	users           *repository.UserRepository
	tokens          *security.TokenIssuer
	mailer          Mailer
	log             *logger.Logger
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service. mailer may be nil.
func NewAuthService(db *database.DB, users *repository.UserRepository, tokens *security.TokenIssuer, mailer Mailer, log *logger.Logger, sessionDuration time.Duration) *AuthService {
	return &AuthService{
		db:              db,
		users:           users,
		tokens:          tokens,
		mailer:          mailer,
		log:             log.With("service", "AuthService"),
		sessionDuration: sessionDuration,
	}
}

// Register creates a learner or guardian account. Administrators are only
// created by operators through CreateAdministrator.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.AccountType == "" {
		in.AccountType = models.AccountLearner
	}
	if in.AccountType != models.AccountLearner && in.AccountType != models.AccountGuardian {
		return nil, validation.ValidationError{Field: "accountType", Message: "must be learner or guardian"}
	}
	return s.createAccount(ctx, in)
}

// CreateAdministrator creates an administrator account
func (s *AuthService) CreateAdministrator(ctx context.Context, email, password, firstName string) (*models.User, error) {
	return s.createAccount(ctx, RegisterInput{
		Email:       email,
		Password:    password,
		FirstName:   firstName,
		AccountType: models.AccountAdministrator,
	})
}

func (s *AuthService) createAccount(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(in.FirstName); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		AccountType:  in.AccountType,
	})
	if err != nil {
		// lost a race with a concurrent sign-up for the same address
		if s.db.Dialect.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.log.Info("Account created", "userID", user.ID, "accountType", user.AccountType)
	return user, nil
}

// Login checks credentials and opens a login session
func (s *AuthService) Login(ctx context.Context, email, password string) (*Login, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, user)
}

func (s *AuthService) openSession(ctx context.Context, user *models.User) (*Login, error) {
	expiresAt := time.Now().Add(s.sessionDuration)
	session, err := s.users.CreateLoginSession(ctx, security.GenerateSessionID(), user.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(user.ID, string(user.AccountType), session.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Login{SessionID: session.ID, Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// AuthenticateToken resolves a bearer token to its user. The login session
// must still exist, so logout revokes outstanding tokens.
func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (*models.User, string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, "", ErrLoginNotFound
	}
	user, err := s.ValidateSession(ctx, claims.SessionID)
	if err != nil {
		return nil, "", err
	}
	if id, err := claims.UserID(); err != nil || id != user.ID {
		return nil, "", ErrLoginNotFound
	}
	return user, claims.SessionID, nil
}

// ValidateSession checks if a session is valid and returns the associated user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.users.GetLoginSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrLoginNotFound
	}
	if session.IsExpired() {
		_ = s.users.DeleteLoginSession(ctx, sessionID)
		return nil, ErrLoginExpired
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrLoginNotFound
	}
	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.users.DeleteLoginSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// OAuthLogin signs in with a federated identity. An unknown identity is
// linked to the account with the same email, or a new learner account is
// created for it.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*Login, error) {
	if provider == "" || subject == "" {
		return nil, errors.New("missing oauth provider information")
	}
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByOAuth(ctx, provider, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	if user == nil {
		existing, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing user: %w", err)
		}
		if existing != nil {
			if existing.OAuthProvider != "" && existing.OAuthProvider != provider {
				return nil, ErrEmailTaken
			}
			if err := s.users.LinkOAuth(ctx, existing.ID, provider, subject); err != nil {
				return nil, err
			}
			user = existing
		} else {
			if name == "" {
				name = strings.Split(email, "@")[0]
			}
			first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
			user, err = s.users.CreateUser(ctx, &models.User{
				Email:         email,
				FirstName:     first,
				LastName:      last,
				AccountType:   models.AccountLearner,
				OAuthProvider: provider,
				OAuthSubject:  subject,
			})
			if err != nil {
				return nil, err
			}
			s.log.Info("Account created from federated sign-in", "userID", user.ID, "provider", provider)
		}
	}

	return s.openSession(ctx, user)
}

// RequestPasswordReset emails a reset link. Unknown addresses and accounts
// without a password succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_ = s.users.DeleteUserPasswordResetTokens(ctx, user.ID)
	if err := s.users.CreatePasswordResetToken(ctx, token, user.ID, time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if s.mailer != nil && s.mailer.IsEnabled() {
		if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.FirstName, token); err != nil {
			return fmt.Errorf("failed to send reset email: %w", err)
		}
	} else {
		s.log.Warn("Email disabled, reset token not delivered", "userID", user.ID)
	}
	return nil
}

// ResetPassword sets a new password with a valid token. The token is
// consumed atomically with the password change and every existing login
// session of the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.RunInTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)

		resetToken, err := users.GetPasswordResetToken(ctx, token)
		if err != nil {
			return err
		}
		if resetToken == nil || resetToken.Used || resetToken.IsExpired() {
			return ErrInvalidResetToken
		}
		if err := users.MarkPasswordResetTokenUsed(ctx, token); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return ErrInvalidResetToken
			}
			return err
		}
		if err := users.UpdatePassword(ctx, resetToken.UserID, hash); err != nil {
			return err
		}
		return users.DeleteUserLoginSessions(ctx, resetToken.UserID)
	})
}

// CleanupExpired removes expired login sessions and reset tokens
func (s *AuthService) CleanupExpired(ctx context.Context) error {
	sessions, err := s.users.DeleteExpiredLoginSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	tokens, err := s.users.DeleteExpiredPasswordResetTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to cleanup reset tokens: %w", err)
	}
	if sessions > 0 || tokens > 0 {
		s.log.Info("Cleaned up expired credentials", "sessions", sessions, "resetTokens", tokens)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
