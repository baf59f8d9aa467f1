package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/validation"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, RegisterInput{
		Email:     "  Maya@Example.com ",
		Password:  "secret123",
		FirstName: "Maya",
	})
	require.NoError(t, err)
	assert.Equal(t, "maya@example.com", user.Email)
	assert.Equal(t, models.AccountLearner, user.AccountType)
	assert.Equal(t, 0, user.XP)
	assert.Equal(t, progress.DefaultCharacter, user.AvatarCharacter)
	assert.Equal(t, progress.DefaultColor, user.AvatarColor)

	_, err = env.auth.Register(ctx, RegisterInput{Email: "maya@example.com", Password: "secret123", FirstName: "Maya"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = env.auth.Login(ctx, "maya@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := env.auth.Login(ctx, "MAYA@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	authed, sessionID, err := env.auth.AuthenticateToken(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.Equal(t, login.SessionID, sessionID)

	require.NoError(t, env.auth.Logout(ctx, sessionID))
	_, _, err = env.auth.AuthenticateToken(ctx, login.Token)
	assert.ErrorIs(t, err, ErrLoginNotFound, "logout revokes the bearer token")

	_, _, err = env.auth.AuthenticateToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrLoginNotFound)
}

func TestRegisterRejectsAdministrator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{
		Email: "boss@example.com", Password: "secret123", FirstName: "Boss",
		AccountType: models.AccountAdministrator,
	})
	var verr validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "accountType", verr.Field)

	admin, err := env.auth.CreateAdministrator(ctx, "boss@example.com", "secret123", "Boss")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{Email: "maya@example.com", Password: "secret123", FirstName: "Maya"})
	require.NoError(t, err)
	login, err := env.auth.Login(ctx, "maya@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "unknown@example.com"))
	require.NoError(t, env.auth.RequestPasswordReset(ctx, "maya@example.com"))
	token := env.mailer.resetTokens["maya@example.com"]
	require.NotEmpty(t, token)

	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "bogus", "newsecret1"), ErrInvalidResetToken)
	require.NoError(t, env.auth.ResetPassword(ctx, token, "newsecret1"))
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, token, "another12"), ErrInvalidResetToken, "tokens are single use")

	_, err = env.auth.Login(ctx, "maya@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "maya@example.com", "newsecret1")
	require.NoError(t, err)

	_, err = env.auth.ValidateSession(ctx, login.SessionID)
	assert.ErrorIs(t, err, ErrLoginNotFound, "reset signs out old sessions")
}

func TestOAuthLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.auth.OAuthLogin(ctx, "google", "sub-1", "sam@example.com", "Sam Jones")
	require.NoError(t, err)
	assert.Equal(t, "Sam", first.User.FirstName)
	assert.Equal(t, "Jones", first.User.LastName)
	assert.Equal(t, models.AccountLearner, first.User.AccountType)

	again, err := env.auth.OAuthLogin(ctx, "google", "sub-1", "sam@example.com", "Sam Jones")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)

	// an existing password account is linked by email
	registered, err := env.auth.Register(ctx, RegisterInput{Email: "kim@example.com", Password: "secret123", FirstName: "Kim", AccountType: models.AccountGuardian})
	require.NoError(t, err)
	linked, err := env.auth.OAuthLogin(ctx, "google", "sub-2", "kim@example.com", "Kim")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, linked.User.ID)
	assert.Equal(t, models.AccountGuardian, linked.User.AccountType)
}

func TestCleanupExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "maya@example.com", models.AccountLearner)

	_, err := env.users.CreateLoginSession(ctx, "expired", user.ID, timeAgo())
	require.NoError(t, err)
	require.NoError(t, env.auth.CleanupExpired(ctx))

	session, err := env.users.GetLoginSession(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, session)
}
