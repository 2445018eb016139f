package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-api/internal/model"
	"github.com/learnhub/learnhub-api/shared/auth"
)

func TestSessionStartPersistsRefreshToken(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	pair, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	stored, err := stack.repo.GetUserWithRefreshToken(ctx, user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)
}

func TestRotateIsSingleUse(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	pair1, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)

	pair2, rotatedUser, err := stack.sessions.Rotate(ctx, pair1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, rotatedUser.ID)
	assert.NotEqual(t, pair1.AccessToken, pair2.AccessToken)
	assert.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)

	// Replaying the rotated-out token must fail.
	_, _, err = stack.sessions.Rotate(ctx, pair1.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// The current token keeps working.
	_, _, err = stack.sessions.Rotate(ctx, pair2.RefreshToken)
	assert.NoError(t, err)
}

func TestRotateRejectsForgedToken(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	_, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)

	// Well-signed but never the stored value.
	forged, err := stack.tokens.IssueRefresh(user.ID.Hex())
	require.NoError(t, err)

	_, _, err = stack.sessions.Rotate(ctx, forged)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestEndSession(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	pair, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)

	require.NoError(t, stack.sessions.End(ctx, pair.RefreshToken))

	_, _, err = stack.sessions.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Ending an unknown or empty session is a no-op, not an error.
	assert.NoError(t, stack.sessions.End(ctx, pair.RefreshToken))
	assert.NoError(t, stack.sessions.End(ctx, ""))
}

func TestIdentifyDoesNotConsumeRotation(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	pair, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)

	accessToken, identified, err := stack.sessions.Identify(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.Equal(t, user.ID, identified.ID)

	// The stored refresh token is untouched; a rotation still succeeds.
	_, _, err = stack.sessions.Rotate(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestIdentifyErrors(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	user := createUser(t, stack.repo, "alice@example.com", "Secret123", model.RoleStudent)

	pair1, err := stack.sessions.Start(ctx, user.ID.Hex())
	require.NoError(t, err)
	pair2, _, err := stack.sessions.Rotate(ctx, pair1.RefreshToken)
	require.NoError(t, err)

	_, _, err = stack.sessions.Identify(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, _, err = stack.sessions.Identify(ctx, pair1.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, _, err = stack.sessions.Identify(ctx, pair2.RefreshToken)
	assert.NoError(t, err)

	// Valid signature but the account does not exist.
	orphan, err := stack.tokens.IssueRefresh("64b0c8f4a1b2c3d4e5f60718")
	require.NoError(t, err)
	_, _, err = stack.sessions.Identify(ctx, orphan)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
