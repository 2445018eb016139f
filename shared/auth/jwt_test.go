package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(accessTTL, refreshTTL time.Duration) *TokenService {
	return NewTokenService(TokenServiceConfig{
		Issuer:           "learnhub-test",
		AccessSecret:     "access-secret",
		RefreshSecret:    "refresh-secret",
		AccessExpiresIn:  accessTTL,
		RefreshExpiresIn: refreshTTL,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(time.Minute, time.Hour)

	access, err := svc.IssueAccess("user-1")
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	gotAccess, err := svc.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", gotAccess)

	gotRefresh, err := svc.VerifyRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", gotRefresh)
}

func TestTokenNamespacesAreDistinct(t *testing.T) {
	svc := newTestTokenService(time.Minute, time.Hour)

	access, err := svc.IssueAccess("user-1")
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpired(t *testing.T) {
	svc := newTestTokenService(time.Minute, -time.Minute)

	refresh, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenGarbageRejected(t *testing.T) {
	svc := newTestTokenService(time.Minute, time.Hour)

	_, err := svc.VerifyRefresh("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other := NewTokenService(TokenServiceConfig{
		Issuer:           "learnhub-test",
		AccessSecret:     "other-access",
		RefreshSecret:    "other-refresh",
		AccessExpiresIn:  time.Minute,
		RefreshExpiresIn: time.Hour,
	})
	forged, err := other.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConsecutiveTokensDiffer(t *testing.T) {
	svc := newTestTokenService(time.Minute, time.Hour)

	first, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)
	second, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	// Issued within the same second; the jti keeps them distinct.
	assert.NotEqual(t, first, second)
}
