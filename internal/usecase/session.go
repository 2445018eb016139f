package usecase

import (
	"context"
	"errors"

	"github.com/learnhub/learnhub-api/internal/model"
	"github.com/learnhub/learnhub-api/internal/repository"
	"github.com/learnhub/learnhub-api/shared/auth"
)

// ErrSessionInvalid is returned when a presented refresh token is well-formed
// but no longer bound to the account: it was rotated out, revoked by logout,
// or never issued by us.
var ErrSessionInvalid = errors.New("session is no longer valid")

// TokenPair is one access token and one refresh token issued together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionManager reconciles stateless refresh tokens against the single
// authoritative refresh-token value stored on the account. Rotation makes
// each refresh token single-use: presenting a token that is signature-valid
// but not the stored value is treated as replay and rejected.
type SessionManager struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenService
}

func NewSessionManager(userRepo repository.UserRepository, tokens *auth.TokenService) *SessionManager {
	return &SessionManager{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Start issues a fresh token pair and persists the refresh token as the
// account's sole live session, replacing any previous one.
func (m *SessionManager) Start(ctx context.Context, userID string) (*TokenPair, error) {
	pair, err := m.issuePair(userID)
	if err != nil {
		return nil, err
	}

	if err := m.userRepo.SetRefreshToken(ctx, userID, pair.RefreshToken); err != nil {
		return nil, err
	}

	return pair, nil
}

// Rotate exchanges a presented refresh token for a fresh pair. The presented
// token must equal the stored value exactly; the replacement is persisted
// conditionally on that value so a concurrent rotation cannot be lost.
func (m *SessionManager) Rotate(ctx context.Context, presented string) (*TokenPair, *model.User, error) {
	userID, err := m.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	user, err := m.userRepo.GetUserWithRefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	if user.RefreshToken != presented {
		return nil, nil, ErrSessionInvalid
	}

	pair, err := m.issuePair(userID)
	if err != nil {
		return nil, nil, err
	}

	if err := m.userRepo.RotateRefreshToken(ctx, userID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race against another rotation or a logout.
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	user.RefreshToken = ""
	return pair, user, nil
}

// End revokes the session bound to the presented refresh token. The account
// is located by the stored token value, not by the identity claimed inside
// the token; an unknown token is a no-op.
func (m *SessionManager) End(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	return m.userRepo.ClearRefreshTokenByValue(ctx, presented)
}

// Identify is the read-only variant of Rotate: it validates the presented
// token against the stored value and mints a fresh access token without
// consuming the rotation.
//
// Callers can distinguish auth.ErrTokenInvalid / auth.ErrTokenExpired (bad
// token), ErrUserNotFound (account gone) and ErrSessionInvalid (token no
// longer bound).
func (m *SessionManager) Identify(ctx context.Context, presented string) (string, *model.User, error) {
	userID, err := m.tokens.VerifyRefresh(presented)
	if err != nil {
		return "", nil, err
	}

	user, err := m.userRepo.GetUserWithRefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, err
	}

	if user.RefreshToken != presented {
		return "", nil, ErrSessionInvalid
	}

	accessToken, err := m.tokens.IssueAccess(userID)
	if err != nil {
		return "", nil, err
	}

	user.RefreshToken = ""
	return accessToken, user, nil
}

func (m *SessionManager) issuePair(userID string) (*TokenPair, error) {
	accessToken, err := m.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := m.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
