package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned for malformed, forged or otherwise
	// unverifiable tokens.
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenClaims carries the account identifier alongside the registered claims.
type TokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenServiceConfig holds the signing material and lifetimes for both token
// namespaces. Access and refresh tokens use distinct secrets so one class can
// never be replayed as the other.
type TokenServiceConfig struct {
	Issuer           string
	AccessSecret     string
	RefreshSecret    string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}

// TokenService issues and verifies HS256-signed access and refresh tokens.
// Tokens are self-contained; whether a refresh token is still authorized is
// decided by the session manager, not by signature validity alone.
type TokenService struct {
	config TokenServiceConfig
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(config TokenServiceConfig) *TokenService {
	return &TokenService{config: config}
}

// IssueAccess creates a short-lived access token for the given account.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	return s.generate(userID, s.config.AccessSecret, s.config.AccessExpiresIn)
}

// IssueRefresh creates a refresh token for the given account. Every issued
// token carries a fresh jti, so two rotations within the same second still
// produce distinct values.
func (s *TokenService) IssueRefresh(userID string) (string, error) {
	return s.generate(userID, s.config.RefreshSecret, s.config.RefreshExpiresIn)
}

// VerifyAccess validates an access token and returns the account identifier
// it was issued to.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	return s.verify(token, s.config.AccessSecret)
}

// VerifyRefresh validates a refresh token and returns the account identifier
// it was issued to.
func (s *TokenService) VerifyRefresh(token string) (string, error) {
	return s.verify(token, s.config.RefreshSecret)
}

func (s *TokenService) generate(userID, secret string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Issuer},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenStr, nil
}

func (s *TokenService) verify(tokenString, secret string) (string, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return []byte(secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(s.config.Issuer),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if !token.Valid || claims.UserID == "" {
		return "", ErrTokenInvalid
	}

	return claims.UserID, nil
}
