package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-api/internal/model"
	"github.com/learnhub/learnhub-api/internal/repository"
	"github.com/learnhub/learnhub-api/shared/auth"
	"github.com/learnhub/learnhub-api/shared/security"
)

// stubSender records delivered codes instead of sending mail.
type stubSender struct {
	mu    sync.Mutex
	codes map[string]string // email -> last delivered code
	sent  int
}

func newStubSender() *stubSender {
	return &stubSender{codes: make(map[string]string)}
}

func (s *stubSender) Deliver(_ context.Context, email, code, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
	s.sent++
	return nil
}

func (s *stubSender) lastCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

func (s *stubSender) deliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

type testStack struct {
	repo     *repository.InMemoryUserRepository
	tokens   *auth.TokenService
	sessions *SessionManager
	auth     AuthUsecase
	reset    PasswordResetUsecase
	sender   *stubSender
}

func newTestStack(t *testing.T, otpTTL time.Duration) *testStack {
	t.Helper()

	repo := repository.NewInMemoryUserRepository()
	tokens := auth.NewTokenService(auth.TokenServiceConfig{
		Issuer:           "learnhub-test",
		AccessSecret:     "access-secret",
		RefreshSecret:    "refresh-secret",
		AccessExpiresIn:  time.Minute,
		RefreshExpiresIn: time.Hour,
	})
	engine := NewOTPEngine(otpTTL)
	sender := newStubSender()
	logger := zerolog.Nop()

	sessions := NewSessionManager(repo, tokens)

	return &testStack{
		repo:     repo,
		tokens:   tokens,
		sessions: sessions,
		auth:     NewAuthUsecase(repo, engine, sessions, tokens, sender, &logger),
		reset:    NewPasswordResetUsecase(repo, engine, sender, &logger),
		sender:   sender,
	}
}

// createUser inserts an account directly, bypassing the registration flow.
func createUser(t *testing.T, repo *repository.InMemoryUserRepository, email, password, role string) *model.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	user, err := repo.CreateUser(context.Background(), &model.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Verified:     true,
	})
	require.NoError(t, err)
	return user
}
