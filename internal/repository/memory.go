package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/learnhub/learnhub-api/internal/model"
)

// InMemoryUserRepository is a mutex-guarded UserRepository used by tests and
// local development. It honors the same conditional-update contract as the
// Mongo implementation.
type InMemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*model.User // keyed by ID hex
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]*model.User)}
}

func clone(u *model.User) *model.User {
	c := *u
	return &c
}

func sanitize(u *model.User) *model.User {
	c := clone(u)
	c.PasswordHash = ""
	c.OTPHash = ""
	c.ResetOTPHash = ""
	c.RefreshToken = ""
	return c
}

func (r *InMemoryUserRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return nil, ErrDuplicateEmail
		}
	}

	now := time.Now()
	user.ID = bson.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID.Hex()] = clone(user)

	return user, nil
}

func (r *InMemoryUserRepository) byEmail(email string) *model.User {
	for _, u := range r.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (r *InMemoryUserRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sanitize(u), nil
}

func (r *InMemoryUserRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.byEmail(email)
	if u == nil {
		return nil, ErrNotFound
	}
	return sanitize(u), nil
}

func (r *InMemoryUserRepository) GetUserWithPassword(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.byEmail(email)
	if u == nil {
		return nil, ErrNotFound
	}
	c := sanitize(u)
	c.PasswordHash = u.PasswordHash
	return c, nil
}

func (r *InMemoryUserRepository) GetUserWithOTP(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.byEmail(email)
	if u == nil {
		return nil, ErrNotFound
	}
	c := sanitize(u)
	c.OTPHash = u.OTPHash
	return c, nil
}

func (r *InMemoryUserRepository) GetUserWithResetOTP(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.byEmail(email)
	if u == nil {
		return nil, ErrNotFound
	}
	c := sanitize(u)
	c.ResetOTPHash = u.ResetOTPHash
	return c, nil
}

func (r *InMemoryUserRepository) GetUserWithRefreshToken(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := sanitize(u)
	c.RefreshToken = u.RefreshToken
	return c, nil
}

func (r *InMemoryUserRepository) GetUserByRefreshToken(_ context.Context, token string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return nil, ErrNotFound
	}
	for _, u := range r.users {
		if u.RefreshToken == token {
			c := sanitize(u)
			c.RefreshToken = u.RefreshToken
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryUserRepository) ReissueVerificationOTP(
	_ context.Context,
	id, hash string,
	expiresAt time.Time,
) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.OTPHash = hash
	u.OTPExpiresAt = expiresAt
	u.OTPAttempts++
	u.UpdatedAt = time.Now()
	return sanitize(u), nil
}

func (r *InMemoryUserRepository) RecordFailedOTPAttempt(_ context.Context, id, prevHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.OTPHash != prevHash {
		return nil, ErrNotFound
	}
	u.OTPAttempts++
	u.UpdatedAt = time.Now()
	return sanitize(u), nil
}

func (r *InMemoryUserRepository) MarkVerified(_ context.Context, id, prevHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.OTPHash != prevHash {
		return ErrNotFound
	}
	u.Verified = true
	u.OTPHash = ""
	u.OTPExpiresAt = time.Time{}
	u.OTPAttempts = 0
	u.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryUserRepository) SetResetOTP(_ context.Context, id, hash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetOTPHash = hash
	u.ResetOTPExpiresAt = expiresAt
	u.ResetOTPAttempts = 0
	u.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryUserRepository) RecordFailedResetOTPAttempt(_ context.Context, id, prevHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.ResetOTPHash != prevHash {
		return nil, ErrNotFound
	}
	u.ResetOTPAttempts++
	u.UpdatedAt = time.Now()
	return sanitize(u), nil
}

func (r *InMemoryUserRepository) ResetPassword(_ context.Context, id, prevHash, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.ResetOTPHash != prevHash {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetOTPHash = ""
	u.ResetOTPExpiresAt = time.Time{}
	u.ResetOTPAttempts = 0
	u.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryUserRepository) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryUserRepository) RotateRefreshToken(_ context.Context, id, prev, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.RefreshToken != prev {
		return ErrNotFound
	}
	u.RefreshToken = next
	u.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryUserRepository) ClearRefreshTokenByValue(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return nil
	}
	for _, u := range r.users {
		if u.RefreshToken == token {
			u.RefreshToken = ""
			u.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}
