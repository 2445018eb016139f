package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/learnhub/learnhub-api/internal/model"
	"github.com/learnhub/learnhub-api/internal/repository"
	"github.com/learnhub/learnhub-api/shared/auth"
	"github.com/learnhub/learnhub-api/shared/security"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrOTPInvalid         = errors.New("invalid or expired OTP")
	ErrTooManyAttempts    = errors.New("too many failed OTP attempts")
	ErrRoleNotAllowed     = errors.New("role not allowed for this caller")
)

// OTPSender delivers a cleartext one-time code to an account's email.
// Delivery failures are reported to the caller but never roll back persisted
// OTP state; the user can always request a resend.
type OTPSender interface {
	Deliver(ctx context.Context, email, code, purpose string) error
}

// AuthUsecase covers registration, account verification and login.
type AuthUsecase interface {
	Register(ctx context.Context, params RegisterParams) (*model.User, error)
	VerifyOTP(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*TokenPair, *model.User, error)
}

// RegisterParams defines the input for user registration. CallerToken is the
// access token of the requesting caller, if any; it is only consulted when a
// privileged role is requested.
type RegisterParams struct {
	Name        string
	Email       string
	Password    string
	Role        string
	CallerToken string
}

type authUsecase struct {
	userRepo repository.UserRepository
	otp      *OTPEngine
	sessions *SessionManager
	tokens   *auth.TokenService
	sender   OTPSender
	logger   *zerolog.Logger
}

func NewAuthUsecase(
	userRepo repository.UserRepository,
	otp *OTPEngine,
	sessions *SessionManager,
	tokens *auth.TokenService,
	sender OTPSender,
	logger *zerolog.Logger,
) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		otp:      otp,
		sessions: sessions,
		tokens:   tokens,
		sender:   sender,
		logger:   logger,
	}
}

// NormalizeEmail lowercases and trims an email so it can serve as the
// case-insensitive identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*model.User, error) {
	email := NormalizeEmail(params.Email)

	role := params.Role
	if role == "" {
		role = model.RoleStudent
	}
	if err := u.authorizeRole(ctx, role, params.CallerToken); err != nil {
		return nil, err
	}

	passwordHash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	issued, err := u.otp.Issue()
	if err != nil {
		return nil, err
	}

	user, err := u.userRepo.CreateUser(ctx, &model.User{
		Name:         params.Name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Verified:     false,
		OTPHash:      issued.Hash,
		OTPExpiresAt: issued.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	u.deliverOTP(ctx, email, issued.Code, "Email Verification")

	user.PasswordHash = ""
	user.OTPHash = ""
	return user, nil
}

// authorizeRole enforces that privileged roles can only be assigned by a
// caller who already holds the admin role. Student and tutor are open to
// self-registration.
func (u *authUsecase) authorizeRole(ctx context.Context, role, callerToken string) error {
	switch role {
	case model.RoleStudent, model.RoleTutor:
		return nil
	case model.RoleAdmin:
	default:
		return ErrRoleNotAllowed
	}

	if callerToken == "" {
		return ErrRoleNotAllowed
	}

	callerID, err := u.tokens.VerifyAccess(callerToken)
	if err != nil {
		return ErrRoleNotAllowed
	}

	caller, err := u.userRepo.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotAllowed
		}
		return err
	}

	if caller.Role != model.RoleAdmin {
		return ErrRoleNotAllowed
	}
	return nil
}

func (u *authUsecase) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := u.userRepo.GetUserWithOTP(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.Verified {
		return ErrAlreadyVerified
	}

	switch u.otp.Check(code, user.OTPHash, user.OTPExpiresAt, user.OTPAttempts) {
	case OTPLockedOut:
		return ErrTooManyAttempts

	case OTPExpired:
		return ErrOTPInvalid

	case OTPMismatch:
		updated, err := u.userRepo.RecordFailedOTPAttempt(ctx, user.ID.Hex(), user.OTPHash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// The OTP was replaced while this check was in flight.
				return ErrOTPInvalid
			}
			return err
		}
		if updated.OTPAttempts >= OTPMaxAttempts {
			return ErrTooManyAttempts
		}
		return ErrOTPInvalid

	case OTPValid:
		if err := u.userRepo.MarkVerified(ctx, user.ID.Hex(), user.OTPHash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOTPInvalid
			}
			return err
		}
		return nil
	}

	return ErrOTPInvalid
}

func (u *authUsecase) ResendOTP(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := u.userRepo.GetUserWithOTP(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.Verified {
		return ErrAlreadyVerified
	}

	// A resend consumes an attempt slot, so the counter throttles resends
	// and wrong guesses together.
	if user.OTPAttempts >= OTPMaxAttempts {
		return ErrTooManyAttempts
	}

	issued, err := u.otp.Issue()
	if err != nil {
		return err
	}

	if _, err := u.userRepo.ReissueVerificationOTP(ctx, user.ID.Hex(), issued.Hash, issued.ExpiresAt); err != nil {
		return err
	}

	u.deliverOTP(ctx, email, issued.Code, "Resent Verification OTP")
	return nil
}

func (u *authUsecase) Login(ctx context.Context, email, password string) (*TokenPair, *model.User, error) {
	user, err := u.userRepo.GetUserWithPassword(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if ok, err := security.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, nil, ErrInvalidCredentials
	} else if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := u.sessions.Start(ctx, user.ID.Hex())
	if err != nil {
		return nil, nil, err
	}

	user.PasswordHash = ""
	return pair, user, nil
}

func (u *authUsecase) deliverOTP(ctx context.Context, email, code, purpose string) {
	if err := u.sender.Deliver(ctx, email, code, purpose); err != nil {
		u.logger.Warn().Err(err).Str("email", email).Str("purpose", purpose).
			Msg("failed to deliver OTP")
	}
}
