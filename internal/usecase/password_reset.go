package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/learnhub/learnhub-api/internal/repository"
	"github.com/learnhub/learnhub-api/shared/security"
)

// PasswordResetUsecase defines the two-phase forgot-password flow: request an
// OTP, confirm it, then submit the new password together with the same OTP.
type PasswordResetUsecase interface {
	// RequestPasswordReset issues a reset OTP for the given email. Unknown
	// emails succeed silently so the endpoint cannot be used to enumerate
	// accounts.
	RequestPasswordReset(ctx context.Context, email string) error

	// VerifyResetOTP checks the submitted code without consuming it; the
	// OTP stays valid for the subsequent ResetPassword call.
	VerifyResetOTP(ctx context.Context, email, code string) error

	// ResetPassword re-validates the code and commits the new password,
	// clearing the reset OTP state.
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type passwordResetUsecase struct {
	userRepo repository.UserRepository
	otp      *OTPEngine
	sender   OTPSender
	logger   *zerolog.Logger
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	userRepo repository.UserRepository,
	otp *OTPEngine,
	sender OTPSender,
	logger *zerolog.Logger,
) PasswordResetUsecase {
	return &passwordResetUsecase{
		userRepo: userRepo,
		otp:      otp,
		sender:   sender,
		logger:   logger,
	}
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := u.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Do not reveal that the email does not exist.
			return nil
		}
		return err
	}

	issued, err := u.otp.Issue()
	if err != nil {
		return err
	}

	if err := u.userRepo.SetResetOTP(ctx, user.ID.Hex(), issued.Hash, issued.ExpiresAt); err != nil {
		return err
	}

	if err := u.sender.Deliver(ctx, email, issued.Code, "Password Reset"); err != nil {
		u.logger.Warn().Err(err).Str("email", email).Msg("failed to deliver reset OTP")
	}

	return nil
}

func (u *passwordResetUsecase) VerifyResetOTP(ctx context.Context, email, code string) error {
	user, err := u.userRepo.GetUserWithResetOTP(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	switch u.otp.Check(code, user.ResetOTPHash, user.ResetOTPExpiresAt, user.ResetOTPAttempts) {
	case OTPLockedOut:
		return ErrTooManyAttempts

	case OTPExpired:
		return ErrOTPInvalid

	case OTPMismatch:
		updated, err := u.userRepo.RecordFailedResetOTPAttempt(ctx, user.ID.Hex(), user.ResetOTPHash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOTPInvalid
			}
			return err
		}
		if updated.ResetOTPAttempts >= OTPMaxAttempts {
			return ErrTooManyAttempts
		}
		return ErrOTPInvalid

	case OTPValid:
		// Deliberately left pending: the same code authorizes the
		// ResetPassword call that follows.
		return nil
	}

	return ErrOTPInvalid
}

func (u *passwordResetUsecase) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := u.userRepo.GetUserWithResetOTP(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPInvalid
		}
		return err
	}

	switch u.otp.Check(code, user.ResetOTPHash, user.ResetOTPExpiresAt, user.ResetOTPAttempts) {
	case OTPLockedOut:
		return ErrTooManyAttempts

	case OTPExpired:
		return ErrOTPInvalid

	case OTPMismatch:
		updated, err := u.userRepo.RecordFailedResetOTPAttempt(ctx, user.ID.Hex(), user.ResetOTPHash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOTPInvalid
			}
			return err
		}
		if updated.ResetOTPAttempts >= OTPMaxAttempts {
			return ErrTooManyAttempts
		}
		return ErrOTPInvalid

	case OTPValid:
		passwordHash, err := security.HashPassword(newPassword)
		if err != nil {
			return err
		}

		if err := u.userRepo.ResetPassword(ctx, user.ID.Hex(), user.ResetOTPHash, passwordHash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOTPInvalid
			}
			return err
		}
		return nil
	}

	return ErrOTPInvalid
}
