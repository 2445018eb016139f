package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-api/internal/model"
)

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)

	// Unknown emails succeed silently and send nothing.
	require.NoError(t, stack.reset.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Zero(t, stack.sender.deliveries())
}

func TestPasswordResetRoundTrip(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	createUser(t, stack.repo, "alice@example.com", "OldSecret1", model.RoleStudent)

	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))
	code := stack.sender.lastCode("alice@example.com")
	require.NotEmpty(t, code)

	// Phase one confirms without consuming; the client may re-verify.
	require.NoError(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", code))
	require.NoError(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", code))

	// Phase two commits the new password.
	require.NoError(t, stack.reset.ResetPassword(ctx, "alice@example.com", code, "NewSecret1"))

	_, _, err := stack.auth.Login(ctx, "alice@example.com", "OldSecret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = stack.auth.Login(ctx, "alice@example.com", "NewSecret1")
	assert.NoError(t, err)

	// The consumed OTP is gone.
	assert.ErrorIs(t, stack.reset.ResetPassword(ctx, "alice@example.com", code, "Another1"), ErrOTPInvalid)
}

func TestResetPasswordWrongCode(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	createUser(t, stack.repo, "alice@example.com", "OldSecret1", model.RoleStudent)

	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))

	assert.ErrorIs(t, stack.reset.ResetPassword(ctx, "alice@example.com", "000000", "NewSecret1"), ErrOTPInvalid)

	user, err := stack.repo.GetUserWithResetOTP(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, user.ResetOTPAttempts)

	// The old password still works.
	_, _, err = stack.auth.Login(ctx, "alice@example.com", "OldSecret1")
	assert.NoError(t, err)
}

func TestResetPasswordLockout(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	createUser(t, stack.repo, "alice@example.com", "OldSecret1", model.RoleStudent)

	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))
	code := stack.sender.lastCode("alice@example.com")

	for i := 0; i < OTPMaxAttempts-1; i++ {
		assert.ErrorIs(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", "000000"), ErrOTPInvalid)
	}
	assert.ErrorIs(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", "000000"), ErrTooManyAttempts)

	// The ceiling is checked before the code is re-validated.
	assert.ErrorIs(t, stack.reset.ResetPassword(ctx, "alice@example.com", code, "NewSecret1"), ErrTooManyAttempts)

	// Requesting a fresh OTP is the only way out of lockout.
	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))
	freshCode := stack.sender.lastCode("alice@example.com")
	require.NotEqual(t, code, freshCode)
	require.NoError(t, stack.reset.ResetPassword(ctx, "alice@example.com", freshCode, "NewSecret1"))

	_, _, err := stack.auth.Login(ctx, "alice@example.com", "NewSecret1")
	assert.NoError(t, err)
}

func TestResetOTPExpired(t *testing.T) {
	stack := newTestStack(t, -time.Minute)
	ctx := context.Background()
	createUser(t, stack.repo, "alice@example.com", "OldSecret1", model.RoleStudent)

	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))
	code := stack.sender.lastCode("alice@example.com")

	assert.ErrorIs(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", code), ErrOTPInvalid)
	assert.ErrorIs(t, stack.reset.ResetPassword(ctx, "alice@example.com", code, "NewSecret1"), ErrOTPInvalid)
}

func TestResetFlowIndependentOfVerificationOTP(t *testing.T) {
	stack := newTestStack(t, 10*time.Minute)
	ctx := context.Background()
	register(t, stack, "alice@example.com")
	verificationCode := stack.sender.lastCode("alice@example.com")

	require.NoError(t, stack.reset.RequestPasswordReset(ctx, "alice@example.com"))
	resetCode := stack.sender.lastCode("alice@example.com")
	require.NotEqual(t, verificationCode, resetCode)

	// The reset code does not verify the account, and the verification code
	// does not authorize a reset.
	assert.ErrorIs(t, stack.auth.VerifyOTP(ctx, "alice@example.com", resetCode), ErrOTPInvalid)
	assert.ErrorIs(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", verificationCode), ErrOTPInvalid)

	// Each purpose still accepts its own code.
	require.NoError(t, stack.reset.VerifyResetOTP(ctx, "alice@example.com", resetCode))
	require.NoError(t, stack.auth.VerifyOTP(ctx, "alice@example.com", verificationCode))
}
