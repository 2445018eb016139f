package usecase

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"time"
)

// OTPMaxAttempts is the hard attempt ceiling per OTP purpose. Once reached,
// only issuing a new OTP for that purpose unlocks the flow.
const OTPMaxAttempts = 5

const otpDigits = 6

// OTPResult enumerates the outcomes of checking a submitted code against the
// stored OTP state.
type OTPResult int

const (
	OTPValid OTPResult = iota
	OTPExpired
	OTPMismatch
	OTPLockedOut
)

// IssuedOTP is the output of issuing a new one-time code. Code is handed to
// the delivery collaborator and never persisted; only Hash and ExpiresAt are.
type IssuedOTP struct {
	Code      string
	Hash      string
	ExpiresAt time.Time
}

// OTPEngine generates one-time codes and checks submitted candidates against
// stored state. It holds no per-account state itself; attempt counters live
// on the account document.
type OTPEngine struct {
	expiresIn time.Duration
}

func NewOTPEngine(expiresIn time.Duration) *OTPEngine {
	return &OTPEngine{expiresIn: expiresIn}
}

// Issue generates a fresh numeric code with its storage hash and expiry.
func (e *OTPEngine) Issue() (IssuedOTP, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return IssuedOTP{}, err
	}

	code := n.String()
	for len(code) < otpDigits {
		code = "0" + code
	}

	return IssuedOTP{
		Code:      code,
		Hash:      HashOTP(code),
		ExpiresAt: time.Now().Add(e.expiresIn),
	}, nil
}

// Check evaluates a submitted code against the stored hash, expiry and
// attempt counter. Lockout takes precedence over every other outcome, so a
// correct code submitted after the ceiling is still rejected. A Mismatch
// result instructs the caller to persist an attempt increment; Valid
// instructs it to clear the OTP state.
func (e *OTPEngine) Check(code, storedHash string, expiresAt time.Time, attempts int) OTPResult {
	if attempts >= OTPMaxAttempts {
		return OTPLockedOut
	}
	if storedHash == "" || time.Now().After(expiresAt) {
		return OTPExpired
	}
	if HashOTP(code) != storedHash {
		return OTPMismatch
	}
	return OTPValid
}

// HashOTP returns the deterministic one-way storage form of a code.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
