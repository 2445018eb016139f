package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Account roles. Roles are assigned at registration and never mutated by the
// account owner afterwards.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

// User represents an account in the credential subsystem.
//
// PasswordHash, OTPHash, ResetOTPHash and RefreshToken are excluded from
// default read projections; repository methods that need them fetch them
// explicitly.
type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Name         string        `bson:"name"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"password_hash,omitempty"`
	Role         string        `bson:"role"`
	Verified     bool          `bson:"verified"`

	OTPHash      string    `bson:"otp_hash,omitempty"`
	OTPExpiresAt time.Time `bson:"otp_expires_at,omitempty"`
	OTPAttempts  int       `bson:"otp_attempts"`

	ResetOTPHash      string    `bson:"reset_otp_hash,omitempty"`
	ResetOTPExpiresAt time.Time `bson:"reset_otp_expires_at,omitempty"`
	ResetOTPAttempts  int       `bson:"reset_otp_attempts"`

	RefreshToken string `bson:"refresh_token,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
