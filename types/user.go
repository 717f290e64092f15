package types

import "time"

// UserVerifyStatus tracks whether a user has confirmed their email address.
type UserVerifyStatus int

const (
	UserUnverified UserVerifyStatus = iota
	UserVerified
	UserBanned
)

func (s UserVerifyStatus) String() string {
	switch s {
	case UserUnverified:
		return "unverified"
	case UserVerified:
		return "verified"
	case UserBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// User represents an account in the system.
// It contains identity, verification state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"id" db:"id"`

	// Email is the user's email address. It is unique across accounts.
	Email string `json:"email" db:"email"`

	// DisplayName is the name shown to other board members.
	DisplayName string `json:"display_name" db:"display_name"`

	// Avatar is an optional picture URL, usually filled by an OAuth provider.
	Avatar string `json:"avatar" db:"avatar"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// VerifyStatus indicates whether the email address was confirmed.
	VerifyStatus UserVerifyStatus `json:"verify" db:"verify_status"`

	// EmailVerifyToken holds the outstanding email-verify token.
	// Nil once the email has been verified.
	EmailVerifyToken *string `json:"-" db:"email_verify_token"`

	// ForgotPasswordToken holds the outstanding password reset token.
	// Nil when no reset is in flight.
	ForgotPasswordToken *string `json:"-" db:"forgot_password_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
