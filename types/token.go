package types

import "time"

// TokenType identifies which flow a signed token belongs to.
type TokenType int

const (
	AccessToken TokenType = iota
	RefreshToken
	ForgotPasswordToken
	EmailVerifyToken
)

func (t TokenType) String() string {
	switch t {
	case AccessToken:
		return "access"
	case RefreshToken:
		return "refresh"
	case ForgotPasswordToken:
		return "forgot_password"
	case EmailVerifyToken:
		return "email_verify"
	default:
		return "unknown"
	}
}

// TokenPayload is the decoded claim set shared by every token kind.
type TokenPayload struct {
	UserID    string           `json:"user_id"`
	TokenType TokenType        `json:"token_type"`
	Verify    UserVerifyStatus `json:"verify"`
	IssuedAt  time.Time        `json:"iat"`
	ExpiresAt time.Time        `json:"exp"`
}

// RefreshTokenRecord is a persisted, currently valid refresh token.
type RefreshTokenRecord struct {
	ID        string    `json:"id" db:"id"`
	Token     string    `json:"token" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	IssuedAt  time.Time `json:"iat" db:"iat"`
	ExpiresAt time.Time `json:"exp" db:"exp"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TokenPair is what login, refresh and verification hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
