package token

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/boardsync/apiserver/config"
	"github.com/boardsync/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "boardsync"

var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenKindMismatch     = errors.New("token kind mismatch")
	ErrTokenInvalid          = errors.New("token invalid")
)

// InvalidTokenError is returned by Verify. Reason is safe to show to clients.
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	return e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// SigningError means the signer rejected a payload. It should not happen for
// well-formed input and is treated as fatal by callers.
type SigningError struct {
	Kind types.TokenType
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign %s token: %v", e.Kind, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

type kindConfig struct {
	secret []byte
	ttl    time.Duration
}

// Codec signs and verifies the four token kinds, each with its own secret
// and lifetime.
type Codec struct {
	kinds map[types.TokenType]kindConfig
	now   func() time.Time
}

type claims struct {
	UserID    string                 `json:"user_id"`
	TokenType types.TokenType        `json:"token_type"`
	Verify    types.UserVerifyStatus `json:"verify"`
	jwt.RegisteredClaims
}

// NewCodec builds a codec from the JWT section of the configuration.
func NewCodec(cfg config.JWTConfig) (*Codec, error) {
	kinds := map[types.TokenType]config.TokenConfig{
		types.AccessToken:         cfg.Access,
		types.RefreshToken:        cfg.Refresh,
		types.EmailVerifyToken:    cfg.EmailVerify,
		types.ForgotPasswordToken: cfg.ForgotPassword,
	}
	c := &Codec{kinds: make(map[types.TokenType]kindConfig, len(kinds)), now: time.Now}
	for kind, tc := range kinds {
		if strings.TrimSpace(tc.Secret) == "" {
			return nil, fmt.Errorf("%s token secret is required", kind)
		}
		if tc.TTL <= 0 {
			return nil, fmt.Errorf("%s token ttl must be positive", kind)
		}
		c.kinds[kind] = kindConfig{secret: []byte(tc.Secret), ttl: tc.TTL}
	}
	return c, nil
}

// TTL returns the configured lifetime of kind.
func (c *Codec) TTL(kind types.TokenType) time.Duration {
	return c.kinds[kind].ttl
}

// Sign issues a token of the given kind that expires after the kind's TTL.
func (c *Codec) Sign(kind types.TokenType, userID string, verify types.UserVerifyStatus) (string, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return "", &SigningError{Kind: kind, Err: errors.New("unknown token kind")}
	}
	return c.SignWithExpiry(kind, userID, verify, c.now().Add(kc.ttl))
}

// SignWithExpiry issues a token with an explicit absolute expiry. Refresh
// rotation uses it so a rotated session never outlives the original login.
// Every token carries a random jti, so two tokens signed in the same second
// never collide.
func (c *Codec) SignWithExpiry(kind types.TokenType, userID string, verify types.UserVerifyStatus, exp time.Time) (string, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return "", &SigningError{Kind: kind, Err: errors.New("unknown token kind")}
	}
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    userID,
		TokenType: kind,
		Verify:    verify,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(kc.secret)
	if err != nil {
		return "", &SigningError{Kind: kind, Err: err}
	}
	return signed, nil
}

// Verify decodes tokenString with the secret of kind and checks that the
// embedded token_type matches kind.
func (c *Codec) Verify(tokenString string, kind types.TokenType) (types.TokenPayload, error) {
	kc, ok := c.kinds[kind]
	if !ok {
		return types.TokenPayload{}, &InvalidTokenError{Reason: "Unknown token kind", Err: ErrTokenInvalid}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var parsed claims
	token, err := parser.ParseWithClaims(tokenString, &parsed, func(t *jwt.Token) (any, error) {
		return kc.secret, nil
	})
	if err != nil {
		return types.TokenPayload{}, classify(err)
	}
	if !token.Valid {
		return types.TokenPayload{}, &InvalidTokenError{Reason: "Invalid token", Err: ErrTokenInvalid}
	}
	if parsed.TokenType != kind {
		return types.TokenPayload{}, &InvalidTokenError{Reason: "Invalid token type", Err: ErrTokenKindMismatch}
	}
	if strings.TrimSpace(parsed.UserID) == "" {
		return types.TokenPayload{}, &InvalidTokenError{Reason: "Missing user id", Err: ErrTokenInvalid}
	}

	return types.TokenPayload{
		UserID:    parsed.UserID,
		TokenType: parsed.TokenType,
		Verify:    parsed.Verify,
		IssuedAt:  parsed.IssuedAt.Time,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

func classify(err error) *InvalidTokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &InvalidTokenError{Reason: "Jwt expired", Err: ErrTokenExpired}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &InvalidTokenError{Reason: "Invalid signature", Err: ErrTokenSignatureInvalid}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &InvalidTokenError{Reason: "Jwt malformed", Err: ErrTokenMalformed}
	default:
		return &InvalidTokenError{Reason: capitalize(err.Error()), Err: fmt.Errorf("%w: %v", ErrTokenInvalid, err)}
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
