package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/internal/oauth"
	"github.com/boardsync/apiserver/internal/ratelimit"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/internal/token"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const mailTimeout = 30 * time.Second

// RegisterInput carries the validated registration form.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// OAuthLoginResult is what the OAuth callback hands back to the client.
type OAuthLoginResult struct {
	Tokens  types.TokenPair        `json:"tokens"`
	NewUser bool                   `json:"new_user"`
	Verify  types.UserVerifyStatus `json:"verify"`
}

// AuthService owns the token lifecycle: registration, login, refresh
// rotation, email verification and password reset.
type AuthService struct {
	users          UserRepository
	refresh        RefreshTokenStore
	codec          *token.Codec
	mailer         Mailer
	loginLimiter   ratelimit.Limiter
	accountLimiter ratelimit.Limiter
	mailLimiter    ratelimit.Limiter
	bcryptCost     int
	// async runs the fire-and-forget email sends.
	async func(fn func())
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithLoginLimiter throttles login attempts per email and client IP.
func WithLoginLimiter(l ratelimit.Limiter) AuthOption {
	return func(s *AuthService) { s.loginLimiter = l }
}

// WithAccountLimiter throttles login attempts per email regardless of the
// client address, which callers can spoof through forwarding headers.
func WithAccountLimiter(l ratelimit.Limiter) AuthOption {
	return func(s *AuthService) { s.accountLimiter = l }
}

// WithMailLimiter throttles verification and reset emails per user.
func WithMailLimiter(l ratelimit.Limiter) AuthOption {
	return func(s *AuthService) { s.mailLimiter = l }
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.bcryptCost = cost }
}

func NewAuthService(users UserRepository, refresh RefreshTokenStore, codec *token.Codec, mailer Mailer, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:          users,
		refresh:        refresh,
		codec:          codec,
		mailer:         mailer,
		loginLimiter:   ratelimit.Noop{},
		accountLimiter: ratelimit.Noop{},
		mailLimiter:    ratelimit.Noop{},
		bcryptCost:     bcrypt.DefaultCost,
		async:          func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified account and mails its verification link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, apperrors.ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, apperrors.Internal(err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return types.User{}, apperrors.Internal(err)
	}

	userID := uuid.NewString()
	verifyToken, err := s.codec.Sign(types.EmailVerifyToken, userID, types.UserUnverified)
	if err != nil {
		return types.User{}, apperrors.Internal(err)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	user, err := s.users.Create(ctx, types.User{
		ID:               userID,
		Email:            email,
		DisplayName:      displayName,
		PasswordHash:     hash,
		VerifyStatus:     types.UserUnverified,
		EmailVerifyToken: &verifyToken,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, apperrors.ErrEmailAlreadyExists
		}
		return types.User{}, apperrors.Internal(err)
	}

	s.sendMail(ctx, "verify email", func(ctx context.Context) error {
		return s.mailer.SendVerifyEmail(ctx, user.Email, verifyToken)
	})
	return user, nil
}

// Login checks credentials and issues a token pair. Attempts are counted
// per email and, more tightly, per email and client IP.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (types.TokenPair, types.User, error) {
	email = normalizeEmail(email)
	attemptKey := email + "|" + clientIP
	if err := s.allow(ctx, s.accountLimiter, email); err != nil {
		return types.TokenPair{}, types.User{}, err
	}
	if err := s.allow(ctx, s.loginLimiter, attemptKey); err != nil {
		return types.TokenPair{}, types.User{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, types.User{}, apperrors.ErrEmailOrPasswordIncorrect
		}
		return types.TokenPair{}, types.User{}, apperrors.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.TokenPair{}, types.User{}, apperrors.ErrEmailOrPasswordIncorrect
	}

	if err := s.loginLimiter.Reset(ctx, attemptKey); err != nil {
		logger.FromContext(ctx).Warn("reset login attempts", "error", err)
	}
	if err := s.accountLimiter.Reset(ctx, email); err != nil {
		logger.FromContext(ctx).Warn("reset account login attempts", "error", err)
	}

	pair, err := s.IssueTokens(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return types.TokenPair{}, types.User{}, err
	}
	return pair, user, nil
}

// IssueTokens signs an access and a refresh token concurrently and persists
// the refresh token. Nothing is stored unless both signatures succeed.
func (s *AuthService) IssueTokens(ctx context.Context, userID string, verify types.UserVerifyStatus) (types.TokenPair, error) {
	pair, err := s.signPair(ctx, userID, verify, time.Time{})
	if err != nil {
		return types.TokenPair{}, err
	}
	payload, err := s.codec.Verify(pair.RefreshToken, types.RefreshToken)
	if err != nil {
		return types.TokenPair{}, apperrors.Internal(err)
	}
	if _, err := s.refresh.Create(ctx, types.RefreshTokenRecord{
		Token:     pair.RefreshToken,
		UserID:    userID,
		IssuedAt:  payload.IssuedAt,
		ExpiresAt: payload.ExpiresAt,
	}); err != nil {
		return types.TokenPair{}, apperrors.Internal(err)
	}
	return pair, nil
}

// Logout revokes refreshToken. A token that is already gone is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.refresh.DeleteByToken(ctx, refreshToken); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperrors.Internal(err)
	}
	return nil
}

// RefreshToken trades a valid refresh token for a new pair. The new refresh
// token keeps the absolute expiry of the old one, and the old one can only
// be traded once.
func (s *AuthService) RefreshToken(ctx context.Context, payload types.TokenPayload, oldToken string) (types.TokenPair, error) {
	pair, err := s.signPair(ctx, payload.UserID, payload.Verify, payload.ExpiresAt)
	if err != nil {
		return types.TokenPair{}, err
	}
	_, err = s.refresh.Rotate(ctx, oldToken, types.RefreshTokenRecord{
		Token:     pair.RefreshToken,
		UserID:    payload.UserID,
		IssuedAt:  time.Now().Truncate(time.Second),
		ExpiresAt: payload.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, apperrors.ErrUsedOrNonexistentRefresh
		}
		return types.TokenPair{}, apperrors.Internal(err)
	}
	return pair, nil
}

// signPair signs both tokens in parallel. A zero refreshExp uses the
// refresh TTL.
func (s *AuthService) signPair(ctx context.Context, userID string, verify types.UserVerifyStatus, refreshExp time.Time) (types.TokenPair, error) {
	var pair types.TokenPair
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pair.AccessToken, err = s.codec.Sign(types.AccessToken, userID, verify)
		return err
	})
	g.Go(func() error {
		var err error
		if refreshExp.IsZero() {
			pair.RefreshToken, err = s.codec.Sign(types.RefreshToken, userID, verify)
		} else {
			pair.RefreshToken, err = s.codec.SignWithExpiry(types.RefreshToken, userID, verify, refreshExp)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return types.TokenPair{}, apperrors.Internal(err)
	}
	return pair, nil
}

// CheckRefreshToken verifies a refresh token and makes sure it is still
// registered in the store.
func (s *AuthService) CheckRefreshToken(ctx context.Context, refreshToken string) (types.TokenPayload, error) {
	payload, err := s.decode(refreshToken, types.RefreshToken)
	if err != nil {
		return types.TokenPayload{}, err
	}
	if _, err := s.refresh.GetByToken(ctx, refreshToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPayload{}, apperrors.ErrUsedOrNonexistentRefresh
		}
		return types.TokenPayload{}, apperrors.Internal(err)
	}
	return payload, nil
}

// DecodeAccessToken verifies an access token.
func (s *AuthService) DecodeAccessToken(_ context.Context, accessToken string) (types.TokenPayload, error) {
	return s.decode(accessToken, types.AccessToken)
}

// DecodeEmailVerifyToken verifies an email-verify token.
func (s *AuthService) DecodeEmailVerifyToken(_ context.Context, verifyToken string) (types.TokenPayload, error) {
	return s.decode(verifyToken, types.EmailVerifyToken)
}

// DecodeForgotPasswordToken verifies a forgot-password token.
func (s *AuthService) DecodeForgotPasswordToken(_ context.Context, forgotToken string) (types.TokenPayload, error) {
	return s.decode(forgotToken, types.ForgotPasswordToken)
}

func (s *AuthService) decode(tokenString string, kind types.TokenType) (types.TokenPayload, error) {
	payload, err := s.codec.Verify(tokenString, kind)
	if err != nil {
		var invalid *token.InvalidTokenError
		if errors.As(err, &invalid) {
			return types.TokenPayload{}, apperrors.Unauthorized(apperrors.CodeInvalidToken, invalid.Reason).WithErr(err)
		}
		return types.TokenPayload{}, apperrors.Internal(err)
	}
	return payload, nil
}

// GetUser loads a user, failing with USER_NOT_FOUND when it does not exist.
func (s *AuthService) GetUser(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperrors.ErrUserNotFound
		}
		return types.User{}, apperrors.Internal(err)
	}
	return user, nil
}

// VerifyEmail consumes the email-verify token presented by the user and
// returns a token pair carrying the verified status.
func (s *AuthService) VerifyEmail(ctx context.Context, userID, verifyToken string) (types.TokenPair, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return types.TokenPair{}, err
	}
	if user.EmailVerifyToken == nil {
		if user.VerifyStatus == types.UserVerified {
			return types.TokenPair{}, apperrors.ErrEmailAlreadyVerified
		}
		return types.TokenPair{}, apperrors.ErrInvalidEmailVerifyToken
	}
	if *user.EmailVerifyToken != verifyToken {
		return types.TokenPair{}, apperrors.ErrInvalidEmailVerifyToken
	}

	verified, err := s.users.MarkEmailVerified(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, apperrors.ErrUserNotFound
		}
		return types.TokenPair{}, apperrors.Internal(err)
	}
	return s.IssueTokens(ctx, verified.ID, verified.VerifyStatus)
}

// ResendVerifyEmail replaces the outstanding email-verify token and mails
// the new link.
func (s *AuthService) ResendVerifyEmail(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.VerifyStatus == types.UserVerified {
		return apperrors.ErrEmailAlreadyVerified
	}
	if err := s.allow(ctx, s.mailLimiter, "verify:"+user.ID); err != nil {
		return err
	}

	verifyToken, err := s.codec.Sign(types.EmailVerifyToken, user.ID, user.VerifyStatus)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.users.SetEmailVerifyToken(ctx, user.ID, &verifyToken); err != nil {
		return apperrors.Internal(err)
	}

	s.sendMail(ctx, "verify email", func(ctx context.Context) error {
		return s.mailer.SendVerifyEmail(ctx, user.Email, verifyToken)
	})
	return nil
}

// ForgotPassword stores a fresh forgot-password token for the account
// registered under email and mails the reset link.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.Internal(err)
	}
	if err := s.allow(ctx, s.mailLimiter, "forgot:"+user.ID); err != nil {
		return err
	}

	forgotToken, err := s.codec.Sign(types.ForgotPasswordToken, user.ID, user.VerifyStatus)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.users.SetForgotPasswordToken(ctx, user.ID, &forgotToken); err != nil {
		return apperrors.Internal(err)
	}

	s.sendMail(ctx, "forgot password", func(ctx context.Context) error {
		return s.mailer.SendForgotPassword(ctx, user.Email, forgotToken)
	})
	return nil
}

// VerifyForgotPassword succeeds only when forgotToken is the token currently
// stored for the user.
func (s *AuthService) VerifyForgotPassword(ctx context.Context, userID, forgotToken string) error {
	_, err := s.checkForgotToken(ctx, userID, forgotToken)
	return err
}

// ResetPassword replaces the password after the same proof-of-possession
// check as VerifyForgotPassword. Every session of the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, userID, forgotToken, newPassword string) error {
	user, err := s.checkForgotToken(ctx, userID, forgotToken)
	if err != nil {
		return err
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.users.ResetPassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.Internal(err)
	}
	if err := s.refresh.DeleteByUserID(ctx, user.ID); err != nil {
		logger.FromContext(ctx).Error("revoke sessions after password reset", "error", err, "user_id", user.ID)
	}
	return nil
}

func (s *AuthService) checkForgotToken(ctx context.Context, userID, forgotToken string) (types.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.ForgotPasswordToken == nil || *user.ForgotPasswordToken != forgotToken {
		return types.User{}, apperrors.ErrInvalidForgotToken
	}
	return user, nil
}

// LoginOAuth signs in the account matching an upstream identity, creating a
// verified account on first use.
func (s *AuthService) LoginOAuth(ctx context.Context, identity oauth.Identity) (OAuthLoginResult, error) {
	email := normalizeEmail(identity.Email)
	user, err := s.users.GetByEmail(ctx, email)
	newUser := false
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		// The account gets an unusable random password; it can be replaced
		// through the forgot-password flow.
		hash, hashErr := s.hashPassword(uuid.NewString())
		if hashErr != nil {
			return OAuthLoginResult{}, apperrors.Internal(hashErr)
		}
		displayName := strings.TrimSpace(identity.Name)
		if displayName == "" {
			displayName, _, _ = strings.Cut(email, "@")
		}
		user, err = s.users.Create(ctx, types.User{
			Email:        email,
			DisplayName:  displayName,
			Avatar:       identity.Picture,
			PasswordHash: hash,
			VerifyStatus: types.UserVerified,
		})
		if err != nil {
			return OAuthLoginResult{}, apperrors.Internal(err)
		}
		newUser = true
	default:
		return OAuthLoginResult{}, apperrors.Internal(err)
	}

	pair, err := s.IssueTokens(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return OAuthLoginResult{}, err
	}
	return OAuthLoginResult{Tokens: pair, NewUser: newUser, Verify: user.VerifyStatus}, nil
}

// PurgeExpiredRefreshTokens drops refresh records past their expiry.
func (s *AuthService) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return s.refresh.DeleteExpired(ctx)
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// allow consults limiter. Redis outages do not lock users out.
func (s *AuthService) allow(ctx context.Context, limiter ratelimit.Limiter, key string) error {
	err := limiter.Allow(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrRateLimited):
		return apperrors.ErrTooManyAttempts
	default:
		logger.FromContext(ctx).Warn("rate limiter unavailable", "error", err)
		return nil
	}
}

// sendMail delivers an email outside the request. Failures are logged and
// never undo the token that was already stored.
func (s *AuthService) sendMail(ctx context.Context, kind string, send func(ctx context.Context) error) {
	log := logger.FromContext(ctx)
	mailCtx := context.WithoutCancel(ctx)
	s.async(func() {
		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Error("send email", "kind", kind, "error", err)
		}
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
