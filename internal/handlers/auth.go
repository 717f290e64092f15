package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/internal/oauth"
	"github.com/boardsync/apiserver/internal/services"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultCookieMaxAge = 7 * 24 * time.Hour
	oauthStateCookie    = "oauth_state"
	oauthStateTTL       = 10 * time.Minute
)

// OAuthProvider runs an authorization-code login against an upstream
// identity provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Identity, error)
}

// CookieConfig controls the token cookies set on login.
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// AuthHandler serves the /users routes.
type AuthHandler struct {
	auth    *services.AuthService
	oauth   OAuthProvider
	cookies CookieConfig
	// oauthCallbackURL is where the browser lands after a Google login.
	oauthCallbackURL string
}

// NewAuthHandler constructs an AuthHandler. provider may be nil when OAuth
// is not configured.
func NewAuthHandler(auth *services.AuthService, provider OAuthProvider, cookies CookieConfig, oauthCallbackURL string) *AuthHandler {
	if cookies.MaxAge <= 0 {
		cookies.MaxAge = defaultCookieMaxAge
	}
	return &AuthHandler{
		auth:             auth,
		oauth:            provider,
		cookies:          cookies,
		oauthCallbackURL: oauthCallbackURL,
	}
}

// AuthRouter registers user routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, mw *Middleware) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Get("/oauth/google", handler.GoogleOAuth)

	r.With(mw.RequireRefreshToken).Post("/logout", handler.Logout)
	r.With(mw.RequireRefreshToken).Post("/refresh-token", handler.RefreshToken)
	r.With(mw.RequireEmailVerifyToken).Post("/verify-email", handler.VerifyEmail)
	r.With(mw.RequireForgotPasswordToken).Post("/verify-forgot-password", handler.VerifyForgotPassword)
	r.With(mw.RequireForgotPasswordToken).Post("/reset-password", handler.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAccessToken, mw.RequireUser)
		r.Get("/me", handler.Me)
		r.Post("/resend-verify-email", handler.ResendVerifyEmail)
	})
}

type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	DisplayName     string `json:"display_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// AuthResponse is returned by every endpoint that issues tokens.
type AuthResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         *types.User `json:"user,omitempty"`
}

// Register creates a new unverified account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Register success", Result: user})
}

// Login verifies credentials, sets the token cookies and returns the pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	pair, user, err := h.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Login success",
		Result:  AuthResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: &user},
	})
}

// Logout revokes the presented refresh token and clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	scope := Scope(r.Context())
	if err := h.auth.Logout(r.Context(), scope.RefreshToken); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logout success"})
}

// RefreshToken rotates the presented refresh token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	scope := Scope(r.Context())
	pair, err := h.auth.RefreshToken(r.Context(), *scope.Refresh, scope.RefreshToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Refresh token success",
		Result:  AuthResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// VerifyEmail consumes the email-verify token and logs the user in.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	scope := Scope(r.Context())
	pair, err := h.auth.VerifyEmail(r.Context(), scope.User.ID, scope.EmailVerifyToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Email verify success",
		Result:  AuthResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// ResendVerifyEmail mails a fresh verification link.
func (h *AuthHandler) ResendVerifyEmail(w http.ResponseWriter, r *http.Request) {
	scope := Scope(r.Context())
	if err := h.auth.ResendVerifyEmail(r.Context(), scope.User.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Resend verify email success"})
}

// ForgotPassword mails a password reset link.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Check email to reset password"})
}

// VerifyForgotPassword confirms the reset token is the outstanding one.
func (h *AuthHandler) VerifyForgotPassword(w http.ResponseWriter, r *http.Request) {
	scope := Scope(r.Context())
	if err := h.auth.VerifyForgotPassword(r.Context(), scope.User.ID, scope.ForgotPasswordToken); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verify forgot password success"})
}

// ResetPassword sets a new password using the reset token.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	scope := Scope(r.Context())
	if err := h.auth.ResetPassword(r.Context(), scope.User.ID, scope.ForgotPasswordToken, req.Password); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Reset password success"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Get my profile success", Result: Scope(r.Context()).User})
}

// GoogleOAuth starts the Google login when no code is present and finishes
// it on the provider callback.
func (h *AuthHandler) GoogleOAuth(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeAppError(w, r, apperrors.NotFound(apperrors.CodeOAuthFailed, "Google login is not configured"))
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	if code == "" {
		state, err := randomState()
		if err != nil {
			writeAppError(w, r, apperrors.Internal(err))
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   int(oauthStateTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
		return
	}

	if state := cookieValue(r, oauthStateCookie); state == "" || state != query.Get("state") {
		writeAppError(w, r, apperrors.ErrOAuthFailed)
		return
	}

	identity, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		logger.FromContext(r.Context()).Warn("google oauth exchange failed", "error", err)
		writeAppError(w, r, apperrors.ErrOAuthFailed.WithErr(err))
		return
	}

	result, err := h.auth.LoginOAuth(r.Context(), identity)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})
	h.setTokenCookies(w, result.Tokens)

	if h.oauthCallbackURL == "" {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Login success", Result: result})
		return
	}
	target, err := url.Parse(h.oauthCallbackURL)
	if err != nil {
		writeAppError(w, r, apperrors.Internal(err))
		return
	}
	values := target.Query()
	values.Set("new_user", strconv.FormatBool(result.NewUser))
	values.Set("verify", result.Verify.String())
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair types.TokenPair) {
	maxAge := int(h.cookies.MaxAge.Seconds())
	for name, value := range map[string]string{
		accessTokenCookie:  pair.AccessToken,
		refreshTokenCookie: pair.RefreshToken,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
