package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// TokenAuthenticator decodes the four token kinds and loads their users.
type TokenAuthenticator interface {
	DecodeAccessToken(ctx context.Context, token string) (types.TokenPayload, error)
	CheckRefreshToken(ctx context.Context, token string) (types.TokenPayload, error)
	DecodeEmailVerifyToken(ctx context.Context, token string) (types.TokenPayload, error)
	DecodeForgotPasswordToken(ctx context.Context, token string) (types.TokenPayload, error)
	GetUser(ctx context.Context, userID string) (types.User, error)
}

// ResourceAuthorizer loads board resources on behalf of a user, failing
// with a not-found error when the user has no access.
type ResourceAuthorizer interface {
	GetBoard(ctx context.Context, userID, boardID string) (types.Board, error)
	GetColumn(ctx context.Context, userID, columnID string) (types.Column, error)
	GetCard(ctx context.Context, userID, cardID string) (types.Card, error)
}

// RequestScope is filled step by step by the middleware chain. It lives in
// the request context once per request.
type RequestScope struct {
	Access *types.TokenPayload

	Refresh      *types.TokenPayload
	RefreshToken string

	EmailVerify      *types.TokenPayload
	EmailVerifyToken string

	ForgotPassword      *types.TokenPayload
	ForgotPasswordToken string

	User   *types.User
	Board  *types.Board
	Column *types.Column
	Card   *types.Card
}

// UserID is the subject of the access token, empty when unauthenticated.
func (s *RequestScope) UserID() string {
	if s.Access == nil {
		return ""
	}
	return s.Access.UserID
}

type scopeKey struct{}

// Scope returns the request scope, nil outside the middleware chain.
func Scope(ctx context.Context) *RequestScope {
	scope, _ := ctx.Value(scopeKey{}).(*RequestScope)
	return scope
}

func withScope(r *http.Request) (*http.Request, *RequestScope) {
	if scope := Scope(r.Context()); scope != nil {
		return r, scope
	}
	scope := &RequestScope{}
	return r.WithContext(context.WithValue(r.Context(), scopeKey{}, scope)), scope
}

// Middleware holds the authorization chain.
type Middleware struct {
	auth      TokenAuthenticator
	resources ResourceAuthorizer
}

func NewMiddleware(auth TokenAuthenticator, resources ResourceAuthorizer) *Middleware {
	return &Middleware{auth: auth, resources: resources}
}

// RequireAccessToken accepts the access_token cookie first and the bearer
// header second.
func (m *Middleware) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := cookieValue(r, accessTokenCookie)
		if raw == "" {
			raw, _ = bearerToken(r)
		}
		if raw == "" {
			writeAppError(w, r, apperrors.ErrAccessTokenRequired)
			return
		}

		payload, err := m.auth.DecodeAccessToken(r.Context(), raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		r, scope := withScope(r)
		scope.Access = &payload
		r = r.WithContext(logger.WithUserID(r.Context(), payload.UserID))
		next.ServeHTTP(w, r)
	})
}

// RequireUser loads the access token subject. It must run after
// RequireAccessToken.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := Scope(r.Context())
		if scope == nil || scope.Access == nil {
			writeAppError(w, r, apperrors.ErrAccessTokenRequired)
			return
		}
		if scope.User == nil {
			user, err := m.auth.GetUser(r.Context(), scope.Access.UserID)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			scope.User = &user
		}
		next.ServeHTTP(w, r)
	})
}

// RequireVerified rejects unverified and banned users. The loaded user wins
// over the status embedded in the access token.
func (m *Middleware) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := Scope(r.Context())
		if scope == nil || scope.Access == nil {
			writeAppError(w, r, apperrors.ErrAccessTokenRequired)
			return
		}
		status := scope.Access.Verify
		if scope.User != nil {
			status = scope.User.VerifyStatus
		}
		switch status {
		case types.UserVerified:
			next.ServeHTTP(w, r)
		case types.UserBanned:
			writeAppError(w, r, apperrors.ErrUserBanned)
		default:
			writeAppError(w, r, apperrors.ErrUserNotVerified)
		}
	})
}

// RequireRefreshToken reads the refresh token from its cookie or the
// refresh_token body field and checks it against the store.
func (m *Middleware) RequireRefreshToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := cookieValue(r, refreshTokenCookie)
		if raw == "" {
			var err error
			raw, err = peekBodyField(r, "refresh_token")
			if err != nil {
				writeAppError(w, r, err)
				return
			}
		}
		if raw == "" {
			writeAppError(w, r, apperrors.ErrRefreshTokenRequired)
			return
		}

		payload, err := m.auth.CheckRefreshToken(r.Context(), raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		r, scope := withScope(r)
		scope.Refresh = &payload
		scope.RefreshToken = raw
		r = r.WithContext(logger.WithUserID(r.Context(), payload.UserID))
		next.ServeHTTP(w, r)
	})
}

// RequireEmailVerifyToken decodes the email_verify_token body field and
// loads its user.
func (m *Middleware) RequireEmailVerifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := peekBodyField(r, "email_verify_token")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if raw == "" {
			writeAppError(w, r, apperrors.ErrEmailVerifyTokenRequired)
			return
		}

		payload, err := m.auth.DecodeEmailVerifyToken(r.Context(), raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		user, err := m.auth.GetUser(r.Context(), payload.UserID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		r, scope := withScope(r)
		scope.EmailVerify = &payload
		scope.EmailVerifyToken = raw
		scope.User = &user
		next.ServeHTTP(w, r)
	})
}

// RequireForgotPasswordToken decodes the forgot_password_token body field
// and loads its user.
func (m *Middleware) RequireForgotPasswordToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := peekBodyField(r, "forgot_password_token")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if raw == "" {
			writeAppError(w, r, apperrors.ErrForgotTokenRequired)
			return
		}

		payload, err := m.auth.DecodeForgotPasswordToken(r.Context(), raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		user, err := m.auth.GetUser(r.Context(), payload.UserID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		r, scope := withScope(r)
		scope.ForgotPassword = &payload
		scope.ForgotPasswordToken = raw
		scope.User = &user
		next.ServeHTTP(w, r)
	})
}

// RequireBoardAccess loads the {boardID} route parameter for the caller.
func (m *Middleware) RequireBoardAccess(next http.Handler) http.Handler {
	return m.requireResource(next, func(r *http.Request, scope *RequestScope) error {
		board, err := m.resources.GetBoard(r.Context(), scope.UserID(), chi.URLParam(r, "boardID"))
		if err != nil {
			return err
		}
		scope.Board = &board
		return nil
	})
}

// RequireColumnAccess loads the {columnID} route parameter for the caller.
func (m *Middleware) RequireColumnAccess(next http.Handler) http.Handler {
	return m.requireResource(next, func(r *http.Request, scope *RequestScope) error {
		column, err := m.resources.GetColumn(r.Context(), scope.UserID(), chi.URLParam(r, "columnID"))
		if err != nil {
			return err
		}
		scope.Column = &column
		return nil
	})
}

// RequireCardAccess loads the {cardID} route parameter for the caller.
func (m *Middleware) RequireCardAccess(next http.Handler) http.Handler {
	return m.requireResource(next, func(r *http.Request, scope *RequestScope) error {
		card, err := m.resources.GetCard(r.Context(), scope.UserID(), chi.URLParam(r, "cardID"))
		if err != nil {
			return err
		}
		scope.Card = &card
		return nil
	})
}

func (m *Middleware) requireResource(next http.Handler, load func(r *http.Request, scope *RequestScope) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := Scope(r.Context())
		if scope == nil || scope.Access == nil {
			writeAppError(w, r, apperrors.ErrAccessTokenRequired)
			return
		}
		if err := load(r, scope); err != nil {
			writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peekBodyField reads one string field of a JSON body and restores the body
// for the handler.
func peekBodyField(r *http.Request, field string) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err != nil {
		return "", apperrors.ErrInvalidRequestBody.WithErr(err)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", apperrors.ErrInvalidRequestBody.WithErr(err)
	}
	value, ok := fields[field]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", apperrors.FieldValidation(field, "Must be a string", nil)
	}
	return strings.TrimSpace(s), nil
}
