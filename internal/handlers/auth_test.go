package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/boardsync/apiserver/config"
	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/ratelimit"
	"github.com/boardsync/apiserver/internal/services"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/internal/token"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userStore struct {
	mu    sync.Mutex
	users map[string]types.User
}

func (s *userStore) GetByID(_ context.Context, id string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (s *userStore) GetByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *userStore) Create(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *userStore) update(id string, fn func(u *types.User)) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return u, nil
}

func (s *userStore) SetEmailVerifyToken(_ context.Context, id string, tok *string) error {
	_, err := s.update(id, func(u *types.User) { u.EmailVerifyToken = tok })
	return err
}

func (s *userStore) MarkEmailVerified(_ context.Context, id string) (types.User, error) {
	return s.update(id, func(u *types.User) {
		u.EmailVerifyToken = nil
		u.VerifyStatus = types.UserVerified
	})
}

func (s *userStore) SetForgotPasswordToken(_ context.Context, id string, tok *string) error {
	_, err := s.update(id, func(u *types.User) { u.ForgotPasswordToken = tok })
	return err
}

func (s *userStore) ResetPassword(_ context.Context, id, hash string) error {
	_, err := s.update(id, func(u *types.User) {
		u.PasswordHash = hash
		u.ForgotPasswordToken = nil
	})
	return err
}

type discardMailer struct{}

func (discardMailer) SendVerifyEmail(context.Context, string, string) error    { return nil }
func (discardMailer) SendForgotPassword(context.Context, string, string) error { return nil }

type authServer struct {
	*httptest.Server
	users *userStore
}

func newAuthServer(t *testing.T, opts ...services.AuthOption) *authServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := token.NewCodec(config.JWTConfig{
		Access:         config.TokenConfig{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh:        config.TokenConfig{Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
		EmailVerify:    config.TokenConfig{Secret: "verify-secret", TTL: 7 * 24 * time.Hour},
		ForgotPassword: config.TokenConfig{Secret: "forgot-secret", TTL: 7 * 24 * time.Hour},
	})
	require.NoError(t, err)

	users := &userStore{users: make(map[string]types.User)}
	opts = append([]services.AuthOption{services.WithBcryptCost(bcrypt.MinCost)}, opts...)
	auth := services.NewAuthService(users, store.NewRedisRefreshTokenRepository(rdb), codec, discardMailer{}, opts...)
	mw := NewMiddleware(auth, stubResources{})

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Route("/users", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(auth, nil, CookieConfig{Secure: true}, ""), mw)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &authServer{Server: srv, users: users}
}

func (s *authServer) post(t *testing.T, path string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	return s.postWithHeader(t, path, body, nil, cookies...)
}

func (s *authServer) postWithHeader(t *testing.T, path string, body any, header http.Header, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readAuth(t *testing.T, resp *http.Response) AuthResponse {
	t.Helper()
	var body struct {
		Result AuthResponse `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Result
}

func readCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body apperrors.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterLoginFlow(t *testing.T) {
	srv := newAuthServer(t)
	form := map[string]string{
		"email":            "alice@example.com",
		"password":         "Secret123!",
		"confirm_password": "Secret123!",
	}

	resp := srv.post(t, "/users/register", form)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.post(t, "/users/register", form)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperrors.CodeEmailAlreadyExists, readCode(t, resp))

	resp = srv.post(t, "/users/login", map[string]string{"email": "alice@example.com", "password": "Wrong123!"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, apperrors.CodeEmailOrPasswordIncorrect, readCode(t, resp))

	resp = srv.post(t, "/users/login", map[string]string{"email": "alice@example.com", "password": "Secret123!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := readAuth(t, resp)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	access := findCookie(resp, accessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteNoneMode, access.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), access.MaxAge)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/users/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: pair.AccessToken})
	me, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestLoginThrottleIgnoresForwardedAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limits := ratelimit.Config{MaxAttempts: 3, Window: time.Minute}
	srv := newAuthServer(t,
		services.WithLoginLimiter(ratelimit.NewRedisLimiter(rdb, "login", limits)),
		services.WithAccountLimiter(ratelimit.NewRedisLimiter(rdb, "login-account", limits)),
	)
	srv.post(t, "/users/register", map[string]string{
		"email": "alice@example.com", "password": "Secret123!", "confirm_password": "Secret123!",
	})

	throttled := 0
	for i := 0; i < 20; i++ {
		header := http.Header{}
		header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		resp := srv.postWithHeader(t, "/users/login", map[string]string{
			"email": "alice@example.com", "password": "Wrong123!",
		}, header)
		if resp.StatusCode == http.StatusTooManyRequests {
			throttled++
		}
	}
	assert.Equal(t, 17, throttled)

	header := http.Header{}
	header.Set("X-Forwarded-For", "198.51.100.7")
	resp := srv.postWithHeader(t, "/users/login", map[string]string{
		"email": "alice@example.com", "password": "Secret123!",
	}, header)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	srv := newAuthServer(t)
	resp := srv.post(t, "/users/register", map[string]string{
		"email":            "alice@example.com",
		"password":         "short",
		"confirm_password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, apperrors.CodeValidationError, readCode(t, resp))
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	srv := newAuthServer(t)
	srv.post(t, "/users/register", map[string]string{
		"email": "bob@example.com", "password": "Secret123!", "confirm_password": "Secret123!",
	})
	pair := readAuth(t, srv.post(t, "/users/login", map[string]string{"email": "bob@example.com", "password": "Secret123!"}))

	resp := srv.post(t, "/users/refresh-token", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := readAuth(t, resp)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	resp = srv.post(t, "/users/refresh-token", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeUsedOrNonexistentRefresh, readCode(t, resp))

	resp = srv.post(t, "/users/logout", struct{}{}, &http.Cookie{Name: refreshTokenCookie, Value: rotated.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := findCookie(resp, refreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	resp = srv.post(t, "/users/refresh-token", map[string]string{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	srv := newAuthServer(t)
	srv.post(t, "/users/register", map[string]string{
		"email": "carol@example.com", "password": "Secret123!", "confirm_password": "Secret123!",
	})
	user, err := srv.users.GetByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.EmailVerifyToken)
	verifyToken := *user.EmailVerifyToken

	resp := srv.post(t, "/users/verify-email", map[string]string{"email_verify_token": verifyToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, readAuth(t, resp).AccessToken)

	user, err = srv.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UserVerified, user.VerifyStatus)
	assert.Nil(t, user.EmailVerifyToken)

	resp = srv.post(t, "/users/verify-email", map[string]string{"email_verify_token": verifyToken})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperrors.CodeEmailAlreadyVerified, readCode(t, resp))

	resp = srv.post(t, "/users/verify-email", map[string]string{"email_verify_token": strings.Repeat("x", 20)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGoogleOAuthDisabled(t *testing.T) {
	srv := newAuthServer(t)
	resp, err := srv.Client().Get(srv.URL + "/users/oauth/google")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
