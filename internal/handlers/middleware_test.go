package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	access  map[string]types.TokenPayload
	refresh map[string]types.TokenPayload
	users   map[string]types.User
}

func (s stubAuth) DecodeAccessToken(_ context.Context, tok string) (types.TokenPayload, error) {
	if p, ok := s.access[tok]; ok {
		return p, nil
	}
	return types.TokenPayload{}, apperrors.Unauthorized(apperrors.CodeInvalidToken, "Invalid signature")
}

func (s stubAuth) CheckRefreshToken(_ context.Context, tok string) (types.TokenPayload, error) {
	if p, ok := s.refresh[tok]; ok {
		return p, nil
	}
	return types.TokenPayload{}, apperrors.ErrUsedOrNonexistentRefresh
}

func (s stubAuth) DecodeEmailVerifyToken(context.Context, string) (types.TokenPayload, error) {
	return types.TokenPayload{}, apperrors.Unauthorized(apperrors.CodeInvalidToken, "Jwt malformed")
}

func (s stubAuth) DecodeForgotPasswordToken(context.Context, string) (types.TokenPayload, error) {
	return types.TokenPayload{}, apperrors.Unauthorized(apperrors.CodeInvalidToken, "Jwt malformed")
}

func (s stubAuth) GetUser(_ context.Context, id string) (types.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return types.User{}, apperrors.ErrUserNotFound
}

type stubResources struct {
	boards  map[string]types.Board
	columns map[string]types.Column
	cards   map[string]types.Card
}

func (s stubResources) GetBoard(_ context.Context, userID, boardID string) (types.Board, error) {
	b, ok := s.boards[boardID]
	if !ok || !b.HasAccess(userID) {
		return types.Board{}, apperrors.ErrBoardNotFound
	}
	return b, nil
}

// Columns and cards are visible only through their parent board.
func (s stubResources) GetColumn(ctx context.Context, userID, columnID string) (types.Column, error) {
	c, ok := s.columns[columnID]
	if !ok {
		return types.Column{}, apperrors.ErrColumnNotFound
	}
	if _, err := s.GetBoard(ctx, userID, c.BoardID); err != nil {
		return types.Column{}, apperrors.ErrColumnNotFound
	}
	return c, nil
}

func (s stubResources) GetCard(ctx context.Context, userID, cardID string) (types.Card, error) {
	c, ok := s.cards[cardID]
	if !ok {
		return types.Card{}, apperrors.ErrCardNotFound
	}
	if _, err := s.GetBoard(ctx, userID, c.BoardID); err != nil {
		return types.Card{}, apperrors.ErrCardNotFound
	}
	return c, nil
}

func newTestMiddleware() *Middleware {
	return NewMiddleware(stubAuth{
		access: map[string]types.TokenPayload{
			"verified":   {UserID: "u1", TokenType: types.AccessToken, Verify: types.UserVerified},
			"unverified": {UserID: "u2", TokenType: types.AccessToken, Verify: types.UserUnverified},
			"banned":     {UserID: "u3", TokenType: types.AccessToken, Verify: types.UserVerified},
			"ghost":      {UserID: "nobody", TokenType: types.AccessToken, Verify: types.UserVerified},
		},
		refresh: map[string]types.TokenPayload{
			"refresh-1": {UserID: "u1", TokenType: types.RefreshToken},
		},
		users: map[string]types.User{
			"u1": {ID: "u1", VerifyStatus: types.UserVerified},
			"u2": {ID: "u2", VerifyStatus: types.UserUnverified},
			// The token still says verified; the stored status wins.
			"u3": {ID: "u3", VerifyStatus: types.UserBanned},
		},
	}, stubResources{
		boards: map[string]types.Board{
			"b1": {ID: "b1", OwnerIDs: []string{"u1"}},
		},
		columns: map[string]types.Column{
			"col1": {ID: "col1", BoardID: "b1", Title: "Todo"},
		},
		cards: map[string]types.Card{
			"card1": {ID: "card1", BoardID: "b1", ColumnID: "col1", Title: "Ship it"},
		},
	})
}

// serveAs sends a GET for path through r with the given bearer token.
func serveAs(r http.Handler, token, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": Scope(r.Context()).UserID()})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.Error {
	t.Helper()
	var body apperrors.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAccessToken(t *testing.T) {
	mw := newTestMiddleware()
	h := mw.RequireAccessToken(http.HandlerFunc(echoUser))

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperrors.CodeAccessTokenRequired, decodeError(t, rec).Code)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer verified")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user_id":"u1"}`, rec.Body.String())
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "verified"})
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid token keeps the decoder message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, apperrors.CodeInvalidToken, body.Code)
		assert.Equal(t, "Invalid signature", body.Message)
	})
}

func TestRequireUserAndVerified(t *testing.T) {
	mw := newTestMiddleware()
	h := mw.RequireAccessToken(mw.RequireUser(mw.RequireVerified(http.HandlerFunc(echoUser))))

	cases := []struct {
		token  string
		status int
		code   string
	}{
		{"verified", http.StatusOK, ""},
		{"unverified", http.StatusForbidden, apperrors.CodeUserNotVerified},
		{"banned", http.StatusForbidden, apperrors.CodeUserBanned},
		{"ghost", http.StatusNotFound, apperrors.CodeUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rec).Code)
			}
		})
	}
}

func TestRequireBoardAccess(t *testing.T) {
	mw := newTestMiddleware()
	r := chi.NewRouter()
	r.With(mw.RequireAccessToken, mw.RequireBoardAccess).Get("/boards/{boardID}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Scope(r.Context()).Board)
	})

	get := func(token, boardID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/boards/"+boardID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("verified", "b1")
	require.Equal(t, http.StatusOK, rec.Code)
	var board types.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, "b1", board.ID)

	// Missing and forbidden boards are indistinguishable.
	for _, rec := range []*httptest.ResponseRecorder{get("unverified", "b1"), get("verified", "missing")} {
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apperrors.CodeBoardNotFound, decodeError(t, rec).Code)
	}
}

func TestRequireColumnAccess(t *testing.T) {
	mw := newTestMiddleware()
	r := chi.NewRouter()
	r.With(mw.RequireAccessToken, mw.RequireColumnAccess).Get("/columns/{columnID}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Scope(r.Context()).Column)
	})

	rec := serveAs(r, "verified", "/columns/col1")
	require.Equal(t, http.StatusOK, rec.Code)
	var column types.Column
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &column))
	assert.Equal(t, "col1", column.ID)

	cases := map[string]*httptest.ResponseRecorder{
		"stranger":     serveAs(r, "unverified", "/columns/col1"),
		"malformed id": serveAs(r, "verified", "/columns/not-a-column"),
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, apperrors.CodeColumnNotFound, decodeError(t, rec).Code)
		})
	}
}

func TestRequireCardAccess(t *testing.T) {
	mw := newTestMiddleware()
	r := chi.NewRouter()
	r.With(mw.RequireAccessToken, mw.RequireCardAccess).Get("/cards/{cardID}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Scope(r.Context()).Card)
	})

	rec := serveAs(r, "verified", "/cards/card1")
	require.Equal(t, http.StatusOK, rec.Code)
	var card types.Card
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "card1", card.ID)
	assert.Equal(t, "col1", card.ColumnID)

	cases := map[string]*httptest.ResponseRecorder{
		"stranger":     serveAs(r, "unverified", "/cards/card1"),
		"malformed id": serveAs(r, "verified", "/cards/%7Bbad%7D"),
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, apperrors.CodeCardNotFound, decodeError(t, rec).Code)
		})
	}
}

func TestRequireRefreshTokenRestoresBody(t *testing.T) {
	mw := newTestMiddleware()
	var seenBody string
	h := mw.RequireRefreshToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seenBody = string(raw)
		assert.Equal(t, "refresh-1", Scope(r.Context()).RefreshToken)
		w.WriteHeader(http.StatusNoContent)
	}))

	body := `{"refresh_token":"refresh-1"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, body, seenBody)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeRefreshTokenRequired, decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refresh_token":"stale"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeUsedOrNonexistentRefresh, decodeError(t, rec).Code)
}

func TestWriteAppErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, apperrors.MsgInternalServerError, decodeError(t, rec).Message)
}
