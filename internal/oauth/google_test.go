package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/boardsync/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestProvider(t *testing.T, verified bool) *GoogleProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer upstream-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(googleUserInfo{
			Email:         "Ada@Example.com",
			EmailVerified: verified,
			Name:          "Ada",
			Picture:       "https://img/ada.png",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGoogleProvider(config.GoogleOAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
	})
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userInfoURL = srv.URL + "/userinfo"
	return p
}

func TestGoogleExchange(t *testing.T) {
	p := newTestProvider(t, true)

	identity, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "ada@example.com", Name: "Ada", Picture: "https://img/ada.png"}, identity)
}

func TestGoogleExchangeRejectsUnverifiedEmail(t *testing.T) {
	p := newTestProvider(t, false)

	_, err := p.Exchange(context.Background(), "the-code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestGoogleAuthCodeURLCarriesState(t *testing.T) {
	p := NewGoogleProvider(config.GoogleOAuthConfig{ClientID: "client", RedirectURL: "http://localhost/callback"})

	u, err := url.Parse(p.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}
