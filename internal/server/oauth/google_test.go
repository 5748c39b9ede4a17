package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGoogle serves a token endpoint and a userinfo endpoint.
func fakeGoogle(t *testing.T, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"g-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer g-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if verified {
			_, _ = w.Write([]byte(`{"email":"gil@salton.com","email_verified":true,"name":"Gil","picture":"https://p/g.jpg"}`))
			return
		}
		_, _ = w.Write([]byte(`{"email":"gil@salton.com","email_verified":false}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GoogleProvider {
	g := NewGoogleProvider("cid", "csecret", "http://localhost:3000/api/auth/google/callback")
	g.conf.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthURL: srv.URL + "/auth"}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestAuthCodeURL(t *testing.T) {
	g := NewGoogleProvider("cid", "csecret", "http://localhost:3000/cb")

	u, err := url.Parse(g.AuthCodeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:3000/cb", u.Query().Get("redirect_uri"))
}

func TestProfile_Success(t *testing.T) {
	g := newTestProvider(fakeGoogle(t, true))

	p, err := g.Profile(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "gil@salton.com", p.Email)
	assert.Equal(t, "Gil", p.Name)
	assert.Equal(t, "https://p/g.jpg", p.Picture)
}

func TestProfile_BadCode(t *testing.T) {
	g := newTestProvider(fakeGoogle(t, true))

	_, err := g.Profile(context.Background(), "bad-code")
	assert.ErrorContains(t, err, "exchange code")
}

func TestProfile_UnverifiedEmail(t *testing.T) {
	g := newTestProvider(fakeGoogle(t, false))

	_, err := g.Profile(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}
