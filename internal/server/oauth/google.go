// Package oauth implements Google sign-in with golang.org/x/oauth2.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var ErrEmailNotVerified = errors.New("google account email is not verified")

// Provider turns an authorization code into a profile.
type Provider interface {
	AuthCodeURL(state string) string
	Profile(ctx context.Context, code string) (services.OAuthProfile, error)
}

type GoogleProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "email"},
		},
		userInfoURL: GoogleUserInfoURL,
	}
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Profile exchanges code for a token and fetches the userinfo document.
// Accounts with an unverified email are refused, since email is the key
// that links them to existing users.
func (g *GoogleProvider) Profile(ctx context.Context, code string) (services.OAuthProfile, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return services.OAuthProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return services.OAuthProfile{}, err
	}

	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return services.OAuthProfile{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.OAuthProfile{}, fmt.Errorf("userinfo: status %d: %s", resp.StatusCode, body)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return services.OAuthProfile{}, fmt.Errorf("userinfo: %w", err)
	}
	if !info.EmailVerified {
		return services.OAuthProfile{}, ErrEmailNotVerified
	}

	return services.OAuthProfile{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}
