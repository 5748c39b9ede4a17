// Package services contains application services for the eventhub CLI.
// AuthService signs in against the server and keeps the resulting tokens in
// the local session store.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/eventhub/internal/client/client"
	"github.com/dmitrijs2005/eventhub/internal/client/session"
)

// SessionStore is the part of session.Store the service needs.
type SessionStore interface {
	Save(ctx context.Context, s session.Session) error
	Load(ctx context.Context) (session.Session, error)
	SetAccessToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type AuthService struct {
	client client.Client
	store  SessionStore
}

func NewAuthService(c client.Client, s SessionStore) *AuthService {
	return &AuthService{client: c, store: s}
}

func (s *AuthService) Register(ctx context.Context, username, email string, password []byte) (*client.AuthResult, error) {
	res, err := s.client.Register(ctx, username, email, string(password))
	if err != nil {
		return nil, err
	}
	return res, s.save(ctx, res)
}

// Login replaces any stored session; the server invalidates the previous
// refresh token at the same time.
func (s *AuthService) Login(ctx context.Context, email string, password []byte) (*client.AuthResult, error) {
	res, err := s.client.Login(ctx, email, string(password))
	if err != nil {
		return nil, err
	}
	return res, s.save(ctx, res)
}

func (s *AuthService) save(ctx context.Context, res *client.AuthResult) error {
	return s.store.Save(ctx, session.Session{
		UserID:       res.ID,
		Username:     res.Username,
		AccessToken:  res.Token,
		RefreshToken: res.RefreshToken,
	})
}

// Refresh exchanges the stored refresh token for a new access token. When
// the server rejects the refresh token the local session is dropped.
func (s *AuthService) Refresh(ctx context.Context) (string, error) {
	sess, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}

	token, err := s.client.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			_ = s.store.Clear(ctx)
			return "", errors.Join(session.ErrNoSession, err)
		}
		return "", err
	}

	if err := s.store.SetAccessToken(ctx, token); err != nil {
		return "", err
	}
	return token, nil
}

// Profile fetches the caller's profile, refreshing the access token once if
// the server rejects it.
func (s *AuthService) Profile(ctx context.Context) (*client.Profile, error) {
	sess, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.client.Profile(ctx, sess.AccessToken)
	if !errors.Is(err, client.ErrUnauthorized) {
		return p, err
	}

	token, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Profile(ctx, token)
}

// Logout ends the server session when reachable and always clears the local
// one.
func (s *AuthService) Logout(ctx context.Context) error {
	sess, err := s.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	remoteErr := s.client.Logout(ctx, sess.AccessToken)
	if errors.Is(remoteErr, client.ErrUnauthorized) {
		if token, rerr := s.Refresh(ctx); rerr == nil {
			remoteErr = s.client.Logout(ctx, token)
		} else {
			remoteErr = nil
		}
	}

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	return remoteErr
}

func (s *AuthService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
