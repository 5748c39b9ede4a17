// Package auth mints and verifies the HS256 bearer tokens used by eventhub
// and carries the verified caller identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig is the explicit configuration of a TokenService.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	// Now replaces time.Now when set.
	Now func() time.Time
}

// Claims is what a verified token says about its subject.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is issued on every login, registration and OAuth completion.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService is safe for concurrent use; it holds no mutable state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewTokenService fails with common.ErrMissingSecret when cfg.Secret is empty.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, common.ErrMissingSecret
	}

	s := &TokenService{
		secret:     append([]byte(nil), cfg.Secret...),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
	if cfg.Now != nil {
		s.now = cfg.Now
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	return s, nil
}

func (s *TokenService) IssueAccessToken(subjectID string) (string, error) {
	return s.issue(subjectID, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(subjectID string) (string, error) {
	return s.issue(subjectID, s.refreshTTL)
}

func (s *TokenService) IssueTokenPair(subjectID string) (TokenPair, error) {
	access, err := s.IssueAccessToken(subjectID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(subjectID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(subjectID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("%w: empty subject", common.ErrorValidation)
	}

	now := s.now()
	// jti keeps two tokens minted in the same second for the same subject
	// distinct, which the stored refresh token comparison depends on.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subjectID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature and expiry. Every failure matches
// common.ErrInvalidToken; expiry additionally matches common.ErrTokenExpired,
// a bad signature common.ErrTokenSignature and garbage common.ErrTokenMalformed.
func (s *TokenService) VerifyToken(tokenString string) (*Claims, error) {
	rc := &jwt.RegisteredClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, rc, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	if rc.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", common.ErrTokenMalformed)
	}

	c := &Claims{Subject: rc.Subject, ExpiresAt: rc.ExpiresAt.Time}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	return c, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return common.ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrTokenMalformed
	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
}
