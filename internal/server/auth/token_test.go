package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, secret string) *TokenService {
	t.Helper()
	s, err := NewTokenService(TokenConfig{Secret: []byte(secret)})
	require.NoError(t, err)
	return s
}

// frozen pins the clock of s to at, truncated to whole seconds as JWT dates are.
func frozen(s *TokenService, at time.Time) {
	at = at.Truncate(time.Second)
	s.now = func() time.Time { return at }
}

func TestNewTokenService_RejectsEmptySecret(t *testing.T) {
	_, err := NewTokenService(TokenConfig{})
	assert.ErrorIs(t, err, common.ErrMissingSecret)
}

func TestNewTokenService_DefaultLifetimes(t *testing.T) {
	s := newService(t, "k")
	assert.Equal(t, 15*time.Minute, s.accessTTL)
	assert.Equal(t, 7*24*time.Hour, s.refreshTTL)
}

func TestIssueAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newService(t, "super-secret")

	tok, err := s.IssueAccessToken("user-123")
	require.NoError(t, err)

	c, err := s.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", c.Subject)
	assert.WithinDuration(t, c.IssuedAt.Add(15*time.Minute), c.ExpiresAt, time.Second)
}

func TestIssueRefreshToken_SevenDayExpiry(t *testing.T) {
	t.Parallel()

	s := newService(t, "super-secret")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frozen(s, start)

	tok, err := s.IssueRefreshToken("u1")
	require.NoError(t, err)

	c, err := s.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, start, c.IssuedAt.UTC())
	assert.Equal(t, start.Add(7*24*time.Hour), c.ExpiresAt.UTC())
}

func TestVerifyToken_ValidUntilExpiryThenExpired(t *testing.T) {
	t.Parallel()

	s := newService(t, "secret")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frozen(s, start)

	tok, err := s.IssueAccessToken("u1")
	require.NoError(t, err)

	frozen(s, start.Add(14*time.Minute+59*time.Second))
	_, err = s.VerifyToken(tok)
	require.NoError(t, err)

	frozen(s, start.Add(16*time.Minute))
	_, err = s.VerifyToken(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.NotErrorIs(t, err, common.ErrTokenSignature)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newService(t, "right-secret").IssueAccessToken("u2")
	require.NoError(t, err)

	_, err = newService(t, "wrong-secret").VerifyToken(tok)
	assert.ErrorIs(t, err, common.ErrTokenSignature)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerifyToken_Malformed(t *testing.T) {
	t.Parallel()

	s := newService(t, "k")
	for _, raw := range []string{"", "not-a-jwt", "not.a.jwt"} {
		_, err := s.VerifyToken(raw)
		assert.ErrorIs(t, err, common.ErrTokenMalformed, raw)
	}
}

func TestVerifyToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	s := newService(t, "k")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = s.VerifyToken(raw)
	assert.ErrorIs(t, err, common.ErrTokenSignature)
}

func TestVerifyToken_RequiresSubjectAndExpiry(t *testing.T) {
	t.Parallel()

	s := newService(t, "k")

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = s.VerifyToken(noSubject)
	assert.ErrorIs(t, err, common.ErrTokenMalformed)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u1",
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = s.VerifyToken(noExpiry)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestIssuer_MustMatch(t *testing.T) {
	t.Parallel()

	a, err := NewTokenService(TokenConfig{Secret: []byte("k"), Issuer: "eventhub"})
	require.NoError(t, err)
	b, err := NewTokenService(TokenConfig{Secret: []byte("k"), Issuer: "other"})
	require.NoError(t, err)

	tok, err := a.IssueAccessToken("u1")
	require.NoError(t, err)

	_, err = a.VerifyToken(tok)
	require.NoError(t, err)
	_, err = b.VerifyToken(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestIssue_EmptySubject(t *testing.T) {
	_, err := newService(t, "k").IssueAccessToken("")
	assert.True(t, errors.Is(err, common.ErrorValidation))
}

func TestIssueTokenPair_DistinctTokens(t *testing.T) {
	s := newService(t, "k")
	p, err := s.IssueTokenPair("u1")
	require.NoError(t, err)
	assert.NotEqual(t, p.AccessToken, p.RefreshToken)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{ID: "u1"})
	id, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id.ID)
}

func TestIssue_SameSecondTokensDiffer(t *testing.T) {
	s := newService(t, "k")
	frozen(s, time.Now())

	a, err := s.IssueRefreshToken("u1")
	require.NoError(t, err)
	b, err := s.IssueRefreshToken("u1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
