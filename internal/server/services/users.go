// Package services contains server-side business logic. UserService owns
// account creation, password and Google sign-in, profile changes and the
// refresh exchange that relies on the single stored refresh token.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/events"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/users"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost the account store has always used.
const DefaultBcryptCost = 10

// Tokens is the part of auth.TokenService the user service needs.
type Tokens interface {
	IssueTokenPair(subjectID string) (auth.TokenPair, error)
	IssueAccessToken(subjectID string) (string, error)
	VerifyToken(token string) (*auth.Claims, error)
}

// Session is the result of every successful sign-in.
type Session struct {
	User   *models.User
	Tokens auth.TokenPair
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate leaves fields that are empty untouched.
type ProfileUpdate struct {
	Username string
	Email    string
}

// OAuthProfile is what a federated identity provider tells us about the user.
type OAuthProfile struct {
	Email   string
	Name    string
	Picture string
}

type UserService struct {
	repos      repomanager.RepositoryManager
	tokens     Tokens
	publisher  events.Publisher
	logger     logging.Logger
	bcryptCost int
	now        func() time.Time

	// dummyHash is compared against when the email is unknown so that
	// login timing does not reveal registered addresses.
	dummyHash []byte
}

type Option func(*UserService)

// WithBcryptCost is meant for tests; production keeps DefaultBcryptCost.
func WithBcryptCost(cost int) Option {
	return func(s *UserService) { s.bcryptCost = cost }
}

func NewUserService(m repomanager.RepositoryManager, t Tokens, p events.Publisher, l logging.Logger, opts ...Option) (*UserService, error) {
	if p == nil {
		p = events.Nop{}
	}
	if l == nil {
		l = logging.Nop{}
	}
	s := &UserService{
		repos:      m,
		tokens:     t,
		publisher:  p,
		logger:     l.With("module", "user_service"),
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	h, err := bcrypt.GenerateFromPassword([]byte("eventhub-timing-guard"), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	s.dummyHash = h
	return s, nil
}

// Register creates a password account and starts its first session.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username := strings.TrimSpace(in.Username)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", common.ErrorValidation)
	}

	repo := s.repos.Users()
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	pair, err := s.tokens.IssueTokenPair(user.ID)
	if err != nil {
		return nil, internal(err)
	}
	user.CurrentRefreshToken = pair.RefreshToken

	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, internal(err)
	}

	s.publish(ctx, events.SubjectUserRegistered, events.SessionEvent{UserID: created.ID, At: s.now(), Method: "password"})
	s.publish(ctx, events.SubjectSessionStarted, events.SessionEvent{UserID: created.ID, At: s.now(), Method: "registration"})

	return &Session{User: created, Tokens: pair}, nil
}

// Login checks the password and starts a new session, replacing any stored
// refresh token. Unknown email, OAuth-only account and wrong password all
// yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorValidation)
	}

	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, internal(err)
	}

	if !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, common.ErrorUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}

	return s.startSession(ctx, s.repos.Users(), user, "password")
}

// LoginWithOAuth links a federated profile to the account with the same
// email, creating the account on first sign-in, and starts a new session.
func (s *UserService) LoginWithOAuth(ctx context.Context, p OAuthProfile) (*Session, error) {
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return nil, err
	}

	var session *Session
	err = s.repos.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		user, err := repo.GetByEmail(ctx, email)
		if errors.Is(err, common.ErrorNotFound) {
			user, err = s.createOAuthUser(ctx, repo, email, p)
		}
		if err != nil {
			return err
		}

		session, err = s.startSession(ctx, repo, user, "oauth")
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			return nil, err
		}
		return nil, internal(err)
	}
	return session, nil
}

func (s *UserService) createOAuthUser(ctx context.Context, repo users.Repository, email string, p OAuthProfile) (*models.User, error) {
	base := strings.TrimSpace(p.Name)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}

	username := base
	for attempt := 0; attempt < 3; attempt++ {
		user := &models.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			ProfileImage: p.Picture,
		}
		created, err := repo.Create(ctx, user)
		if err == nil {
			s.publish(ctx, events.SubjectUserRegistered, events.SessionEvent{UserID: created.ID, At: s.now(), Method: "oauth"})
			return created, nil
		}
		if !errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}

		suffix, rerr := common.MakeRandHexString(2)
		if rerr != nil {
			return nil, rerr
		}
		username = base + "-" + suffix
	}
	return nil, fmt.Errorf("no free username for %q", base)
}

// startSession issues a token pair and overwrites the stored refresh token.
// Concurrent sign-ins race here and the last write wins.
func (s *UserService) startSession(ctx context.Context, repo users.Repository, user *models.User, method string) (*Session, error) {
	pair, err := s.tokens.IssueTokenPair(user.ID)
	if err != nil {
		return nil, internal(err)
	}

	superseded := user.CurrentRefreshToken != ""
	if err := repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, internal(err)
	}
	user.CurrentRefreshToken = pair.RefreshToken

	s.publish(ctx, events.SubjectSessionStarted, events.SessionEvent{
		UserID:     user.ID,
		At:         s.now(),
		Method:     method,
		Superseded: superseded,
	})

	return &Session{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new access token. The token must
// verify and must equal the one stored for its subject; it is not rotated.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", common.ErrMissingToken
	}

	claims, err := s.tokens.VerifyToken(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.repos.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", fmt.Errorf("%w: unknown subject", common.ErrInvalidToken)
		}
		return "", internal(err)
	}

	if subtle.ConstantTimeCompare([]byte(user.CurrentRefreshToken), []byte(refreshToken)) != 1 {
		return "", common.ErrRefreshTokenSuperseded
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return "", internal(err)
	}
	return access, nil
}

// Logout clears the stored refresh token. Access tokens already issued stay
// valid until they expire.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repos.Users().SetRefreshToken(ctx, userID, ""); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return internal(err)
	}
	s.publish(ctx, events.SubjectSessionEnded, events.SessionEvent{UserID: userID, At: s.now()})
	return nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	username := strings.TrimSpace(upd.Username)
	var email string
	if strings.TrimSpace(upd.Email) != "" {
		var err error
		if email, err = normalizeEmail(upd.Email); err != nil {
			return nil, err
		}
	}

	var updated *models.User
	err := s.repos.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		user, err := repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if username != "" {
			user.Username = username
		}
		if email != "" {
			user.Email = email
		}
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, internal(err)
	}
	return updated, nil
}

func (s *UserService) publish(ctx context.Context, subject string, ev events.SessionEvent) {
	if err := s.publisher.Publish(ctx, subject, ev); err != nil {
		s.logger.Warn(ctx, "event publish failed", "subject", subject, "user_id", ev.UserID, "error", err)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	return email, nil
}

func internal(err error) error {
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}
