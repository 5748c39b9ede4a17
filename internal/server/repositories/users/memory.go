package users

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

// MemoryStore is the shared state behind MemoryRepository values.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User)}
}

// MemoryRepository keeps users in process memory. Used by tests and by the
// server when no database DSN is configured.
type MemoryRepository struct {
	s   *MemoryStore
	now func() time.Time
}

func NewMemoryRepository(s *MemoryStore) *MemoryRepository {
	return &MemoryRepository{s: s, now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return nil, fmt.Errorf("%w: users_pkey", common.ErrorAlreadyExists)
	}
	if err := r.checkUnique(user); err != nil {
		return nil, err
	}

	now := r.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user

	return user, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Update(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.users[user.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}

	cur.Username = user.Username
	cur.Email = user.Email
	cur.ProfileImage = user.ProfileImage
	cur.UpdatedAt = r.now()
	r.s.users[user.ID] = cur
	return nil
}

func (r *MemoryRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	cur.CurrentRefreshToken = token
	cur.UpdatedAt = r.now()
	r.s.users[userID] = cur
	return nil
}

// checkUnique must be called with the write lock held.
func (r *MemoryRepository) checkUnique(user *models.User) error {
	for id, u := range r.s.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", common.ErrorAlreadyExists)
		}
		if strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("%w: users_username_key", common.ErrorAlreadyExists)
		}
	}
	return nil
}
