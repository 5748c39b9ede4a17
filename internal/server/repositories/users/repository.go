// Package users persists identity records.
package users

import (
	"context"

	"github.com/dmitrijs2005/eventhub/internal/server/models"
)

// Repository returns common.ErrorNotFound for unknown users and
// common.ErrorAlreadyExists when email or username is taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	// SetRefreshToken overwrites the stored refresh token; "" clears it.
	SetRefreshToken(ctx context.Context, userID, token string) error
}
