package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"
)

type PostgresRepository struct {
	db dbx.DBTX
	// inTx wraps inserts in a savepoint so a unique violation leaves the
	// surrounding transaction usable for a retry.
	inTx bool
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NewPostgresTxRepository returns a repository bound to an open transaction.
func NewPostgresTxRepository(tx dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: tx, inTx: true}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	insert := func() error { return r.insert(ctx, user) }

	var err error
	if r.inTx {
		err = dbx.WithSavepoint(ctx, r.db, "user_create", insert)
	} else {
		err = insert()
	}
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (r *PostgresRepository) insert(ctx context.Context, user *models.User) error {
	query :=
		`INSERT INTO users (id, username, email, password_hash, profile_image, current_refresh_token)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		 RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.ProfileImage, user.CurrentRefreshToken,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

const selectUser =
	`SELECT id, username, email, COALESCE(password_hash, ''), COALESCE(profile_image, ''),
	        COALESCE(current_refresh_token, ''), created_at, updated_at
	 FROM users`

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfileImage,
		&u.CurrentRefreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET username = $2, email = $3, profile_image = NULLIF($4, ''), updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.ProfileImage)
	if err != nil {
		return mapError(err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	query :=
		`UPDATE users SET current_refresh_token = NULLIF($2, ''), updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return mapError(err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// mapError translates driver errors into common sentinels. A malformed UUID
// can only name a user that does not exist.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, pgErr.ConstraintName)
		case pgInvalidTextFormat:
			return common.ErrorNotFound
		}
	}

	return fmt.Errorf("db error: %w", err)
}
