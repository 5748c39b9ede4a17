// Package session keeps the CLI's tokens in a local SQLite key/value table.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/eventhub/internal/client/session/migrations"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	keyUserID       = "user_id"
	keyUsername     = "username"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

var ErrNoSession = errors.New("not logged in")

// Session is what the CLI remembers between invocations.
type Session struct {
	UserID       string
	Username     string
	AccessToken  string
	RefreshToken string
}

// Store is a key/value repository over the metadata table.
type Store struct {
	db     *sql.DB
	closer func() error
}

// Open opens (creating if needed) the SQLite file at dsn and applies the
// embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session migrations: %w", err)
	}
	return &Store{db: db, closer: db.Close}, nil
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	// Set the database dialect
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, s.db, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, s.db, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata`)
	if err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

// Save replaces the whole session atomically.
func (s *Store) Save(ctx context.Context, sess Session) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range map[string]string{
			keyUserID:       sess.UserID,
			keyUsername:     sess.Username,
			keyAccessToken:  sess.AccessToken,
			keyRefreshToken: sess.RefreshToken,
		} {
			if err := set(ctx, tx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns ErrNoSession when no refresh token is stored.
func (s *Store) Load(ctx context.Context) (Session, error) {
	var sess Session
	for k, dst := range map[string]*string{
		keyUserID:       &sess.UserID,
		keyUsername:     &sess.Username,
		keyAccessToken:  &sess.AccessToken,
		keyRefreshToken: &sess.RefreshToken,
	} {
		v, err := s.Get(ctx, k)
		if err != nil {
			return Session{}, err
		}
		*dst = string(v)
	}
	if sess.RefreshToken == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// SetAccessToken stores the token returned by a refresh exchange.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.Set(ctx, keyAccessToken, []byte(token))
}

func get(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
