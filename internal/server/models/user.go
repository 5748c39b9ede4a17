// Package models holds the server-side domain records.
package models

import "time"

// User is the identity record. PasswordHash is empty for accounts created
// through Google sign-in. CurrentRefreshToken is the only refresh token the
// refresh exchange accepts for this user; empty means no live session.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	ProfileImage        string
	CurrentRefreshToken string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
