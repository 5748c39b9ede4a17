// Package common defines shared constants and sentinel errors used across
// client and server layers of eventhub. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Configuration errors.
	ErrMissingSecret = errors.New("signing secret is not configured")

	// ErrInvalidToken is the parent kind of every token verification failure.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing token")

	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)

	// ErrRefreshTokenSuperseded means the refresh token verified but is no
	// longer the one stored for the user.
	ErrRefreshTokenSuperseded = fmt.Errorf("%w: refresh token superseded", ErrInvalidToken)
)
