package auth

import "errors"

var (
	// ErrTokenMalformed is returned when a token cannot be parsed or carries the wrong claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalidSignature is returned when the signature or algorithm does not match.
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned when the embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidHash is returned when a stored password digest has an unknown format.
	ErrInvalidHash = errors.New("invalid password hash format")
)
