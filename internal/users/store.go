package users

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser indicates the username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already exists")
)

// Store is the credential store contract. Implementations own uniqueness of
// username and email; every write touches only the fields it names.
type Store interface {
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// FindByUsernameOrEmail matches either non-empty argument.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	UpdateAccount(ctx context.Context, id, fullName, email string) (User, error)
	SetAvatar(ctx context.Context, id, url string) (User, error)
	SetCoverImage(ctx context.Context, id, url string) (User, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error)
	WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error)
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Normalize lowercases and trims identifiers before they reach a store.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
