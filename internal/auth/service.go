package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/metrics"
	"github.com/videotube/api/internal/users"
)

// Service implements the session lifecycle: registration, login, refresh
// rotation, logout and password changes.
type Service struct {
	store  users.Store
	hasher PasswordHasher
	tokens *TokenManager
	media  media.Host
}

// NewService creates a Service with dependencies.
func NewService(store users.Store, hasher PasswordHasher, tokens *TokenManager, host media.Host) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		media:  host,
	}
}

// RegisterInput carries the registration form. Uploads must already be staged.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Uploads  media.Uploads
}

// LoginInput carries login credentials. Either Username or Email identifies the user.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// TokenPair bundles access and refresh tokens.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// LoginResult is returned by Login.
type LoginResult struct {
	User   users.Profile
	Tokens TokenPair
}

// Register creates a user after uploading the avatar and optional cover image.
func (s *Service) Register(ctx context.Context, input RegisterInput) (_ users.Profile, err error) {
	defer func() { metrics.AuthEvent("register", err) }()
	defer input.Uploads.Cleanup()

	username := users.Normalize(input.Username)
	email := users.Normalize(input.Email)
	fullName := strings.TrimSpace(input.FullName)

	if username == "" || email == "" || fullName == "" || strings.TrimSpace(input.Password) == "" {
		return users.Profile{}, apperr.Validation("all fields are required")
	}
	if len(input.Password) > maxPasswordLength {
		return users.Profile{}, apperr.Validation(fmt.Sprintf("password must be no longer than %d bytes", maxPasswordLength))
	}

	_, err = s.store.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return users.Profile{}, apperr.Conflict("user with email or username already exists")
	case !errors.Is(err, users.ErrUserNotFound):
		return users.Profile{}, apperr.Internal("", fmt.Errorf("check existing user: %w", err))
	}

	if !input.Uploads.AvatarPresent {
		return users.Profile{}, apperr.Validation("avatar file is required")
	}

	avatar, err := s.media.Upload(ctx, input.Uploads.AvatarRef)
	if err != nil {
		return users.Profile{}, apperr.Upload("failed to upload avatar", err)
	}

	var coverURL string
	if input.Uploads.CoverPresent {
		cover, err := s.media.Upload(ctx, input.Uploads.CoverRef)
		if err != nil {
			return users.Profile{}, apperr.Upload("failed to upload cover image", err)
		}
		coverURL = cover.URL
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return users.Profile{}, apperr.Internal("", fmt.Errorf("hash password: %w", err))
	}

	created, err := s.store.Create(ctx, users.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
		PasswordHash:  digest,
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateUser) {
			return users.Profile{}, apperr.Conflict("user with email or username already exists")
		}
		return users.Profile{}, apperr.Internal("", fmt.Errorf("create user: %w", err))
	}

	stored, err := s.store.FindByID(ctx, created.ID)
	if err != nil {
		return users.Profile{}, apperr.Internal("something went wrong while registering the user", err)
	}
	return stored.Sanitize(), nil
}

// Login verifies credentials and stores a fresh refresh token on the user,
// replacing any earlier session.
func (s *Service) Login(ctx context.Context, input LoginInput) (_ LoginResult, err error) {
	defer func() { metrics.AuthEvent("login", err) }()

	username := users.Normalize(input.Username)
	email := users.Normalize(input.Email)
	if username == "" && email == "" {
		return LoginResult{}, apperr.Validation("username or email is required")
	}

	user, err := s.store.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return LoginResult{}, apperr.NotFound("user does not exist")
		}
		return LoginResult{}, apperr.Internal("", fmt.Errorf("find user: %w", err))
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		return LoginResult{}, apperr.Unauthorized("invalid user credentials", nil)
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{User: user.Sanitize(), Tokens: pair}, nil
}

// RefreshSession exchanges the user's current refresh token for a new pair.
// Any other token, including one superseded by an earlier refresh, is rejected.
func (s *Service) RefreshSession(ctx context.Context, presented string) (_ TokenPair, err error) {
	defer func() { metrics.AuthEvent("refresh", err) }()

	if strings.TrimSpace(presented) == "" {
		return TokenPair{}, apperr.Unauthorized("unauthorized request", nil)
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return TokenPair{}, apperr.Unauthorized("invalid refresh token", err)
	}

	user, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return TokenPair{}, apperr.Unauthorized("invalid refresh token", err)
		}
		return TokenPair{}, apperr.Internal("", fmt.Errorf("find user: %w", err))
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshToken)) != 1 {
		return TokenPair{}, apperr.Unauthorized("refresh token is expired or used", nil)
	}

	return s.startSession(ctx, user)
}

// Logout clears the stored refresh token. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, userID string) (err error) {
	defer func() { metrics.AuthEvent("logout", err) }()

	if err := s.store.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, users.ErrUserNotFound) {
		return apperr.Internal("", fmt.Errorf("clear refresh token: %w", err))
	}
	return nil
}

// ChangePassword replaces the password hash after checking the old password.
// The current refresh token stays valid.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (err error) {
	defer func() { metrics.AuthEvent("change_password", err) }()

	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("new password is required")
	}
	if len(newPassword) > maxPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be no longer than %d bytes", maxPasswordLength))
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return apperr.Unauthorized("invalid access token", err)
		}
		return apperr.Internal("", fmt.Errorf("find user: %w", err))
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return apperr.Unauthorized("invalid old password", nil)
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("", fmt.Errorf("hash password: %w", err))
	}
	if err := s.store.SetPasswordHash(ctx, user.ID, digest); err != nil {
		return apperr.Internal("", fmt.Errorf("store password: %w", err))
	}
	return nil
}

// AuthenticateToken resolves an access token into the sanitized user it names.
func (s *Service) AuthenticateToken(ctx context.Context, raw string) (users.Profile, error) {
	if strings.TrimSpace(raw) == "" {
		return users.Profile{}, apperr.Unauthorized("unauthorized request", nil)
	}

	claims, err := s.tokens.VerifyAccessToken(raw)
	if err != nil {
		return users.Profile{}, apperr.Unauthorized("invalid access token", err)
	}

	user, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return users.Profile{}, apperr.Unauthorized("invalid access token", err)
		}
		return users.Profile{}, apperr.Internal("", fmt.Errorf("find user: %w", err))
	}
	return user.Sanitize(), nil
}

// TokenLifetimes returns the configured access and refresh lifetimes.
func (s *Service) TokenLifetimes() (access, refresh time.Duration) {
	return s.tokens.AccessTTL(), s.tokens.RefreshTTL()
}

// startSession issues a new pair and overwrites the stored refresh token.
func (s *Service) startSession(ctx context.Context, user users.User) (TokenPair, error) {
	access, accessExpiry, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, apperr.Internal("something went wrong while generating tokens", err)
	}
	refresh, refreshExpiry, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal("something went wrong while generating tokens", err)
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return TokenPair{}, apperr.Internal("", fmt.Errorf("store refresh token: %w", err))
	}

	return TokenPair{
		AccessToken:        access,
		AccessTokenExpiry:  accessExpiry,
		RefreshToken:       refresh,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}
