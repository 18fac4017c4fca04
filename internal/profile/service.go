// Package profile serves account updates and the read-only channel and
// watch history views of a user.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/users"
)

// Service implements profile use cases on top of the credential store.
type Service struct {
	store users.Store
	media media.Host
}

// NewService creates a Service with dependencies.
func NewService(store users.Store, host media.Host) *Service {
	return &Service{store: store, media: host}
}

// UpdateAccount replaces the full name and email of a user.
func (s *Service) UpdateAccount(ctx context.Context, userID, fullName, email string) (users.Profile, error) {
	fullName = strings.TrimSpace(fullName)
	email = users.Normalize(email)
	if fullName == "" || email == "" {
		return users.Profile{}, apperr.Validation("all fields are required")
	}

	updated, err := s.store.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		return users.Profile{}, storeError(err)
	}
	return updated.Sanitize(), nil
}

// UpdateAvatar publishes file and stores its URL as the avatar.
func (s *Service) UpdateAvatar(ctx context.Context, userID string, file media.LocalFile) (users.Profile, error) {
	return s.replaceImage(ctx, userID, file, "avatar", s.store.SetAvatar)
}

// UpdateCoverImage publishes file and stores its URL as the cover image.
func (s *Service) UpdateCoverImage(ctx context.Context, userID string, file media.LocalFile) (users.Profile, error) {
	return s.replaceImage(ctx, userID, file, "cover image", s.store.SetCoverImage)
}

type imageSetter func(ctx context.Context, id, url string) (users.User, error)

func (s *Service) replaceImage(ctx context.Context, userID string, file media.LocalFile, label string, set imageSetter) (users.Profile, error) {
	if file.Path == "" {
		return users.Profile{}, apperr.Validation(label + " file is missing")
	}

	asset, err := s.media.Upload(ctx, file)
	if err != nil {
		return users.Profile{}, apperr.Upload("error while uploading "+label, err)
	}

	updated, err := set(ctx, userID, asset.URL)
	if err != nil {
		return users.Profile{}, storeError(err)
	}
	return updated.Sanitize(), nil
}

// Channel returns the public channel page of username. viewerID may be empty
// for anonymous viewers.
func (s *Service) Channel(ctx context.Context, username, viewerID string) (users.ChannelProfile, error) {
	username = users.Normalize(username)
	if username == "" {
		return users.ChannelProfile{}, apperr.Validation("username is missing")
	}

	channel, err := s.store.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return users.ChannelProfile{}, apperr.NotFound("channel does not exist")
		}
		return users.ChannelProfile{}, apperr.Internal("", fmt.Errorf("channel profile: %w", err))
	}
	return channel, nil
}

// WatchHistory returns the user's watched videos in history order.
func (s *Service) WatchHistory(ctx context.Context, userID string) ([]users.WatchedVideo, error) {
	history, err := s.store.WatchHistory(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, apperr.NotFound("user does not exist")
		}
		return nil, apperr.Internal("", fmt.Errorf("watch history: %w", err))
	}
	return history, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		return apperr.NotFound("user does not exist")
	case errors.Is(err, users.ErrDuplicateUser):
		return apperr.Conflict("email is already in use")
	}
	return apperr.Internal("", fmt.Errorf("update user: %w", err))
}
