package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	videos        map[string]Video
	subscriptions map[[2]string]struct{} // {subscriber, channel}
	nowFunc       func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		videos:        make(map[string]Video),
		subscriptions: make(map[[2]string]struct{}),
		nowFunc:       time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return User{}, ErrDuplicateUser
		}
	}

	now := m.nowFunc().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.WatchHistory == nil {
		user.WatchHistory = []string{}
	}
	m.users[user.ID] = user
	return clone(user), nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return clone(user), nil
}

func (m *MemoryStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			return clone(user), nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *MemoryStore) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := m.update(id, func(u *User) error {
		u.RefreshToken = token
		return nil
	})
	return err
}

func (m *MemoryStore) ClearRefreshToken(ctx context.Context, id string) error {
	return m.SetRefreshToken(ctx, id, "")
}

func (m *MemoryStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	_, err := m.update(id, func(u *User) error {
		u.PasswordHash = hash
		return nil
	})
	return err
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, id, fullName, email string) (User, error) {
	return m.update(id, func(u *User) error {
		for otherID, other := range m.users {
			if otherID != id && other.Email == email {
				return ErrDuplicateUser
			}
		}
		u.FullName = fullName
		u.Email = email
		return nil
	})
}

func (m *MemoryStore) SetAvatar(ctx context.Context, id, url string) (User, error) {
	return m.update(id, func(u *User) error {
		u.AvatarURL = url
		return nil
	})
}

func (m *MemoryStore) SetCoverImage(ctx context.Context, id, url string) (User, error) {
	return m.update(id, func(u *User) error {
		u.CoverImageURL = url
		return nil
	})
}

func (m *MemoryStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var channel *User
	for _, user := range m.users {
		if user.Username == username {
			u := user
			channel = &u
			break
		}
	}
	if channel == nil {
		return ChannelProfile{}, ErrUserNotFound
	}

	profile := ChannelProfile{
		ID:         channel.ID,
		Username:   channel.Username,
		FullName:   channel.FullName,
		Email:      channel.Email,
		Avatar:     channel.AvatarURL,
		CoverImage: channel.CoverImageURL,
	}
	for key := range m.subscriptions {
		if key[1] == channel.ID {
			profile.SubscribersCount++
			if viewerID != "" && key[0] == viewerID {
				profile.IsSubscribed = true
			}
		}
		if key[0] == channel.ID {
			profile.SubscribedToCount++
		}
	}
	return profile, nil
}

func (m *MemoryStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	history := make([]WatchedVideo, 0, len(user.WatchHistory))
	for _, videoID := range user.WatchHistory {
		video, ok := m.videos[videoID]
		if !ok {
			continue
		}
		entry := WatchedVideo{
			ID:          video.ID,
			VideoFile:   video.VideoFile,
			Thumbnail:   video.Thumbnail,
			Title:       video.Title,
			Description: video.Description,
			Duration:    video.Duration,
			Views:       video.Views,
			IsPublished: video.IsPublished,
			CreatedAt:   video.CreatedAt,
		}
		if owner, ok := m.users[video.OwnerID]; ok {
			entry.Owner = VideoOwner{
				ID:       owner.ID,
				Username: owner.Username,
				FullName: owner.FullName,
				Avatar:   owner.AvatarURL,
			}
		}
		history = append(history, entry)
	}
	return history, nil
}

func (m *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddVideo stores a video and returns it with an assigned id.
func (m *MemoryStore) AddVideo(video Video) Video {
	m.mu.Lock()
	defer m.mu.Unlock()

	video.ID = uuid.NewString()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = m.nowFunc().UTC()
	}
	m.videos[video.ID] = video
	return video
}

// Subscribe records subscriberID as a subscriber of channelID.
func (m *MemoryStore) Subscribe(subscriberID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[[2]string{subscriberID, channelID}] = struct{}{}
}

// AppendWatchHistory appends videoID to the user's watch history.
func (m *MemoryStore) AppendWatchHistory(userID, videoID string) error {
	_, err := m.update(userID, func(u *User) error {
		u.WatchHistory = append(u.WatchHistory, videoID)
		return nil
	})
	return err
}

func (m *MemoryStore) update(id string, mutate func(*User) error) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if err := mutate(&user); err != nil {
		return User{}, err
	}
	user.UpdatedAt = m.nowFunc().UTC()
	m.users[id] = user
	return clone(user), nil
}

func clone(u User) User {
	u.WatchHistory = append([]string(nil), u.WatchHistory...)
	return u
}
