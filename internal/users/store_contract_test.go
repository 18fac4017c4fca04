package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeHarness is a fresh, empty Store plus driver-specific seeding for the
// collections the Store only reads.
type storeHarness struct {
	store     Store
	subscribe func(t *testing.T, subscriberID, channelID string)
	addVideo  func(t *testing.T, ownerID, title string) string
	watch     func(t *testing.T, userID, videoID string)
}

func createUser(t *testing.T, store Store, username string) User {
	t.Helper()
	user, err := store.Create(context.Background(), User{
		Username:     username,
		Email:        username + "@x.io",
		FullName:     "Test " + username,
		AvatarURL:    "http://media/" + username + ".png",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return user
}

func runStoreContract(t *testing.T, open func(t *testing.T) storeHarness) {
	t.Run("create enforces uniqueness", func(t *testing.T) {
		h := open(t)
		created := createUser(t, h.store, "ana")

		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Empty(t, created.WatchHistory)

		_, err := h.store.Create(context.Background(), User{Username: "ana", Email: "other@x.io", FullName: "x", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrDuplicateUser)

		_, err = h.store.Create(context.Background(), User{Username: "other", Email: "ana@x.io", FullName: "x", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrDuplicateUser)
	})

	t.Run("lookups", func(t *testing.T) {
		ctx := context.Background()
		h := open(t)
		created := createUser(t, h.store, "ana")

		byName, err := h.store.FindByUsernameOrEmail(ctx, "ana", "")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)
		assert.Equal(t, "hash", byName.PasswordHash)

		byEmail, err := h.store.FindByUsernameOrEmail(ctx, "", "ana@x.io")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byID, err := h.store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ana", byID.Username)

		_, err = h.store.FindByUsernameOrEmail(ctx, "", "")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = h.store.FindByUsernameOrEmail(ctx, "bob", "bob@x.io")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = h.store.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("targeted updates", func(t *testing.T) {
		ctx := context.Background()
		h := open(t)
		ana := createUser(t, h.store, "ana")
		createUser(t, h.store, "bob")

		require.NoError(t, h.store.SetRefreshToken(ctx, ana.ID, "refresh-1"))
		require.NoError(t, h.store.SetPasswordHash(ctx, ana.ID, "new-hash"))

		got, err := h.store.FindByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.Equal(t, ana.FullName, got.FullName)

		require.NoError(t, h.store.ClearRefreshToken(ctx, ana.ID))
		got, err = h.store.FindByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshToken)
		assert.Equal(t, "new-hash", got.PasswordHash)

		avatar, err := h.store.SetAvatar(ctx, ana.ID, "http://media/new.png")
		require.NoError(t, err)
		assert.Equal(t, "http://media/new.png", avatar.AvatarURL)

		cover, err := h.store.SetCoverImage(ctx, ana.ID, "http://media/cover.png")
		require.NoError(t, err)
		assert.Equal(t, "http://media/cover.png", cover.CoverImageURL)
		assert.Equal(t, "http://media/new.png", cover.AvatarURL)

		_, err = h.store.UpdateAccount(ctx, ana.ID, "Ana Lee", "bob@x.io")
		assert.ErrorIs(t, err, ErrDuplicateUser)

		updated, err := h.store.UpdateAccount(ctx, ana.ID, "Ana Lee", "lee@x.io")
		require.NoError(t, err)
		assert.Equal(t, "Ana Lee", updated.FullName)
		assert.Equal(t, "lee@x.io", updated.Email)

		assert.ErrorIs(t, h.store.SetRefreshToken(ctx, "missing", "x"), ErrUserNotFound)
	})

	t.Run("channel profile", func(t *testing.T) {
		ctx := context.Background()
		h := open(t)
		ana := createUser(t, h.store, "ana")
		bob := createUser(t, h.store, "bob")
		cid := createUser(t, h.store, "cid")

		h.subscribe(t, bob.ID, ana.ID)
		h.subscribe(t, cid.ID, ana.ID)
		h.subscribe(t, ana.ID, bob.ID)

		profile, err := h.store.ChannelProfile(ctx, "ana", bob.ID)
		require.NoError(t, err)
		assert.Equal(t, ana.ID, profile.ID)
		assert.Equal(t, "ana@x.io", profile.Email)
		assert.Equal(t, int64(2), profile.SubscribersCount)
		assert.Equal(t, int64(1), profile.SubscribedToCount)
		assert.True(t, profile.IsSubscribed)

		anonymous, err := h.store.ChannelProfile(ctx, "ana", "")
		require.NoError(t, err)
		assert.False(t, anonymous.IsSubscribed)
		assert.Equal(t, int64(2), anonymous.SubscribersCount)

		notSubscribed, err := h.store.ChannelProfile(ctx, "bob", cid.ID)
		require.NoError(t, err)
		assert.False(t, notSubscribed.IsSubscribed)
		assert.Equal(t, int64(1), notSubscribed.SubscribersCount)

		_, err = h.store.ChannelProfile(ctx, "nobody", "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("watch history keeps order", func(t *testing.T) {
		ctx := context.Background()
		h := open(t)
		ana := createUser(t, h.store, "ana")
		bob := createUser(t, h.store, "bob")

		first := h.addVideo(t, bob.ID, "first")
		second := h.addVideo(t, bob.ID, "second")
		h.watch(t, ana.ID, second)
		h.watch(t, ana.ID, first)

		history, err := h.store.WatchHistory(ctx, ana.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "second", history[0].Title)
		assert.Equal(t, "first", history[1].Title)
		assert.Equal(t, bob.ID, history[0].Owner.ID)
		assert.Equal(t, "bob", history[0].Owner.Username)

		byName, err := h.store.FindByUsernameOrEmail(ctx, "ana", "")
		require.NoError(t, err)
		assert.Equal(t, []string{second, first}, byName.WatchHistory)

		byID, err := h.store.FindByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{second, first}, byID.WatchHistory)

		empty, err := h.store.WatchHistory(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, err = h.store.WatchHistory(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
