//go:build integration

package users

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Run with: VIDEOTUBE_TEST_MONGODB_URI=mongodb://localhost:27017 go test -tags integration ./internal/users
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("VIDEOTUBE_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("VIDEOTUBE_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	runStoreContract(t, func(t *testing.T) storeHarness {
		db := client.Database("videotube_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		store := NewMongoStore(db)
		require.NoError(t, store.EnsureSchema(context.Background()))

		return storeHarness{
			store: store,
			subscribe: func(t *testing.T, subscriberID, channelID string) {
				_, err := db.Collection(subscriptionsCollection).InsertOne(context.Background(), bson.M{
					"subscriber": mustObjectID(t, subscriberID),
					"channel":    mustObjectID(t, channelID),
				})
				require.NoError(t, err)
			},
			addVideo: func(t *testing.T, ownerID, title string) string {
				id := primitive.NewObjectID()
				_, err := db.Collection(videosCollection).InsertOne(context.Background(), bson.M{
					"_id":         id,
					"owner":       mustObjectID(t, ownerID),
					"videoFile":   "http://media/" + title + ".mp4",
					"thumbnail":   "http://media/" + title + ".png",
					"title":       title,
					"description": "",
					"duration":    12.5,
					"views":       int64(0),
					"isPublished": true,
					"createdAt":   time.Now().UTC(),
				})
				require.NoError(t, err)
				return id.Hex()
			},
			watch: func(t *testing.T, userID, videoID string) {
				_, err := db.Collection(usersCollection).UpdateByID(context.Background(), mustObjectID(t, userID),
					bson.M{"$push": bson.M{"watchHistory": mustObjectID(t, videoID)}})
				require.NoError(t, err)
			},
		}
	})
}

func mustObjectID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return oid
}
