package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection         = "users"
	subscriptionsCollection = "subscriptions"
	videosCollection        = "videos"

	mongoQueryTimeout = 5 * time.Second
)

type userDocument struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	Username     string               `bson:"username"`
	Email        string               `bson:"email"`
	FullName     string               `bson:"fullName"`
	Avatar       string               `bson:"avatar"`
	CoverImage   string               `bson:"coverImage,omitempty"`
	Password     string               `bson:"password"`
	RefreshToken string               `bson:"refreshToken,omitempty"`
	WatchHistory []primitive.ObjectID `bson:"watchHistory"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func (d userDocument) toUser() User {
	history := make([]string, 0, len(d.WatchHistory))
	for _, id := range d.WatchHistory {
		history = append(history, id.Hex())
	}
	return User{
		ID:            d.ID.Hex(),
		Username:      d.Username,
		Email:         d.Email,
		FullName:      d.FullName,
		AvatarURL:     d.Avatar,
		CoverImageURL: d.CoverImage,
		PasswordHash:  d.Password,
		RefreshToken:  d.RefreshToken,
		WatchHistory:  history,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type ownerDocument struct {
	ID       primitive.ObjectID `bson:"_id"`
	Username string             `bson:"username"`
	FullName string             `bson:"fullName"`
	Avatar   string             `bson:"avatar"`
}

type videoDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	VideoFile   string             `bson:"videoFile"`
	Thumbnail   string             `bson:"thumbnail"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Duration    float64            `bson:"duration"`
	Views       int64              `bson:"views"`
	IsPublished bool               `bson:"isPublished"`
	Owner       *ownerDocument     `bson:"owner"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

// MongoStore persists users in a MongoDB collection.
type MongoStore struct {
	db      *mongo.Database
	users   *mongo.Collection
	nowFunc func() time.Time
}

// NewMongoStore constructs a MongoStore over db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:      db,
		users:   db.Collection(usersCollection),
		nowFunc: time.Now,
	}
}

// EnsureSchema creates the unique indexes that back username/email uniqueness.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoQueryTimeout)
	defer cancel()

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.db.Collection(subscriptionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel", Value: 1}}},
		{Keys: bson.D{{Key: "subscriber", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) Create(ctx context.Context, user User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoQueryTimeout)
	defer cancel()

	now := s.nowFunc().UTC()
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		Avatar:       user.AvatarURL,
		CoverImage:   user.CoverImageURL,
		Password:     user.PasswordHash,
		WatchHistory: []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (User, error) {
	var clauses bson.A
	if username != "" {
		clauses = append(clauses, bson.M{"username": username})
	}
	if email != "" {
		clauses = append(clauses, bson.M{"email": email})
	}
	if len(clauses) == 0 {
		return User{}, ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"$or": clauses})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoQueryTimeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}

// SetRefreshToken overwrites only the refresh token field.
func (s *MongoStore) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := s.updateOne(ctx, id, bson.M{"$set": bson.M{"refreshToken": token, "updatedAt": s.nowFunc().UTC()}})
	return err
}

func (s *MongoStore) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := s.updateOne(ctx, id, bson.M{
		"$unset": bson.M{"refreshToken": 1},
		"$set":   bson.M{"updatedAt": s.nowFunc().UTC()},
	})
	return err
}

func (s *MongoStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.updateOne(ctx, id, bson.M{"$set": bson.M{"password": hash, "updatedAt": s.nowFunc().UTC()}})
	return err
}

func (s *MongoStore) UpdateAccount(ctx context.Context, id, fullName, email string) (User, error) {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"fullName":  fullName,
		"email":     email,
		"updatedAt": s.nowFunc().UTC(),
	}})
}

func (s *MongoStore) SetAvatar(ctx context.Context, id, url string) (User, error) {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"avatar": url, "updatedAt": s.nowFunc().UTC()}})
}

func (s *MongoStore) SetCoverImage(ctx context.Context, id, url string) (User, error) {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"coverImage": url, "updatedAt": s.nowFunc().UTC()}})
}

func (s *MongoStore) updateOne(ctx context.Context, id string, update bson.M) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, mongoQueryTimeout)
	defer cancel()

	var doc userDocument
	err = s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return User{}, ErrUserNotFound
		case mongo.IsDuplicateKeyError(err):
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *MongoStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoQueryTimeout)
	defer cancel()

	var viewer any
	if oid, err := primitive.ObjectIDFromHex(viewerID); err == nil {
		viewer = oid
	}

	pipeline := []bson.M{
		{"$match": bson.M{"username": username}},
		{"$lookup": bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "channel",
			"as":           "subscribers",
		}},
		{"$lookup": bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "subscriber",
			"as":           "subscribedTo",
		}},
		{"$addFields": bson.M{
			"subscribersCount":  bson.M{"$size": "$subscribers"},
			"subscribedToCount": bson.M{"$size": "$subscribedTo"},
			"isSubscribed": bson.M{"$cond": bson.M{
				"if":   bson.M{"$in": bson.A{viewer, "$subscribers.subscriber"}},
				"then": true,
				"else": false,
			}},
		}},
		{"$project": bson.M{
			"username":          1,
			"fullName":          1,
			"email":             1,
			"avatar":            1,
			"coverImage":        1,
			"subscribersCount":  1,
			"subscribedToCount": 1,
			"isSubscribed":      1,
		}},
	}

	cursor, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return ChannelProfile{}, fmt.Errorf("aggregate channel: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID                primitive.ObjectID `bson:"_id"`
		Username          string             `bson:"username"`
		FullName          string             `bson:"fullName"`
		Email             string             `bson:"email"`
		Avatar            string             `bson:"avatar"`
		CoverImage        string             `bson:"coverImage"`
		SubscribersCount  int64              `bson:"subscribersCount"`
		SubscribedToCount int64              `bson:"subscribedToCount"`
		IsSubscribed      bool               `bson:"isSubscribed"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return ChannelProfile{}, fmt.Errorf("decode channel: %w", err)
	}
	if len(rows) == 0 {
		return ChannelProfile{}, ErrUserNotFound
	}

	row := rows[0]
	return ChannelProfile{
		ID:                row.ID.Hex(),
		Username:          row.Username,
		FullName:          row.FullName,
		Email:             row.Email,
		Avatar:            row.Avatar,
		CoverImage:        row.CoverImage,
		SubscribersCount:  row.SubscribersCount,
		SubscribedToCount: row.SubscribedToCount,
		IsSubscribed:      row.IsSubscribed,
	}, nil
}

func (s *MongoStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, mongoQueryTimeout)
	defer cancel()

	pipeline := []bson.M{
		{"$match": bson.M{"_id": oid}},
		{"$lookup": bson.M{
			"from":         videosCollection,
			"localField":   "watchHistory",
			"foreignField": "_id",
			"as":           "videos",
			"pipeline": bson.A{
				bson.M{"$lookup": bson.M{
					"from":         usersCollection,
					"localField":   "owner",
					"foreignField": "_id",
					"as":           "owner",
					"pipeline": bson.A{
						bson.M{"$project": bson.M{"fullName": 1, "username": 1, "avatar": 1}},
					},
				}},
				bson.M{"$addFields": bson.M{"owner": bson.M{"$first": "$owner"}}},
			},
		}},
		{"$project": bson.M{"watchHistory": 1, "videos": 1}},
	}

	cursor, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate watch history: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		WatchHistory []primitive.ObjectID `bson:"watchHistory"`
		Videos       []videoDocument      `bson:"videos"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode watch history: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}

	// $lookup does not keep the order of localField, so restore history order here.
	byID := make(map[primitive.ObjectID]videoDocument, len(rows[0].Videos))
	for _, v := range rows[0].Videos {
		byID[v.ID] = v
	}

	history := make([]WatchedVideo, 0, len(rows[0].WatchHistory))
	for _, videoID := range rows[0].WatchHistory {
		v, ok := byID[videoID]
		if !ok {
			continue
		}
		entry := WatchedVideo{
			ID:          v.ID.Hex(),
			VideoFile:   v.VideoFile,
			Thumbnail:   v.Thumbnail,
			Title:       v.Title,
			Description: v.Description,
			Duration:    v.Duration,
			Views:       v.Views,
			IsPublished: v.IsPublished,
			CreatedAt:   v.CreatedAt,
		}
		if v.Owner != nil {
			entry.Owner = VideoOwner{
				ID:       v.Owner.ID.Hex(),
				Username: v.Owner.Username,
				FullName: v.Owner.FullName,
				Avatar:   v.Owner.Avatar,
			}
		}
		history = append(history, entry)
	}
	return history, nil
}
