package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

type profileStore struct{ s *Store }

var minimalProjection = options.FindOne().SetProjection(bson.M{
	"username": 1, "avatar": 1, "isOnline": 1, "lastSeen": 1,
})

func (p profileStore) Minimal(ctx context.Context, userID string) (store.Profile, error) {
	var profile store.Profile
	err := p.s.users.FindOne(ctx, bson.M{"_id": userID}, minimalProjection).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Profile{}, store.ErrNotFound
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("failed to find user: %w", err)
	}
	return profile, nil
}

func (p profileStore) MinimalMany(ctx context.Context, userIDs []string) ([]store.Profile, error) {
	cursor, err := p.s.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": userIDs}},
		options.Find().SetProjection(bson.M{
			"username": 1, "avatar": 1, "isOnline": 1, "lastSeen": 1,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	var out []store.Profile
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	return out, nil
}

func (p profileStore) Create(ctx context.Context, user store.User) (store.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if _, err := p.s.users.InsertOne(ctx, user); err != nil {
		if isDuplicateKey(err) {
			return store.User{}, store.ErrDuplicate
		}
		return store.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (p profileStore) FindByID(ctx context.Context, userID string) (store.User, error) {
	return p.findOne(ctx, bson.M{"_id": userID})
}

func (p profileStore) FindByUsername(ctx context.Context, username string) (store.User, error) {
	return p.findOne(ctx, bson.M{"username": username})
}

func (p profileStore) FindByEmail(ctx context.Context, email string) (store.User, error) {
	return p.findOne(ctx, bson.M{"email": email})
}

func (p profileStore) findOne(ctx context.Context, filter bson.M) (store.User, error) {
	var user store.User
	err := p.s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (p profileStore) UpdateProfile(ctx context.Context, userID string, username, bio, avatar *string) (store.User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if username != nil {
		set["username"] = *username
	}
	if bio != nil {
		set["bio"] = *bio
	}
	if avatar != nil {
		set["avatar"] = *avatar
	}

	var user store.User
	err := p.s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		if isDuplicateKey(err) {
			return store.User{}, store.ErrDuplicate
		}
		return store.User{}, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

func (p profileStore) Search(ctx context.Context, query, excludeID string) ([]store.Profile, error) {
	cursor, err := p.s.users.Find(ctx,
		bson.M{
			"_id":      bson.M{"$ne": excludeID},
			"username": bson.M{"$regex": query, "$options": "i"},
		},
		options.Find().SetProjection(bson.M{
			"username": 1, "avatar": 1, "isOnline": 1, "lastSeen": 1,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	var out []store.Profile
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return out, nil
}

func (p profileStore) SetOnline(ctx context.Context, userID string, online bool) error {
	_, err := p.s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"isOnline": online, "lastSeen": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set online flag: %w", err)
	}
	return nil
}
