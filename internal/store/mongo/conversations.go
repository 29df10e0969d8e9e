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

type conversationStore struct{ s *Store }

func (c conversationStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	count, err := c.s.conversations.CountDocuments(ctx, bson.M{
		"_id":          conversationID,
		"participants": userID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

func (c conversationStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := c.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Participants, nil
}

func (c conversationStore) UpdateLastMessage(ctx context.Context, conversationID string, summary store.LastMessage) error {
	res, err := c.s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"lastMessage": summary, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c conversationStore) Create(ctx context.Context, participants []string) (store.Conversation, error) {
	now := time.Now()
	conv := store.Conversation{
		ID:           uuid.NewString(),
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := c.s.conversations.InsertOne(ctx, conv); err != nil {
		return store.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

func (c conversationStore) FindByID(ctx context.Context, conversationID string) (store.Conversation, error) {
	var conv store.Conversation
	err := c.s.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("failed to find conversation: %w", err)
	}
	return conv, nil
}

func (c conversationStore) FindBetween(ctx context.Context, userA, userB string) (store.Conversation, error) {
	var conv store.Conversation
	err := c.s.conversations.FindOne(ctx, bson.M{
		"participants": bson.M{"$all": []string{userA, userB}},
	}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("failed to find conversation between users: %w", err)
	}
	return conv, nil
}

func (c conversationStore) ListForUser(ctx context.Context, userID string) ([]store.Conversation, error) {
	cursor, err := c.s.conversations.Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	var out []store.Conversation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return out, nil
}
