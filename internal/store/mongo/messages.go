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

type messageStore struct{ s *Store }

func (m messageStore) Create(ctx context.Context, msg store.Message) (store.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	if _, err := m.s.messages.InsertOne(ctx, msg); err != nil {
		return store.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (m messageStore) MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (int64, error) {
	// sender: {$ne: reader} keeps a user from marking their own messages read
	res, err := m.s.messages.UpdateMany(ctx,
		bson.M{
			"_id":            bson.M{"$in": messageIDs},
			"conversationId": conversationID,
			"sender":         bson.M{"$ne": readerID},
		},
		bson.M{"$addToSet": bson.M{"readBy": readerID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m messageStore) ListByConversation(ctx context.Context, conversationID string, page store.Page) ([]store.Message, error) {
	page = page.Normalize()
	cursor, err := m.s.messages.Find(ctx,
		bson.M{"conversationId": conversationID},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip(int64(page.Skip())).
			SetLimit(int64(page.Limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	var window []store.Message
	if err := cursor.All(ctx, &window); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	// query is newest-first for the window; callers get oldest-first
	out := make([]store.Message, len(window))
	for i, msg := range window {
		out[len(window)-1-i] = msg
	}
	return out, nil
}

func (m messageStore) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	count, err := m.s.messages.CountDocuments(ctx, bson.M{"conversationId": conversationID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (m messageStore) CountUnread(ctx context.Context, userID string, conversationIDs []string) (int64, error) {
	count, err := m.s.messages.CountDocuments(ctx, bson.M{
		"conversationId": bson.M{"$in": conversationIDs},
		"sender":         bson.M{"$ne": userID},
		"deleted":        bson.M{"$ne": true},
		"readBy":         bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (m messageStore) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	res, err := m.s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "sender": requesterID},
		bson.M{"$set": bson.M{"deleted": true, "content": "", "mediaUrl": ""}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return false
}
