// Package store defines the persistence collaborators consumed by the
// realtime hub and the REST layer. Implementations live in the memory and
// mongo subpackages.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate record")
)

type MessageStore interface {
	// Create persists a new message and returns it with id and timestamp set.
	Create(ctx context.Context, msg Message) (Message, error)
	// MarkRead adds readerID to the readBy set of the given messages,
	// skipping any message authored by readerID. Returns the number of
	// messages updated.
	MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (int64, error)
	// ListByConversation returns one page of messages in chronological order
	// (oldest first within the page).
	ListByConversation(ctx context.Context, conversationID string, page Page) ([]Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int64, error)
	// CountUnread counts messages in the given conversations that were not
	// sent by userID and that userID has not read.
	CountUnread(ctx context.Context, userID string, conversationIDs []string) (int64, error)
	// SoftDelete marks a message deleted and blanks its content. Only the
	// sender may delete; ErrNotFound if the message does not exist.
	SoftDelete(ctx context.Context, messageID, requesterID string) error
}

type ConversationStore interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]string, error)
	UpdateLastMessage(ctx context.Context, conversationID string, summary LastMessage) error
	Create(ctx context.Context, participants []string) (Conversation, error)
	FindByID(ctx context.Context, conversationID string) (Conversation, error)
	// FindBetween returns the existing 1:1 conversation between two users,
	// or ErrNotFound.
	FindBetween(ctx context.Context, userA, userB string) (Conversation, error)
	// ListForUser returns the user's conversations, most recently updated
	// first.
	ListForUser(ctx context.Context, userID string) ([]Conversation, error)
}

type ProfileStore interface {
	Minimal(ctx context.Context, userID string) (Profile, error)
	// MinimalMany resolves profiles in one batch; unknown ids are omitted
	// from the result.
	MinimalMany(ctx context.Context, userIDs []string) ([]Profile, error)
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, userID string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpdateProfile(ctx context.Context, userID string, username, bio, avatar *string) (User, error)
	// Search matches usernames case-insensitively, excluding excludeID.
	Search(ctx context.Context, query, excludeID string) ([]Profile, error)
	// SetOnline mirrors the in-memory presence state for durability. The
	// registry remains the source of truth while the process is up.
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Stores bundles the three collaborators a fully wired process needs.
type Stores struct {
	Messages      MessageStore
	Conversations ConversationStore
	Profiles      ProfileStore
}
