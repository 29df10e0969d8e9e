package store

import "time"

// User is the durable account record. The realtime layer only ever sees the
// Profile projection.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password" json:"-"`
	Avatar       string    `bson:"avatar" json:"profilePicture"`
	Bio          string    `bson:"bio" json:"bio"`
	Online       bool      `bson:"isOnline" json:"isOnline"`
	LastSeen     time.Time `bson:"lastSeen" json:"lastSeen"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Profile is the minimal projection of a user exposed to other users.
type Profile struct {
	ID       string    `bson:"_id" json:"id"`
	Username string    `bson:"username" json:"username"`
	Avatar   string    `bson:"avatar" json:"profilePicture"`
	Online   bool      `bson:"isOnline" json:"isOnline"`
	LastSeen time.Time `bson:"lastSeen" json:"lastSeen"`
}

// LastMessage is the denormalized summary kept on a conversation.
type LastMessage struct {
	Sender   string    `bson:"sender" json:"sender"`
	Content  string    `bson:"content" json:"content"`
	MediaURL string    `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	Read     bool      `bson:"read" json:"read"`
	SentAt   time.Time `bson:"sentAt" json:"sentAt"`
}

// Conversation links exactly two participants in the 1:1 model.
type Conversation struct {
	ID           string       `bson:"_id" json:"id"`
	Participants []string     `bson:"participants" json:"participants"`
	LastMessage  *LastMessage `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	CreatedAt    time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// Message is a single chat message. ReadBy holds the ids of recipients that
// have acknowledged it; the sender is never added to it.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversationId" json:"conversationId"`
	Sender         string    `bson:"sender" json:"sender"`
	Content        string    `bson:"content" json:"content"`
	MediaURL       string    `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	ReadBy         []string  `bson:"readBy" json:"readBy"`
	Deleted        bool      `bson:"deleted" json:"deleted"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}

// Page describes an offset/limit window over a message history query.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 50
	}
	return p
}

func (p Page) Skip() int {
	return (p.Number - 1) * p.Limit
}
