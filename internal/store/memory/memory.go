// Package memory provides mutex-guarded in-process implementations of the
// store interfaces. It backs the "memory" store driver and the test suites.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

// Store holds all records behind one mutex. The three collaborator
// interfaces are exposed as views over it.
type Store struct {
	mu            sync.RWMutex
	users         map[string]store.User
	conversations map[string]store.Conversation
	messages      map[string]store.Message
}

func New() *Store {
	return &Store{
		users:         make(map[string]store.User),
		conversations: make(map[string]store.Conversation),
		messages:      make(map[string]store.Message),
	}
}

// Stores returns the store views bundled for wiring.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Messages:      s.Messages(),
		Conversations: s.Conversations(),
		Profiles:      s.Profiles(),
	}
}

func (s *Store) Messages() store.MessageStore           { return messageStore{s} }
func (s *Store) Conversations() store.ConversationStore { return conversationStore{s} }
func (s *Store) Profiles() store.ProfileStore           { return profileStore{s} }

// compile-time checks
var (
	_ store.MessageStore      = messageStore{}
	_ store.ConversationStore = conversationStore{}
	_ store.ProfileStore      = profileStore{}
)

// --- MessageStore ---

type messageStore struct{ s *Store }

func (m messageStore) Create(ctx context.Context, msg store.Message) (store.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	m.s.messages[msg.ID] = msg
	return msg, nil
}

func (m messageStore) MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var updated int64
	for _, id := range messageIDs {
		msg, ok := m.s.messages[id]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		// Self-authored messages are never marked read by their sender.
		if msg.Sender == readerID {
			continue
		}
		if containsString(msg.ReadBy, readerID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, readerID)
		m.s.messages[id] = msg
		updated++
	}
	return updated, nil
}

func (m messageStore) ListByConversation(ctx context.Context, conversationID string, page store.Page) ([]store.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	page = page.Normalize()
	all := m.s.conversationMessagesLocked(conversationID)
	// newest first for windowing, mirroring the mongo query
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	skip := page.Skip()
	if skip >= len(all) {
		return []store.Message{}, nil
	}
	end := skip + page.Limit
	if end > len(all) {
		end = len(all)
	}
	window := all[skip:end]

	// the window itself is returned oldest first
	out := make([]store.Message, len(window))
	for i, msg := range window {
		out[len(window)-1-i] = msg
	}
	return out, nil
}

func (m messageStore) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return int64(len(m.s.conversationMessagesLocked(conversationID))), nil
}

func (m messageStore) CountUnread(ctx context.Context, userID string, conversationIDs []string) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	wanted := make(map[string]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = true
	}
	var count int64
	for _, msg := range m.s.messages {
		if !wanted[msg.ConversationID] || msg.Sender == userID || msg.Deleted {
			continue
		}
		if !containsString(msg.ReadBy, userID) {
			count++
		}
	}
	return count, nil
}

func (m messageStore) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	msg, ok := m.s.messages[messageID]
	if !ok || msg.Sender != requesterID {
		return store.ErrNotFound
	}
	msg.Deleted = true
	msg.Content = ""
	msg.MediaURL = ""
	m.s.messages[messageID] = msg
	return nil
}

func (s *Store) conversationMessagesLocked(conversationID string) []store.Message {
	var out []store.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out
}

// --- ConversationStore ---

type conversationStore struct{ s *Store }

func (c conversationStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	conv, ok := c.s.conversations[conversationID]
	if !ok {
		return false, store.ErrNotFound
	}
	return containsString(conv.Participants, userID), nil
}

func (c conversationStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	conv, ok := c.s.conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]string, len(conv.Participants))
	copy(out, conv.Participants)
	return out, nil
}

func (c conversationStore) UpdateLastMessage(ctx context.Context, conversationID string, summary store.LastMessage) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	conv, ok := c.s.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	conv.LastMessage = &summary
	conv.UpdatedAt = time.Now()
	c.s.conversations[conversationID] = conv
	return nil
}

func (c conversationStore) Create(ctx context.Context, participants []string) (store.Conversation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	now := time.Now()
	conv := store.Conversation{
		ID:           uuid.NewString(),
		Participants: append([]string(nil), participants...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.s.conversations[conv.ID] = conv
	return conv, nil
}

func (c conversationStore) FindByID(ctx context.Context, conversationID string) (store.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	conv, ok := c.s.conversations[conversationID]
	if !ok {
		return store.Conversation{}, store.ErrNotFound
	}
	return conv, nil
}

func (c conversationStore) FindBetween(ctx context.Context, userA, userB string) (store.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	for _, conv := range c.s.conversations {
		if containsString(conv.Participants, userA) && containsString(conv.Participants, userB) {
			return conv, nil
		}
	}
	return store.Conversation{}, store.ErrNotFound
}

func (c conversationStore) ListForUser(ctx context.Context, userID string) ([]store.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var out []store.Conversation
	for _, conv := range c.s.conversations {
		if containsString(conv.Participants, userID) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// --- ProfileStore ---

type profileStore struct{ s *Store }

func (p profileStore) Minimal(ctx context.Context, userID string) (store.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	user, ok := p.s.users[userID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return profileOf(user), nil
}

func (p profileStore) MinimalMany(ctx context.Context, userIDs []string) ([]store.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	out := make([]store.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		if user, ok := p.s.users[id]; ok {
			out = append(out, profileOf(user))
		}
	}
	return out, nil
}

func (p profileStore) Create(ctx context.Context, user store.User) (store.User, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for _, existing := range p.s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return store.User{}, store.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	p.s.users[user.ID] = user
	return user, nil
}

func (p profileStore) FindByID(ctx context.Context, userID string) (store.User, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	user, ok := p.s.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (p profileStore) FindByUsername(ctx context.Context, username string) (store.User, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	for _, user := range p.s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (p profileStore) FindByEmail(ctx context.Context, email string) (store.User, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	for _, user := range p.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (p profileStore) UpdateProfile(ctx context.Context, userID string, username, bio, avatar *string) (store.User, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	user, ok := p.s.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	if username != nil {
		for id, other := range p.s.users {
			if id != userID && other.Username == *username {
				return store.User{}, store.ErrDuplicate
			}
		}
		user.Username = *username
	}
	if bio != nil {
		user.Bio = *bio
	}
	if avatar != nil {
		user.Avatar = *avatar
	}
	user.UpdatedAt = time.Now()
	p.s.users[userID] = user
	return user, nil
}

func (p profileStore) Search(ctx context.Context, query, excludeID string) ([]store.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []store.Profile
	for id, user := range p.s.users {
		if id == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), needle) {
			out = append(out, profileOf(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (p profileStore) SetOnline(ctx context.Context, userID string, online bool) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	user, ok := p.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Online = online
	user.LastSeen = time.Now()
	p.s.users[userID] = user
	return nil
}

func profileOf(u store.User) store.Profile {
	return store.Profile{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Online:   u.Online,
		LastSeen: u.LastSeen,
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
