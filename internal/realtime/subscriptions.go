package realtime

import (
	"sync"

	"github.com/google/uuid"
)

type subscriber struct {
	sink          Sink
	conversations map[string]struct{}
}

// SubscriptionManager tracks which conversations each connection has
// joined. A reverse index keyed by conversation id makes SubscribersOf a
// lookup instead of a scan over every connection.
type SubscriptionManager struct {
	mu             sync.RWMutex
	byConn         map[uuid.UUID]*subscriber
	byConversation map[string]map[uuid.UUID]Sink
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		byConn:         make(map[uuid.UUID]*subscriber),
		byConversation: make(map[string]map[uuid.UUID]Sink),
	}
}

// Track creates an empty subscription entry for a newly registered
// connection.
func (m *SubscriptionManager) Track(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byConn[sink.ID()] = &subscriber{
		sink:          sink,
		conversations: make(map[string]struct{}),
	}
}

// SetSubscriptions replaces the connection's subscribed set wholesale; the
// previous set is discarded, not merged. A no-op for untracked connections
// (the connection already disconnected).
func (m *SubscriptionManager) SetSubscriptions(connID uuid.UUID, conversationIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byConn[connID]
	if !ok {
		return
	}

	for conversationID := range sub.conversations {
		m.dropFromIndexLocked(conversationID, connID)
	}
	sub.conversations = make(map[string]struct{}, len(conversationIDs))

	for _, conversationID := range conversationIDs {
		sub.conversations[conversationID] = struct{}{}
		index, ok := m.byConversation[conversationID]
		if !ok {
			index = make(map[uuid.UUID]Sink)
			m.byConversation[conversationID] = index
		}
		index[connID] = sub.sink
	}
}

// SubscribersOf returns a snapshot of the connections currently subscribed
// to the conversation.
func (m *SubscriptionManager) SubscribersOf(conversationID string) []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := m.byConversation[conversationID]
	out := make([]Sink, 0, len(index))
	for _, sink := range index {
		out = append(out, sink)
	}
	return out
}

// IsSubscribed reports whether the connection has joined the conversation.
func (m *SubscriptionManager) IsSubscribed(conversationID string, connID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index, ok := m.byConversation[conversationID]
	if !ok {
		return false
	}
	_, ok = index[connID]
	return ok
}

// Clear drops the connection's subscription entry entirely. Called on
// disconnect, atomically with the registry cleanup.
func (m *SubscriptionManager) Clear(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byConn[connID]
	if !ok {
		return
	}
	for conversationID := range sub.conversations {
		m.dropFromIndexLocked(conversationID, connID)
	}
	delete(m.byConn, connID)
}

func (m *SubscriptionManager) dropFromIndexLocked(conversationID string, connID uuid.UUID) {
	index, ok := m.byConversation[conversationID]
	if !ok {
		return
	}
	delete(index, connID)
	if len(index) == 0 {
		delete(m.byConversation, conversationID)
	}
}
