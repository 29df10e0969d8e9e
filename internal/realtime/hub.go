package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

// Hub owns the two cross-connection structures (registry and subscription
// manager) and implements presence broadcasting and message fan-out on top
// of them. Audience snapshots are taken under the structure locks; delivery
// happens after the locks are released.
type Hub struct {
	logger        *slog.Logger
	registry      *Registry
	subscriptions *SubscriptionManager
	stores        store.Stores
	storeTimeout  time.Duration
}

func NewHub(logger *slog.Logger, stores store.Stores, storeTimeout time.Duration) *Hub {
	return &Hub{
		logger:        logger.With(slog.String("component", "hub")),
		registry:      NewRegistry(),
		subscriptions: NewSubscriptionManager(),
		stores:        stores,
		storeTimeout:  storeTimeout,
	}
}

// Connect installs sink as identity's live connection and announces the
// online transition. The previous connection, if one was still registered,
// is superseded but left open; its own close event cleans it up.
func (h *Hub) Connect(ctx context.Context, identity string, sink Sink) {
	prev, replaced := h.registry.Register(identity, sink)
	h.subscriptions.Track(sink)

	if replaced {
		h.logger.Info("connection superseded by newer registration",
			slog.String("identity", identity),
			slog.String("oldConnID", prev.ID().String()),
			slog.String("newConnID", sink.ID().String()),
		)
	}

	h.mirrorPresence(ctx, identity, true)
	h.broadcastAll(encodeUserStatus(identity, true))
	sink.Send(encodeConnected(identity))
}

// Disconnect tears down a closed connection's state. Cleanup is keyed by
// connection handle: if the identity has already re-registered on a newer
// connection, only the stale subscription entry is dropped and no offline
// transition is announced.
func (h *Hub) Disconnect(ctx context.Context, identity string, connID uuid.UUID) {
	h.subscriptions.Clear(connID)

	if !h.registry.Unregister(identity, connID) {
		// stale registration, the newer connection owns the entry
		return
	}

	h.mirrorPresence(ctx, identity, false)
	h.broadcastAll(encodeUserStatus(identity, false))
}

// JoinConversations replaces the connection's subscription set.
func (h *Hub) JoinConversations(connID uuid.UUID, conversationIDs []string) {
	h.subscriptions.SetSubscriptions(connID, conversationIDs)
}

// SendMessage persists a message and fans it out in two tiers: newMessage
// to every live subscriber of the conversation, and messageNotification to
// online participants that have not joined the conversation on their
// current connection. The sender receives neither.
func (h *Hub) SendMessage(ctx context.Context, sender string, senderConnID uuid.UUID, ev SendMessageEvent) (store.Message, error) {
	if ev.Content == "" && ev.MediaURL == "" {
		return store.Message{}, ErrEmptyMessage
	}

	ok, err := h.isParticipant(ctx, ev.ConversationID, sender)
	if err != nil {
		return store.Message{}, err
	}
	if !ok {
		return store.Message{}, ErrNotAParticipant
	}

	// Durability first: nothing is fanned out unless persistence succeeds.
	msg, err := h.persistMessage(ctx, sender, ev)
	if err != nil {
		return store.Message{}, err
	}

	audience := h.subscriptions.SubscribersOf(ev.ConversationID)
	notified := make(map[uuid.UUID]bool, len(audience))
	frame := encodeNewMessage(msg)
	for _, sub := range audience {
		notified[sub.ID()] = true
		if sub.ID() == senderConnID {
			continue
		}
		sub.Send(frame)
	}

	participants, err := h.participants(ctx, ev.ConversationID)
	if err != nil {
		// The message is already persisted and broadcast to the room; a
		// failed participant read only costs the targeted notifications.
		h.logger.Error("failed to load participants for notification",
			slog.String("conversationId", ev.ConversationID), slog.Any("error", err))
		return msg, nil
	}

	notification := encodeMessageNotification(ev.ConversationID, msg)
	for _, participant := range participants {
		if participant == sender {
			continue
		}
		sink, online := h.registry.Lookup(participant)
		if !online || notified[sink.ID()] {
			continue
		}
		sink.Send(notification)
	}
	return msg, nil
}

// Typing broadcasts an ephemeral typing indicator to the conversation's
// subscribers, excluding the sender's own connection. Nothing is persisted
// and nothing is retried.
func (h *Hub) Typing(sender string, senderConnID uuid.UUID, ev TypingEvent) {
	frame := encodeUserTyping(sender, ev.ConversationID, ev.IsTyping)
	for _, sub := range h.subscriptions.SubscribersOf(ev.ConversationID) {
		if sub.ID() == senderConnID {
			continue
		}
		sub.Send(frame)
	}
}

// MarkAsRead records read receipts and broadcasts them to every subscriber,
// the requester included so all their clients converge.
func (h *Hub) MarkAsRead(ctx context.Context, reader string, ev MarkAsReadEvent) error {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	if _, err := h.stores.Messages.MarkRead(storeCtx, ev.ConversationID, ev.MessageIDs, reader); err != nil {
		return h.mapStoreErr(err)
	}

	frame := encodeMessagesRead(ev.ConversationID, ev.MessageIDs, reader)
	for _, sub := range h.subscriptions.SubscribersOf(ev.ConversationID) {
		sub.Send(frame)
	}
	return nil
}

// OnlineUsers resolves the current roster to minimal profiles. Membership
// comes from the registry; profile fields come from the store and may lag.
func (h *Hub) OnlineUsers(ctx context.Context) ([]store.Profile, error) {
	identities := h.registry.OnlineIdentities()
	if len(identities) == 0 {
		return []store.Profile{}, nil
	}

	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	profiles, err := h.stores.Profiles.MinimalMany(storeCtx, identities)
	if err != nil {
		return nil, h.mapStoreErr(err)
	}
	// The registry, not the mirrored flag, decides who is online.
	return lo.Map(profiles, func(p store.Profile, _ int) store.Profile {
		p.Online = true
		return p
	}), nil
}

// CloseAll force-closes every registered connection. Used during shutdown.
func (h *Hub) CloseAll(reason error) {
	for _, sink := range h.registry.Sinks() {
		sink.Close(reason)
	}
}

func (h *Hub) isParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	ok, err := h.stores.Conversations.IsParticipant(storeCtx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, h.mapStoreErr(err)
	}
	return ok, nil
}

func (h *Hub) participants(ctx context.Context, conversationID string) ([]string, error) {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	out, err := h.stores.Conversations.Participants(storeCtx, conversationID)
	if err != nil {
		return nil, h.mapStoreErr(err)
	}
	return out, nil
}

func (h *Hub) persistMessage(ctx context.Context, sender string, ev SendMessageEvent) (store.Message, error) {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	msg, err := h.stores.Messages.Create(storeCtx, store.Message{
		ConversationID: ev.ConversationID,
		Sender:         sender,
		Content:        ev.Content,
		MediaURL:       ev.MediaURL,
	})
	if err != nil {
		return store.Message{}, h.mapStoreErr(err)
	}

	summary := store.LastMessage{
		Sender:   sender,
		Content:  msg.Content,
		MediaURL: msg.MediaURL,
		SentAt:   msg.CreatedAt,
	}
	if err := h.stores.Conversations.UpdateLastMessage(storeCtx, ev.ConversationID, summary); err != nil {
		// The message itself is durable; the summary is denormalized and
		// will be corrected by the next message.
		h.logger.Error("failed to update last-message summary",
			slog.String("conversationId", ev.ConversationID), slog.Any("error", err))
	}
	return msg, nil
}

func (h *Hub) mirrorPresence(ctx context.Context, identity string, online bool) {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	if err := h.stores.Profiles.SetOnline(storeCtx, identity, online); err != nil {
		h.logger.Warn("failed to mirror presence to store",
			slog.String("identity", identity), slog.Any("error", err))
	}
}

func (h *Hub) broadcastAll(frame []byte) {
	for _, sink := range h.registry.Sinks() {
		sink.Send(frame)
	}
}

func (h *Hub) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.storeTimeout)
}

func (h *Hub) mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreTimeout
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}
