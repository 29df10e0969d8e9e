package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/KuldeepJha5176/chat-application/internal/realtime"
	"github.com/KuldeepJha5176/chat-application/internal/store"
	"github.com/KuldeepJha5176/chat-application/internal/store/memory"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type hubFixture struct {
	hub *realtime.Hub
	mem *memory.Store
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	mem := memory.New()
	return &hubFixture{
		hub: realtime.NewHub(newTestLogger(), mem.Stores(), time.Second),
		mem: mem,
	}
}

func (f *hubFixture) seedUser(t *testing.T, id, username string) {
	t.Helper()
	_, err := f.mem.Profiles().Create(context.Background(), store.User{
		ID:       id,
		Username: username,
		Email:    username + "@example.com",
	})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

func (f *hubFixture) seedConversation(t *testing.T, participants ...string) string {
	t.Helper()
	conv, err := f.mem.Conversations().Create(context.Background(), participants)
	if err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
	return conv.ID
}

// connect registers a fake connection for the identity and returns it.
func (f *hubFixture) connect(identity string) *fakeSink {
	sink := newFakeSink()
	f.hub.Connect(context.Background(), identity, sink)
	return sink
}

func TestSendMessageTwoTierDelivery(t *testing.T) {
	f := newHubFixture(t)
	for _, u := range []string{"sender", "x", "y", "z", "offline"} {
		f.seedUser(t, u, u)
	}
	convID := f.seedConversation(t, "sender", "x", "y", "z", "offline")

	senderConn := f.connect("sender")
	xConn := f.connect("x")
	yConn := f.connect("y")
	zConn := f.connect("z") // online but never joins the room

	f.hub.JoinConversations(senderConn.ID(), []string{convID})
	f.hub.JoinConversations(xConn.ID(), []string{convID})
	f.hub.JoinConversations(yConn.ID(), []string{convID})

	msg, err := f.hub.SendMessage(context.Background(), "sender", senderConn.ID(), realtime.SendMessageEvent{
		ConversationID: convID,
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID == "" || msg.Sender != "sender" {
		t.Fatalf("persisted message is incomplete: %+v", msg)
	}

	// subscribers get the room broadcast, nothing else
	for _, sub := range []*fakeSink{xConn, yConn} {
		if sub.countType(t, "newMessage") != 1 {
			t.Errorf("subscriber missing newMessage broadcast")
		}
		if sub.countType(t, "messageNotification") != 0 {
			t.Errorf("subscriber double-delivered via notification")
		}
	}

	// the online, unsubscribed participant gets only the targeted notification
	if zConn.countType(t, "messageNotification") != 1 {
		t.Error("online unsubscribed participant missing messageNotification")
	}
	if zConn.countType(t, "newMessage") != 0 {
		t.Error("unsubscribed participant received the room broadcast")
	}

	// the sender receives neither
	if senderConn.countType(t, "newMessage") != 0 || senderConn.countType(t, "messageNotification") != 0 {
		t.Error("sender received its own message back")
	}
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "member", "member")
	f.seedUser(t, "outsider", "outsider")
	convID := f.seedConversation(t, "member", "someone-else")

	conn := f.connect("outsider")
	_, err := f.hub.SendMessage(context.Background(), "outsider", conn.ID(), realtime.SendMessageEvent{
		ConversationID: convID,
		Content:        "let me in",
	})
	if !errors.Is(err, realtime.ErrNotAParticipant) {
		t.Fatalf("expected ErrNotAParticipant, got %v", err)
	}
}

func TestSendMessageRejectsEmptyPayload(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "u1", "u1")
	convID := f.seedConversation(t, "u1", "u2")
	conn := f.connect("u1")

	_, err := f.hub.SendMessage(context.Background(), "u1", conn.ID(), realtime.SendMessageEvent{
		ConversationID: convID,
	})
	if !errors.Is(err, realtime.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

// failingMessages simulates a broken persistence collaborator.
type failingMessages struct {
	store.MessageStore
	err error
}

func (f failingMessages) Create(ctx context.Context, msg store.Message) (store.Message, error) {
	return store.Message{}, f.err
}

func TestSendMessagePersistenceFailureAbortsFanout(t *testing.T) {
	mem := memory.New()
	stores := mem.Stores()
	stores.Messages = failingMessages{MessageStore: stores.Messages, err: errors.New("disk on fire")}
	hub := realtime.NewHub(newTestLogger(), stores, time.Second)

	seedCtx := context.Background()
	mem.Profiles().Create(seedCtx, store.User{ID: "u1", Username: "u1", Email: "u1@example.com"})
	mem.Profiles().Create(seedCtx, store.User{ID: "u2", Username: "u2", Email: "u2@example.com"})
	conv, _ := mem.Conversations().Create(seedCtx, []string{"u1", "u2"})

	senderConn := newFakeSink()
	peerConn := newFakeSink()
	hub.Connect(seedCtx, "u1", senderConn)
	hub.Connect(seedCtx, "u2", peerConn)
	hub.JoinConversations(peerConn.ID(), []string{conv.ID})

	_, err := hub.SendMessage(seedCtx, "u1", senderConn.ID(), realtime.SendMessageEvent{
		ConversationID: conv.ID,
		Content:        "will not survive",
	})
	if !errors.Is(err, realtime.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}

	if peerConn.countType(t, "newMessage") != 0 || peerConn.countType(t, "messageNotification") != 0 {
		t.Error("fan-out happened despite persistence failure")
	}
}

func TestTypingNeverEchoesToSender(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "u1", "u1")
	f.seedUser(t, "u2", "u2")
	convID := f.seedConversation(t, "u1", "u2")

	senderConn := f.connect("u1")
	peerConn := f.connect("u2")
	f.hub.JoinConversations(senderConn.ID(), []string{convID})
	f.hub.JoinConversations(peerConn.ID(), []string{convID})

	f.hub.Typing("u1", senderConn.ID(), realtime.TypingEvent{ConversationID: convID, IsTyping: true})

	if peerConn.countType(t, "userTyping") != 1 {
		t.Error("peer missing typing indicator")
	}
	if senderConn.countType(t, "userTyping") != 0 {
		t.Error("typing indicator echoed to sender")
	}

	raw := peerConn.lastOfType(t, "userTyping")
	var frame struct {
		Data struct {
			UserID         string `json:"userId"`
			ConversationID string `json:"conversationId"`
			IsTyping       bool   `json:"isTyping"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to decode typing frame: %v", err)
	}
	if frame.Data.UserID != "u1" || frame.Data.ConversationID != convID || !frame.Data.IsTyping {
		t.Errorf("typing payload wrong: %+v", frame.Data)
	}
}

func TestMarkAsReadExcludesOwnMessagesAndBroadcastsToAll(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "u1", "u1")
	f.seedUser(t, "u2", "u2")
	convID := f.seedConversation(t, "u1", "u2")

	ctx := context.Background()
	ownMsg, _ := f.mem.Messages().Create(ctx, store.Message{ConversationID: convID, Sender: "u1", Content: "mine"})
	peerMsg, _ := f.mem.Messages().Create(ctx, store.Message{ConversationID: convID, Sender: "u2", Content: "theirs"})

	readerConn := f.connect("u1")
	peerConn := f.connect("u2")
	f.hub.JoinConversations(readerConn.ID(), []string{convID})
	f.hub.JoinConversations(peerConn.ID(), []string{convID})

	err := f.hub.MarkAsRead(ctx, "u1", realtime.MarkAsReadEvent{
		ConversationID: convID,
		MessageIDs:     []string{ownMsg.ID, peerMsg.ID},
	})
	if err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}

	// self-authored messages stay unread by their author
	unread, _ := f.mem.Messages().CountUnread(ctx, "u2", []string{convID})
	if unread != 1 {
		t.Errorf("expected u1's own message to stay unread for read-state purposes, unread=%d", unread)
	}
	unread, _ = f.mem.Messages().CountUnread(ctx, "u1", []string{convID})
	if unread != 0 {
		t.Errorf("peer message should be read for u1, unread=%d", unread)
	}

	// the read receipt reaches every subscriber, requester included
	if readerConn.countType(t, "messagesRead") != 1 {
		t.Error("requester missing messagesRead broadcast")
	}
	if peerConn.countType(t, "messagesRead") != 1 {
		t.Error("peer missing messagesRead broadcast")
	}
}

func TestPresenceBroadcastLifecycle(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "watcher", "watcher")
	f.seedUser(t, "flapper", "flapper")

	watcherConn := f.connect("watcher")

	flapperConn := f.connect("flapper")
	f.hub.JoinConversations(flapperConn.ID(), []string{"c1"})

	if got := statusBroadcasts(t, watcherConn, "flapper", "online"); got != 1 {
		t.Fatalf("expected exactly 1 online broadcast, got %d", got)
	}

	f.hub.Disconnect(context.Background(), "flapper", flapperConn.ID())
	if got := statusBroadcasts(t, watcherConn, "flapper", "offline"); got != 1 {
		t.Fatalf("expected exactly 1 offline broadcast, got %d", got)
	}

	// disconnect must drop the subscription too: a typing broadcast in c1
	// may no longer reach the closed connection
	f.hub.JoinConversations(watcherConn.ID(), []string{"c1"})
	f.hub.Typing("watcher", watcherConn.ID(), realtime.TypingEvent{ConversationID: "c1", IsTyping: true})
	if flapperConn.countType(t, "userTyping") != 0 {
		t.Error("disconnect left subscriptions behind")
	}

	// reconnect announces online exactly once more
	f.connect("flapper")
	if got := statusBroadcasts(t, watcherConn, "flapper", "online"); got != 2 {
		t.Fatalf("expected a second online broadcast after reconnect, got %d", got)
	}
}

func TestStaleDisconnectDoesNotAnnounceOffline(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "watcher", "watcher")
	f.seedUser(t, "mover", "mover")

	watcherConn := f.connect("watcher")
	oldConn := f.connect("mover")
	f.connect("mover") // reconnect supersedes oldConn

	f.hub.Disconnect(context.Background(), "mover", oldConn.ID())

	if got := statusBroadcasts(t, watcherConn, "mover", "offline"); got != 0 {
		t.Fatalf("stale disconnect produced %d offline broadcasts", got)
	}

	profiles, err := f.hub.OnlineUsers(context.Background())
	if err != nil {
		t.Fatalf("OnlineUsers failed: %v", err)
	}
	stillOnline := false
	for _, p := range profiles {
		if p.ID == "mover" {
			stillOnline = true
		}
	}
	if !stillOnline {
		t.Error("stale disconnect evicted the newer registration")
	}
}

func TestOnlineUsersRoster(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "u1", "alice")
	f.seedUser(t, "u2", "bob")
	f.seedUser(t, "u3", "carol")

	f.connect("u1")
	f.connect("u2")
	// u3 stays offline

	profiles, err := f.hub.OnlineUsers(context.Background())
	if err != nil {
		t.Fatalf("OnlineUsers failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 online profiles, got %d", len(profiles))
	}
	for _, p := range profiles {
		if p.ID == "u3" {
			t.Error("offline user appeared in the roster")
		}
		if !p.Online {
			t.Errorf("roster entry %s not flagged online", p.ID)
		}
	}
}

func TestSendMessageNotificationPayload(t *testing.T) {
	f := newHubFixture(t)
	f.seedUser(t, "u1", "u1")
	f.seedUser(t, "u2", "u2")
	convID := f.seedConversation(t, "u1", "u2")

	senderConn := f.connect("u1")
	peerConn := f.connect("u2") // online, has not joined the conversation
	f.hub.JoinConversations(senderConn.ID(), []string{convID})

	if _, err := f.hub.SendMessage(context.Background(), "u1", senderConn.ID(), realtime.SendMessageEvent{
		ConversationID: convID,
		Content:        "hi",
	}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	raw := peerConn.lastOfType(t, "messageNotification")
	if raw == nil {
		t.Fatal("peer missing messageNotification")
	}
	var frame struct {
		Data struct {
			ConversationID string `json:"conversationId"`
			Message        struct {
				Sender  string `json:"sender"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to decode notification frame: %v", err)
	}
	if frame.Data.ConversationID != convID {
		t.Errorf("notification carries wrong conversation: %q", frame.Data.ConversationID)
	}
	if frame.Data.Message.Sender != "u1" || frame.Data.Message.Content != "hi" {
		t.Errorf("notification message wrong: %+v", frame.Data.Message)
	}
	if peerConn.countType(t, "newMessage") != 0 {
		t.Error("unjoined peer received the room broadcast")
	}
	if senderConn.countType(t, "newMessage") != 0 || senderConn.countType(t, "messageNotification") != 0 {
		t.Error("sender received fan-out for its own message")
	}
}

// statusBroadcasts counts userStatus frames for an identity+status pair.
func statusBroadcasts(t *testing.T, sink *fakeSink, identity, status string) int {
	t.Helper()
	sink.mu.Lock()
	defer sink.mu.Unlock()

	count := 0
	for _, raw := range sink.frames {
		var frame struct {
			Type string `json:"type"`
			Data struct {
				UserID string `json:"userId"`
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("captured frame is not valid JSON: %v", err)
		}
		if frame.Type == "userStatus" && frame.Data.UserID == identity && frame.Data.Status == status {
			count++
		}
	}
	return count
}
