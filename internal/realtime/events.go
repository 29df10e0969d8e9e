package realtime

import (
	"encoding/json"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

// EventType is the closed set of inbound protocol events. Anything else
// decodes to EventUnknown and is logged and ignored.
type EventType int

const (
	EventUnknown EventType = iota
	EventJoinConversations
	EventSendMessage
	EventTyping
	EventMarkAsRead
	EventGetOnlineUsers
)

func ParseEventType(s string) EventType {
	switch s {
	case "joinConversations":
		return EventJoinConversations
	case "sendMessage":
		return EventSendMessage
	case "typing":
		return EventTyping
	case "markAsRead":
		return EventMarkAsRead
	case "getOnlineUsers":
		return EventGetOnlineUsers
	default:
		return EventUnknown
	}
}

func (t EventType) String() string {
	switch t {
	case EventJoinConversations:
		return "joinConversations"
	case EventSendMessage:
		return "sendMessage"
	case EventTyping:
		return "typing"
	case EventMarkAsRead:
		return "markAsRead"
	case EventGetOnlineUsers:
		return "getOnlineUsers"
	default:
		return "unknown"
	}
}

// Inbound payloads. Fields sit at the top level of the frame next to "type",
// matching the wire format the web client already speaks.

type JoinConversationsEvent struct {
	ConversationIDs []string `json:"conversationIds"`
}

type SendMessageEvent struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	MediaURL       string `json:"mediaUrl,omitempty"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkAsReadEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// Outbound frames. Encode helpers swallow marshal errors: every payload
// below is a plain data struct that cannot fail to marshal.

type statusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type notificationPayload struct {
	ConversationID string        `json:"conversationId"`
	Message        store.Message `json:"message"`
}

type typingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type readPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReadBy         string   `json:"readBy"`
}

func encodeEnvelope(eventType string, data any) []byte {
	frame, _ := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: data})
	return frame
}

func encodeConnected(identity string) []byte {
	frame, _ := json.Marshal(struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}{Type: "connected", UserID: identity})
	return frame
}

func encodeUserStatus(identity string, online bool) []byte {
	status := "offline"
	if online {
		status = "online"
	}
	return encodeEnvelope("userStatus", statusPayload{UserID: identity, Status: status})
}

func encodeOnlineUsers(profiles []store.Profile) []byte {
	return encodeEnvelope("onlineUsers", profiles)
}

func encodeNewMessage(msg store.Message) []byte {
	return encodeEnvelope("newMessage", msg)
}

func encodeMessageNotification(conversationID string, msg store.Message) []byte {
	return encodeEnvelope("messageNotification", notificationPayload{
		ConversationID: conversationID,
		Message:        msg,
	})
}

func encodeUserTyping(identity, conversationID string, isTyping bool) []byte {
	return encodeEnvelope("userTyping", typingPayload{
		UserID:         identity,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
}

func encodeMessagesRead(conversationID string, messageIDs []string, readBy string) []byte {
	return encodeEnvelope("messagesRead", readPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
		ReadBy:         readBy,
	})
}

func encodeError(message string) []byte {
	frame, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "error", Message: message})
	return frame
}
