package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

type createConversationRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content"`
	MediaURL       string `json:"mediaUrl"`
}

type conversationView struct {
	ID          string             `json:"id"`
	OtherUser   *store.Profile     `json:"otherUser"`
	LastMessage *store.LastMessage `json:"lastMessage,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

func (a *API) conversationView(r *http.Request, conv store.Conversation, userID string) conversationView {
	return conversationView{
		ID:          conv.ID,
		OtherUser:   a.otherParticipant(r, conv, userID),
		LastMessage: conv.LastMessage,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	conversations, err := a.stores.Conversations.ListForUser(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to list conversations", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, a.conversationView(r, conv, userID))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	conv, err := a.stores.Conversations.FindByID(r.Context(), r.PathValue("conversationID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		a.logger.Error("failed to load conversation", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if !containsParticipant(conv, userID) {
		writeError(w, http.StatusForbidden, "You are not a participant in this conversation")
		return
	}
	writeJSON(w, http.StatusOK, a.conversationView(r, conv, userID))
}

// handleCreateConversation is idempotent for a user pair: if a conversation
// between the two already exists it is returned instead of duplicated.
func (a *API) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	var req createConversationRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := a.stores.Profiles.FindByID(r.Context(), req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Receiver not found")
			return
		}
		a.logger.Error("failed to look up receiver", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if existing, err := a.stores.Conversations.FindBetween(r.Context(), userID, req.ReceiverID); err == nil {
		writeJSON(w, http.StatusOK, a.conversationView(r, existing, userID))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("failed to check existing conversation", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	conv, err := a.stores.Conversations.Create(r.Context(), []string{userID, req.ReceiverID})
	if err != nil {
		a.logger.Error("failed to create conversation", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusCreated, a.conversationView(r, conv, userID))
}

// handleGetMessages pages through a conversation's history and lazily marks
// the fetched peer messages as read; unread state for offline recipients is
// resolved here rather than by a delivery queue.
func (a *API) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	conversationID := r.PathValue("conversationID")

	conv, err := a.stores.Conversations.FindByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		a.logger.Error("failed to load conversation", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !containsParticipant(conv, userID) {
		writeError(w, http.StatusForbidden, "Not authorized to view these messages")
		return
	}

	page := store.Page{
		Number: queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 50),
	}
	messages, err := a.stores.Messages.ListByConversation(r.Context(), conversationID, page)
	if err != nil {
		a.logger.Error("failed to list messages", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	// lazily acknowledge what the client is about to render
	var unreadIDs []string
	for _, msg := range messages {
		if msg.Sender != userID {
			unreadIDs = append(unreadIDs, msg.ID)
		}
	}
	if len(unreadIDs) > 0 {
		if _, err := a.stores.Messages.MarkRead(r.Context(), conversationID, unreadIDs, userID); err != nil {
			a.logger.Warn("failed to mark fetched messages read", slog.Any("error", err))
		}
	}

	total, err := a.stores.Messages.CountByConversation(r.Context(), conversationID)
	if err != nil {
		a.logger.Error("failed to count messages", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	page = page.Normalize()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"pagination": pagination{
			Total: total,
			Page:  page.Number,
			Limit: page.Limit,
			Pages: (total + int64(page.Limit) - 1) / int64(page.Limit),
		},
	})
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	var req sendMessageRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Content == "" && req.MediaURL == "" {
		writeError(w, http.StatusBadRequest, "Conversation ID and content/media are required")
		return
	}

	ok, err := a.stores.Conversations.IsParticipant(r.Context(), req.ConversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		a.logger.Error("failed to check participant", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "Not authorized to send messages in this conversation")
		return
	}

	msg, err := a.stores.Messages.Create(r.Context(), store.Message{
		ConversationID: req.ConversationID,
		Sender:         userID,
		Content:        req.Content,
		MediaURL:       req.MediaURL,
	})
	if err != nil {
		a.logger.Error("failed to create message", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	summary := store.LastMessage{
		Sender:   userID,
		Content:  msg.Content,
		MediaURL: msg.MediaURL,
		SentAt:   msg.CreatedAt,
	}
	if err := a.stores.Conversations.UpdateLastMessage(r.Context(), req.ConversationID, summary); err != nil {
		a.logger.Warn("failed to update last-message summary", slog.Any("error", err))
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := a.stores.Messages.SoftDelete(r.Context(), r.PathValue("messageID"), identity(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		a.logger.Error("failed to delete message", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	conversations, err := a.stores.Conversations.ListForUser(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to list conversations", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	ids := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
	}
	count, err := a.stores.Messages.CountUnread(r.Context(), userID, ids)
	if err != nil {
		a.logger.Error("failed to count unread messages", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"unreadCount":   count,
		"conversations": len(conversations),
	})
}

func containsParticipant(conv store.Conversation, userID string) bool {
	for _, p := range conv.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
