package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

type updateProfileRequest struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=3,max=20"`
	Bio      *string `json:"bio,omitempty" validate:"omitempty,max=200"`
	Avatar   *string `json:"profilePicture,omitempty" validate:"omitempty,url"`
}

// contact is one entry in the recent-chats listing: the other participant
// of a conversation plus its last-message summary.
type contact struct {
	User           *store.Profile     `json:"user"`
	ConversationID string             `json:"conversationId"`
	LastMessage    *store.LastMessage `json:"lastMessage,omitempty"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.stores.Profiles.Minimal(r.Context(), r.PathValue("userID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		a.logger.Error("failed to load profile", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := a.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.stores.Profiles.UpdateProfile(r.Context(), identity(r), req.Username, req.Bio, req.Avatar)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "Username is already taken")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			a.logger.Error("failed to update profile", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	profiles, err := a.stores.Profiles.Search(r.Context(), query, identity(r))
	if err != nil {
		a.logger.Error("failed to search users", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) handleGetContacts(w http.ResponseWriter, r *http.Request) {
	userID := identity(r)
	conversations, err := a.stores.Conversations.ListForUser(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to list conversations", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	contacts := lo.Map(conversations, func(conv store.Conversation, _ int) contact {
		return contact{
			User:           a.otherParticipant(r, conv, userID),
			ConversationID: conv.ID,
			LastMessage:    conv.LastMessage,
			UpdatedAt:      conv.UpdatedAt,
		}
	})
	writeJSON(w, http.StatusOK, contacts)
}

// otherParticipant resolves the peer's minimal profile; nil if the peer
// account no longer exists.
func (a *API) otherParticipant(r *http.Request, conv store.Conversation, userID string) *store.Profile {
	peer, ok := lo.Find(conv.Participants, func(p string) bool { return p != userID })
	if !ok {
		return nil
	}
	profile, err := a.stores.Profiles.Minimal(r.Context(), peer)
	if err != nil {
		return nil
	}
	return &profile
}
