// Package api implements the REST surface: signup/signin, profile CRUD,
// user search, and conversation/message persistence reads. The realtime
// engine lives in internal/realtime; everything here is thin store-backed
// request handling.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/KuldeepJha5176/chat-application/internal/server/middleware"
	"github.com/KuldeepJha5176/chat-application/internal/store"
	"github.com/KuldeepJha5176/chat-application/pkg/config"
)

type API struct {
	logger   *slog.Logger
	stores   store.Stores
	authCfg  config.AuthConfig
	validate *validator.Validate
}

func New(logger *slog.Logger, stores store.Stores, authCfg config.AuthConfig) *API {
	return &API{
		logger:   logger.With(slog.String("component", "api")),
		stores:   stores,
		authCfg:  authCfg,
		validate: validator.New(),
	}
}

// PublicRoutes are mounted without the auth middleware.
func (a *API) PublicRoutes() map[string]http.Handler {
	return map[string]http.Handler{
		"POST /api/v1/auth/signup": http.HandlerFunc(a.handleSignup),
		"POST /api/v1/auth/signin": http.HandlerFunc(a.handleSignin),
	}
}

// ProtectedRoutes require a verified identity in the request metadata.
func (a *API) ProtectedRoutes() map[string]http.Handler {
	return map[string]http.Handler{
		"GET /api/v1/auth/me":      http.HandlerFunc(a.handleMe),
		"POST /api/v1/auth/logout": http.HandlerFunc(a.handleLogout),

		"GET /api/v1/users/profile/{userID}": http.HandlerFunc(a.handleGetProfile),
		"PUT /api/v1/users/profile":          http.HandlerFunc(a.handleUpdateProfile),
		"GET /api/v1/users/search":           http.HandlerFunc(a.handleSearchUsers),
		"GET /api/v1/users/contacts":         http.HandlerFunc(a.handleGetContacts),

		"GET /api/v1/chat/conversations":                               http.HandlerFunc(a.handleListConversations),
		"POST /api/v1/chat/conversations":                              http.HandlerFunc(a.handleCreateConversation),
		"GET /api/v1/chat/conversations/{conversationID}":              http.HandlerFunc(a.handleGetConversation),
		"GET /api/v1/chat/conversations/{conversationID}/messages":     http.HandlerFunc(a.handleGetMessages),
		"POST /api/v1/chat/messages":                                   http.HandlerFunc(a.handleSendMessage),
		"DELETE /api/v1/chat/messages/{messageID}":                     http.HandlerFunc(a.handleDeleteMessage),
		"GET /api/v1/chat/unread":                                      http.HandlerFunc(a.handleUnreadCount),
	}
}

// identity returns the verified user id stamped by the auth middleware.
func identity(r *http.Request) string {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		return ""
	}
	return reqMeta.UserID
}

func (a *API) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
