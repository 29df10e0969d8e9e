package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/KuldeepJha5176/chat-application/internal/api"
	"github.com/KuldeepJha5176/chat-application/internal/auth"
	"github.com/KuldeepJha5176/chat-application/internal/server/middleware"
	"github.com/KuldeepJha5176/chat-application/internal/store/memory"
	"github.com/KuldeepJha5176/chat-application/pkg/config"
)

const testSecret = "api-test-secret"

// newTestHandler wires the REST surface the same way the server does:
// public routes behind the metadata middleware, protected routes behind
// metadata plus token verification.
func newTestHandler(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	mem := memory.New()
	authCfg := config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour}
	restAPI := api.New(logger, mem.Stores(), authCfg)
	verifier := auth.NewVerifier(testSecret, mem.Profiles())

	mux := http.NewServeMux()
	for pattern, handler := range restAPI.PublicRoutes() {
		mux.Handle(pattern, middleware.Chain(handler, middleware.RequestMetadataMiddleware()))
	}
	for pattern, handler := range restAPI.ProtectedRoutes() {
		mux.Handle(pattern, middleware.Chain(handler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewAuthMiddleware(logger, verifier),
		))
	}
	return mux, mem
}

func doJSON(t *testing.T, h http.Handler, method, target, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// list endpoints return arrays; callers decode those from rec.Body
	decoded := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s returned invalid JSON: %v", method, target, err)
		}
	}
	return rec, decoded
}

// signup creates an account through the public endpoint and returns its
// token and user id.
func signup(t *testing.T, h http.Handler, username string) (token, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"username": %q, "email": %q, "password": "hunter22"}`, username, username+"@example.com")
	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/signup", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup for %s failed with %d: %s", username, rec.Code, rec.Body.String())
	}
	token, _ = resp["token"].(string)
	user, _ := resp["user"].(map[string]any)
	userID, _ = user["id"].(string)
	if token == "" || userID == "" {
		t.Fatalf("signup response missing token or user id: %v", resp)
	}
	return token, userID
}

func TestSignupAndSignin(t *testing.T) {
	h, _ := newTestHandler(t)
	signup(t, h, "alice")

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/signin", "",
		`{"username": "alice", "password": "hunter22"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin failed with %d: %s", rec.Code, rec.Body.String())
	}
	if resp["token"] == "" {
		t.Error("signin response missing token")
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/auth/signin", "",
		`{"username": "alice", "password": "wrong-password"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password should be 401, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/auth/signup", "",
		`{"username": "alice", "email": "other@example.com", "password": "hunter22"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate username should be 409, got %d", rec.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := map[string]string{
		"short username": `{"username": "ab", "email": "a@example.com", "password": "hunter22"}`,
		"bad email":      `{"username": "alice", "email": "nope", "password": "hunter22"}`,
		"short password": `{"username": "alice", "email": "a@example.com", "password": "abc"}`,
		"not json":       `{"username": `,
	}
	for name, body := range cases {
		rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/auth/signup", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token should be 401, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/auth/me", "garbage-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token should be 401, got %d", rec.Code)
	}
}

func TestMeResolvesTokenSubject(t *testing.T) {
	h, _ := newTestHandler(t)
	token, userID := signup(t, h, "alice")

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me failed with %d", rec.Code)
	}
	user, _ := resp["user"].(map[string]any)
	if user["id"] != userID || user["username"] != "alice" {
		t.Errorf("me returned wrong user: %v", user)
	}
}

func TestConversationLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	aliceToken, _ := signup(t, h, "alice")
	bobToken, bobID := signup(t, h, "bob")

	rec, created := doJSON(t, h, http.MethodPost, "/api/v1/chat/conversations", aliceToken,
		fmt.Sprintf(`{"receiverId": %q}`, bobID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create conversation failed with %d: %s", rec.Code, rec.Body.String())
	}
	convID, _ := created["id"].(string)
	if convID == "" {
		t.Fatalf("created conversation missing id: %v", created)
	}
	other, _ := created["otherUser"].(map[string]any)
	if other["username"] != "bob" {
		t.Errorf("conversation view names wrong peer: %v", other)
	}

	// creating again returns the existing conversation
	rec, again := doJSON(t, h, http.MethodPost, "/api/v1/chat/conversations", aliceToken,
		fmt.Sprintf(`{"receiverId": %q}`, bobID))
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat create should be 200, got %d", rec.Code)
	}
	if again["id"] != convID {
		t.Error("repeat create produced a second conversation")
	}

	// the other participant sees it in their list, with alice as the peer
	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/chat/conversations", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list conversations failed with %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode conversation list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation for bob, got %d", len(list))
	}
	peer, _ := list[0]["otherUser"].(map[string]any)
	if peer["username"] != "alice" {
		t.Errorf("bob's view names wrong peer: %v", peer)
	}

	// an outsider cannot read it
	carolToken, _ := signup(t, h, "carol")
	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/chat/conversations/"+convID, carolToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider read should be 403, got %d", rec.Code)
	}
}

func TestMessagesOverREST(t *testing.T) {
	h, _ := newTestHandler(t)
	aliceToken, _ := signup(t, h, "alice")
	bobToken, bobID := signup(t, h, "bob")

	_, created := doJSON(t, h, http.MethodPost, "/api/v1/chat/conversations", aliceToken,
		fmt.Sprintf(`{"receiverId": %q}`, bobID))
	convID, _ := created["id"].(string)

	rec, sent := doJSON(t, h, http.MethodPost, "/api/v1/chat/messages", aliceToken,
		fmt.Sprintf(`{"conversationId": %q, "content": "hello bob"}`, convID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message failed with %d: %s", rec.Code, rec.Body.String())
	}
	msgID, _ := sent["id"].(string)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/chat/messages", aliceToken,
		fmt.Sprintf(`{"conversationId": %q, "content": ""}`, convID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message should be 400, got %d", rec.Code)
	}

	// unread count before bob reads anything
	rec, unread := doJSON(t, h, http.MethodGet, "/api/v1/chat/unread", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unread count failed with %d", rec.Code)
	}
	if unread["unreadCount"].(float64) != 1 {
		t.Errorf("expected 1 unread message for bob, got %v", unread["unreadCount"])
	}

	// fetching the history marks it read
	rec, fetched := doJSON(t, h, http.MethodGet, "/api/v1/chat/conversations/"+convID+"/messages", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get messages failed with %d", rec.Code)
	}
	messages, _ := fetched["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message in history, got %d", len(messages))
	}
	_, unread = doJSON(t, h, http.MethodGet, "/api/v1/chat/unread", bobToken, "")
	if unread["unreadCount"].(float64) != 0 {
		t.Errorf("history fetch did not mark messages read, got %v", unread["unreadCount"])
	}

	// only the sender may delete
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/chat/messages/"+msgID, bobToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-sender delete should be 404, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/chat/messages/"+msgID, aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("sender delete failed with %d", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	h, _ := newTestHandler(t)
	annaToken, _ := signup(t, h, "anna")
	signup(t, h, "annabel")
	signup(t, h, "bob")

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/users/search", annaToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing query should be 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/search?query=ann", nil)
	req.Header.Set("Authorization", "Bearer "+annaToken)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("search failed with %d", recorder.Code)
	}
	var results []map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &results); err != nil {
		t.Fatalf("failed to decode search results: %v", err)
	}
	if len(results) != 1 || results[0]["username"] != "annabel" {
		t.Errorf("unexpected search results: %v", results)
	}
}

func TestUpdateProfile(t *testing.T) {
	h, _ := newTestHandler(t)
	token, _ := signup(t, h, "alice")
	signup(t, h, "bob")

	rec, updated := doJSON(t, h, http.MethodPut, "/api/v1/users/profile", token,
		`{"bio": "hello there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile failed with %d: %s", rec.Code, rec.Body.String())
	}
	if updated["bio"] != "hello there" || updated["username"] != "alice" {
		t.Errorf("partial update produced wrong profile: %v", updated)
	}

	rec, _ = doJSON(t, h, http.MethodPut, "/api/v1/users/profile", token,
		`{"username": "bob"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("taken username should be 400, got %d", rec.Code)
	}
}
