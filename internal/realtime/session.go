package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// sessionState is the per-connection protocol state machine.
//
//	Connecting -> Authenticated -> Active -> Closed
//
// Connecting covers the transport accept; Authenticated is entered once the
// token verifier has resolved an identity; Active is the receive loop;
// Closed is terminal and triggers registry/subscription cleanup exactly
// once.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateActive
	stateClosed
)

// Session binds one authenticated connection to the hub and runs its event
// loop. Events are handled sequentially in arrival order; a handler failure
// is reported back on the same connection and never ends the loop.
type Session struct {
	hub      *Hub
	identity string
	sink     Sink
	logger   *slog.Logger

	mu    sync.Mutex
	state sessionState
}

// NewSession creates a session in the Connecting state for a connection
// whose transport has been accepted but not yet authenticated.
func NewSession(hub *Hub, sink Sink, logger *slog.Logger) *Session {
	return &Session{
		hub:    hub,
		sink:   sink,
		logger: logger.With(slog.String("component", "session"), slog.String("connID", sink.ID().String())),
		state:  stateConnecting,
	}
}

// Authenticate records the identity resolved by the token verifier and
// moves the session to Authenticated. Must precede Activate.
func (s *Session) Authenticate(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateConnecting {
		return
	}
	s.identity = identity
	s.logger = s.logger.With(slog.String("identity", identity))
	s.state = stateAuthenticated
}

// Activate registers the connection with the hub (announcing presence) and
// opens the receive loop.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateAuthenticated {
		s.mu.Unlock()
		return errors.New("session is not authenticated")
	}
	s.state = stateActive
	s.mu.Unlock()

	s.hub.Connect(ctx, s.identity, s.sink)
	return nil
}

// Identity returns the identity bound at authentication.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// HandleFrame decodes and dispatches one inbound frame. Wired as the
// transport's message callback, so frames arrive one at a time per
// connection.
func (s *Session) HandleFrame(ctx context.Context, connID uuid.UUID, raw []byte) {
	s.mu.Lock()
	active := s.state == stateActive
	s.mu.Unlock()
	if !active {
		return
	}

	if !gjson.ValidBytes(raw) {
		s.logger.Warn("discarding malformed frame")
		s.sink.Send(encodeError(ErrMalformedEvent.Error()))
		return
	}

	eventType := ParseEventType(gjson.GetBytes(raw, "type").String())
	if err := s.dispatch(ctx, connID, eventType, raw); err != nil {
		s.logger.Warn("event handler failed",
			slog.String("event", eventType.String()), slog.Any("error", err))
		s.sink.Send(encodeError(err.Error()))
	}
}

func (s *Session) dispatch(ctx context.Context, connID uuid.UUID, eventType EventType, raw []byte) error {
	switch eventType {
	case EventJoinConversations:
		var ev JoinConversationsEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return ErrMalformedEvent
		}
		s.hub.JoinConversations(connID, ev.ConversationIDs)
		return nil

	case EventSendMessage:
		var ev SendMessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return ErrMalformedEvent
		}
		_, err := s.hub.SendMessage(ctx, s.identity, connID, ev)
		return err

	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return ErrMalformedEvent
		}
		s.hub.Typing(s.identity, connID, ev)
		return nil

	case EventMarkAsRead:
		var ev MarkAsReadEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return ErrMalformedEvent
		}
		return s.hub.MarkAsRead(ctx, s.identity, ev)

	case EventGetOnlineUsers:
		profiles, err := s.hub.OnlineUsers(ctx)
		if err != nil {
			return err
		}
		s.sink.Send(encodeOnlineUsers(profiles))
		return nil

	case EventUnknown:
		// not fatal, the client may be newer than the server
		s.logger.Warn("ignoring unknown event type",
			slog.String("type", gjson.GetBytes(raw, "type").String()))
		return nil

	default:
		return nil
	}
}

// HandleClose moves the session to Closed and tears down its hub state.
// Wired as the transport's close callback; safe against duplicate calls.
func (s *Session) HandleClose(connID uuid.UUID, err error) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == stateActive
	s.state = stateClosed
	s.mu.Unlock()

	s.logger.Debug("session closed", slog.Any("reason", err))
	if wasActive {
		s.hub.Disconnect(context.Background(), s.identity, connID)
	}
}
