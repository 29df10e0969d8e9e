package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/KuldeepJha5176/chat-application/internal/api"
	"github.com/KuldeepJha5176/chat-application/internal/auth"
	"github.com/KuldeepJha5176/chat-application/internal/realtime"
	"github.com/KuldeepJha5176/chat-application/internal/server/middleware"
	"github.com/KuldeepJha5176/chat-application/internal/store"
	"github.com/KuldeepJha5176/chat-application/pkg/config"
	"github.com/KuldeepJha5176/chat-application/pkg/transport"
)

type App struct {
	logger   *slog.Logger
	hub      *realtime.Hub
	verifier *auth.Verifier
	wg       sync.WaitGroup
	http     *http.Server
	config   *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, stores store.Stores) *App {
	verifier := auth.NewVerifier(cfg.Server.Auth.JWTSecret, stores.Profiles)
	hub := realtime.NewHub(logger, stores, cfg.Store.Timeout)

	app := &App{
		logger:   logger,
		hub:      hub,
		verifier: verifier,
		config:   cfg,
		ctx:      rootCtx,
	}

	mux := http.NewServeMux()

	authChain := []middleware.Middleware{
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewAuthMiddleware(logger, verifier),
	}

	mux.Handle("/ws", middleware.Chain(http.HandlerFunc(app.upgradeHandler), authChain...))

	restAPI := api.New(logger, stores, cfg.Server.Auth)
	for pattern, handler := range restAPI.PublicRoutes() {
		mux.Handle(pattern, middleware.Chain(handler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
		))
	}
	for pattern, handler := range restAPI.ProtectedRoutes() {
		mux.Handle(pattern, middleware.Chain(handler, authChain...))
	}

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

// upgradeHandler runs after the auth middleware, so the identity in the
// request metadata is already verified. It owns the connection's lifecycle
// from transport accept to session close.
func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		a.ctx,
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			WriteTimeout: a.config.Transport.WriteTimeout,
		},
		a.logger,
	)

	session := realtime.NewSession(a.hub, conn, a.logger)
	session.Authenticate(reqMeta.UserID)
	conn.SetOnMessageHandler(session.HandleFrame)
	conn.SetOnCloseHandler(session.HandleClose)

	if err := session.Activate(r.Context()); err != nil {
		connLogger.Error("Failed to activate session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	a.hub.CloseAll(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
