package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KuldeepJha5176/chat-application/internal/server"
	"github.com/KuldeepJha5176/chat-application/internal/store"
	"github.com/KuldeepJha5176/chat-application/internal/store/memory"
	"github.com/KuldeepJha5176/chat-application/internal/store/mongo"
	"github.com/KuldeepJha5176/chat-application/pkg/config"
	"github.com/KuldeepJha5176/chat-application/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := openStores(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	app := server.NewApp(logger, ctx, cfg, stores)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

func openStores(ctx context.Context, logger *slog.Logger, cfg *config.Config) (store.Stores, func(), error) {
	switch cfg.Store.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mongoStore, err := mongo.Connect(connectCtx, cfg.Store.URI, cfg.Store.Database)
		if err != nil {
			return store.Stores{}, nil, err
		}
		logger.Info("Connected to MongoDB", slog.String("database", cfg.Store.Database))
		cleanup := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoStore.Close(disconnectCtx); err != nil {
				logger.Warn("Failed to disconnect from MongoDB", slog.Any("error", err))
			}
		}
		return mongoStore.Stores(), cleanup, nil
	default:
		logger.Warn("Using in-memory store; data will not survive a restart",
			slog.String("driver", cfg.Store.Driver))
		return memory.New().Stores(), func() {}, nil
	}
}
