package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nantokaworks/spin-overlay/internal/dispatch"
	"github.com/nantokaworks/spin-overlay/internal/env"
	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
	"github.com/nantokaworks/spin-overlay/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting spin-overlay server")

	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	store, cleanup, err := setupStore()
	if err != nil {
		logger.Fatal("Failed to set up session store", zap.Error(err))
	}
	defer cleanup()

	manager := session.NewManager(store,
		session.WithTTL(time.Duration(env.Value.SessionTTLSeconds)*time.Second),
		session.WithExpiredGrace(time.Duration(env.Value.ExpiredGraceSeconds)*time.Second),
	)

	dispatcher := dispatch.New(store, telegram.SendMessage)

	if env.Value.BotToken == nil || *env.Value.BotToken == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, remote choices are unavailable")
	}

	opts := []webserver.Option{
		webserver.WithStreamTiming(
			time.Duration(env.Value.StreamPollMs)*time.Millisecond,
			time.Duration(env.Value.StreamMaxWaitMs)*time.Millisecond,
		),
	}
	if env.Value.BotUsername != nil {
		opts = append(opts, webserver.WithBotUsername(*env.Value.BotUsername))
	}
	if env.Value.AppURL != nil {
		opts = append(opts, webserver.WithAppURL(*env.Value.AppURL))
	}

	server := webserver.New(manager, dispatcher, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(env.Value.ServerPort)
	}()

	logger.Info("Server started",
		zap.Int("port", env.Value.ServerPort),
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/spin", env.Value.ServerPort)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Web server failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// setupStore picks SQLite persistence when DB_PATH is set and an in-memory
// store otherwise. In-memory is fine for a single-process overlay session;
// subscribers just reset on restart.
func setupStore() (kvstore.Store, func(), error) {
	if env.Value.DBPath == "" {
		logger.Info("Using in-memory session store")
		return kvstore.NewMemory(), func() {}, nil
	}

	store, err := kvstore.NewSQLite(env.Value.DBPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using SQLite session store", zap.String("path", env.Value.DBPath))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close session store", zap.Error(err))
		}
	}, nil
}
