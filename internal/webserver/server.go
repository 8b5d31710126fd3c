package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/spin-overlay/internal/dispatch"
	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxWait      = 60 * time.Second
)

// Server wires the HTTP surface: spin API, live-status stream, subscriber
// management, the Telegram webhook and the overlay WebSocket hub. All
// collaborators are injected; no package-level state.
type Server struct {
	manager    *session.Manager
	dispatcher *dispatch.Dispatcher
	clock      clockwork.Clock
	hub        *WSHub

	pollInterval time.Duration
	maxWait      time.Duration
	botUsername  string
	appURL       string

	answerCallback func(queryID, text string) error
	editMessage    func(chatID string, messageID int64, text string) error
	sendMessage    dispatch.SendFunc
	setWebhook     func(webhookURL string) error

	httpServer *http.Server
}

type Option func(*Server)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

func WithStreamTiming(pollInterval, maxWait time.Duration) Option {
	return func(s *Server) {
		s.pollInterval = pollInterval
		s.maxWait = maxWait
	}
}

func WithBotUsername(username string) Option {
	return func(s *Server) { s.botUsername = username }
}

func WithAppURL(appURL string) Option {
	return func(s *Server) { s.appURL = appURL }
}

// WithTransport overrides the outbound Telegram calls, used by tests.
func WithTransport(
	answerCallback func(queryID, text string) error,
	editMessage func(chatID string, messageID int64, text string) error,
	sendMessage dispatch.SendFunc,
	setWebhook func(webhookURL string) error,
) Option {
	return func(s *Server) {
		s.answerCallback = answerCallback
		s.editMessage = editMessage
		s.sendMessage = sendMessage
		s.setWebhook = setWebhook
	}
}

func New(manager *session.Manager, dispatcher *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		manager:        manager,
		dispatcher:     dispatcher,
		clock:          clockwork.NewRealClock(),
		hub:            newWSHub(),
		pollInterval:   defaultPollInterval,
		maxWait:        defaultMaxWait,
		answerCallback: telegram.AnswerCallbackQuery,
		editMessage:    telegram.EditMessageText,
		sendMessage:    telegram.SendMessage,
		setWebhook:     telegram.SetWebhook,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// Routes builds the ServeMux with every endpoint registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Spin API endpoints
	mux.HandleFunc("/api/spin", corsMiddleware(s.handleCreateSpin))
	mux.HandleFunc("/api/spin/", corsMiddleware(s.handleSpinStream))

	// Telegram endpoints
	mux.HandleFunc("/api/telegram/subscribe", corsMiddleware(s.handleSubscribe))
	mux.HandleFunc("/api/telegram/webhook", s.handleTelegramWebhook)
	mux.HandleFunc("/api/telegram/setup-webhook", corsMiddleware(s.handleSetupWebhook))
	mux.HandleFunc("/api/telegram/qr", corsMiddleware(s.handleTelegramQR))

	// WebSocket endpoint (overlay push)
	mux.HandleFunc("/ws", s.handleWS)

	// Status endpoint
	mux.HandleFunc("/status", corsMiddleware(s.handleStatus))

	return mux
}

// Start runs the HTTP server on the given port. Blocks until shutdown.
func (s *Server) Start(port int) error {
	s.hub.start()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}

	logger.Info("Starting web server", zap.Int("port", port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.dispatcher.SubscriberCount(r.Context())
	if err != nil {
		logger.Error("Failed to get subscriber count for status", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
