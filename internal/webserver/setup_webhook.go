package webserver

import (
	"net/http"
	"strings"

	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// handleSetupWebhook registers the public webhook URL with Telegram.
// One-shot convenience endpoint for deployments without a CLI step.
func (s *Server) handleSetupWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.appURL == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "APP_URL is not configured",
		})
		return
	}

	webhookURL := strings.TrimRight(s.appURL, "/") + "/api/telegram/webhook"

	if err := s.setWebhook(webhookURL); err != nil {
		logger.Error("Failed to register webhook",
			zap.String("webhook_url", webhookURL),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to register webhook",
		})
		return
	}

	logger.Info("Webhook registered", zap.String("webhook_url", webhookURL))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"webhookUrl": webhookURL,
	})
}
