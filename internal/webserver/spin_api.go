package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

type createSpinRequest struct {
	Items []string `json:"items"`
}

// handleCreateSpin creates a new spin session and pushes the option keyboard
// to every subscriber. The response carries the session id and how many
// subscribers were actually reached.
func (s *Server) handleCreateSpin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSpinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
		return
	}

	sess, err := s.manager.CreateSession(r.Context(), req.Items)
	if errors.Is(err, session.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "at least 2 items required",
		})
		return
	}
	if err != nil {
		logger.Error("Failed to create spin session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
		})
		return
	}

	sentTo, err := s.dispatcher.BroadcastSpinOptions(r.Context(), sess.ID, sess.Items)
	if err != nil {
		// Reading the subscriber set failed; individual send failures are
		// handled inside the broadcast and only lower the count.
		logger.Error("Failed to broadcast spin options",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
		})
		return
	}

	logger.Info("Spin session created",
		zap.String("session_id", sess.ID),
		zap.Int("items", len(sess.Items)),
		zap.Int("sent_to", sentTo))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sess.ID,
		"sentTo":    sentTo,
	})
}
