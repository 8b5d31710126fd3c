package webserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// handleSubscribe manages the participant set:
// POST adds a chat id, DELETE removes it, GET reports the current count.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubscribeChange(w, r, true)
	case http.MethodDelete:
		s.handleSubscribeChange(w, r, false)
	case http.MethodGet:
		s.handleSubscriberCount(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubscribeChange(w http.ResponseWriter, r *http.Request, add bool) {
	chatID, ok := decodeChatID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "chatId required",
		})
		return
	}

	var err error
	if add {
		err = s.dispatcher.AddSubscriber(r.Context(), chatID)
	} else {
		err = s.dispatcher.RemoveSubscriber(r.Context(), chatID)
	}
	if err != nil {
		logger.Error("Failed to update subscriber set",
			zap.String("chat_id", chatID),
			zap.Bool("add", add),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleSubscriberCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.dispatcher.SubscriberCount(r.Context())
	if err != nil {
		logger.Error("Failed to get subscriber count", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

// decodeChatID accepts {"chatId": "123"} and {"chatId": 123}; chat ids are
// opaque strings internally.
func decodeChatID(r *http.Request) (string, bool) {
	var body struct {
		ChatID interface{} `json:"chatId"`
	}

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return "", false
	}

	switch v := body.ChatID.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
