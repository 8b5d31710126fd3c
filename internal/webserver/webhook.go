package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
	"github.com/nantokaworks/spin-overlay/internal/types"
	"go.uber.org/zap"
)

// handleTelegramWebhook receives updates from the Telegram transport.
// The POST branch always acknowledges with 200 {ok:true} no matter what went
// wrong internally: a non-200 would make Telegram retry-storm a callback that
// can never succeed. Failures are surfaced to the participant through
// answerCallbackQuery instead. GET is the transport's liveness probe.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "webhook endpoint active",
		})
	case http.MethodPost:
		s.processTelegramUpdate(r)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) processTelegramUpdate(r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		logger.Warn("Failed to decode telegram update", zap.Error(err))
		return
	}

	if update.Message != nil && update.Message.Text == "/start" {
		s.handleStartCommand(r, update.Message)
		return
	}

	if update.CallbackQuery != nil && telegram.IsSpinCallback(update.CallbackQuery.Data) {
		s.handleSpinChoice(r, update.CallbackQuery)
	}
}

func (s *Server) handleStartCommand(r *http.Request, msg *telegram.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if err := s.dispatcher.AddSubscriber(r.Context(), chatID); err != nil {
		logger.Error("Failed to subscribe chat", zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	logger.Info("Subscriber added via /start", zap.String("chat_id", chatID))

	err := s.sendMessage(telegram.SendMessageOptions{
		ChatID: chatID,
		Text:   "✅ <b>Subscription active!</b>\n\nYou will now be asked to pick the wheel result whenever a spin starts.",
	})
	if err != nil {
		logger.Warn("Failed to send welcome message", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (s *Server) handleSpinChoice(r *http.Request, query *telegram.CallbackQuery) {
	sessionID, itemIndex, err := telegram.ParseSpinCallback(query.Data)
	if err != nil {
		s.answerSoftly(query.ID, "Invalid selection data")
		return
	}

	ctx := r.Context()

	sess, err := s.manager.GetSession(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		s.answerSoftly(query.ID, "This spin has expired!")
		return
	}
	if err != nil {
		logger.Error("Failed to read session for choice",
			zap.String("session_id", sessionID),
			zap.Error(err))
		s.answerSoftly(query.ID, "Could not save your choice")
		return
	}

	if sess.Status == types.StatusChosen {
		text := "Already chosen!"
		if idx := sess.ChosenIndex; idx != nil && *idx >= 0 && *idx < len(sess.Items) {
			text = fmt.Sprintf("Already chosen: %s", sess.Items[*idx])
		}
		s.answerSoftly(query.ID, text)
		return
	}

	updated, err := s.manager.UpdateSessionChoice(ctx, sessionID, itemIndex, query.From.FirstName)
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		s.answerSoftly(query.ID, "Invalid option")
		return
	case errors.Is(err, session.ErrAlreadyResolved):
		s.answerSoftly(query.ID, "Someone else beat you to it!")
		return
	case errors.Is(err, session.ErrNotFound):
		s.answerSoftly(query.ID, "This spin has expired!")
		return
	case err != nil:
		logger.Error("Failed to update session choice",
			zap.String("session_id", sessionID),
			zap.Int("item_index", itemIndex),
			zap.Error(err))
		s.answerSoftly(query.ID, "Could not save your choice")
		return
	}

	chosenItem := updated.Items[*updated.ChosenIndex]

	logger.Info("Remote choice recorded",
		zap.String("session_id", sessionID),
		zap.Int("chosen_index", *updated.ChosenIndex),
		zap.String("chosen_by", updated.ChosenBy))

	s.answerSoftly(query.ID, fmt.Sprintf("You chose: %s!", chosenItem))

	// Queries for aged-out messages arrive without the originating message;
	// there is nothing to edit then.
	if query.Message.Chat.ID != 0 {
		chatID := strconv.FormatInt(query.Message.Chat.ID, 10)
		err = s.editMessage(chatID, query.Message.MessageID,
			fmt.Sprintf("🎯 <b>Chosen!</b>\n\n%s picked: <b>%s</b>", query.From.FirstName, chosenItem))
		if err != nil {
			logger.Warn("Failed to edit prompt message",
				zap.String("chat_id", chatID),
				zap.Error(err))
		}
	}

	s.hub.broadcast("spin_resolved", map[string]interface{}{
		"sessionId":   updated.ID,
		"chosenIndex": *updated.ChosenIndex,
		"chosenItem":  chosenItem,
		"chosenBy":    updated.ChosenBy,
	})
}

// answerSoftly reports a user-facing message through the callback answer and
// swallows any transport error; the webhook response stays a success either way.
func (s *Server) answerSoftly(queryID, text string) {
	if err := s.answerCallback(queryID, text); err != nil {
		logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}
