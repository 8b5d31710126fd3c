package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nantokaworks/spin-overlay/internal/env"
)

var (
	apiBaseURL = "https://api.telegram.org"
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var ErrBotTokenMissing = errors.New("TELEGRAM_BOT_TOKEN not configured")

// SendMessageOptions carries one outgoing chat message. Text is sent with
// HTML parse mode like the rest of the bot's output.
type SendMessageOptions struct {
	ChatID      string
	Text        string
	ReplyMarkup *InlineKeyboardMarkup
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func botToken() (string, error) {
	if env.Value.BotToken == nil || *env.Value.BotToken == "" {
		return "", ErrBotTokenMissing
	}
	return *env.Value.BotToken, nil
}

// callMethod posts a JSON payload to one Bot API method and checks the ok flag.
func callMethod(method string, payload interface{}) error {
	token, err := botToken()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/%s", apiBaseURL, token, method)
	resp, err := httpClient.Post(reqURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !result.OK {
		return fmt.Errorf("%s rejected: %s", method, result.Description)
	}
	return nil
}

// SendMessage delivers a message to one chat.
func SendMessage(opts SendMessageOptions) error {
	payload := map[string]interface{}{
		"chat_id":    opts.ChatID,
		"text":       opts.Text,
		"parse_mode": "HTML",
	}
	if opts.ReplyMarkup != nil {
		payload["reply_markup"] = opts.ReplyMarkup
	}
	return callMethod("sendMessage", payload)
}

// AnswerCallbackQuery acknowledges a button press. A non-empty text is shown
// to the user as an alert popup.
func AnswerCallbackQuery(queryID, text string) error {
	payload := map[string]interface{}{
		"callback_query_id": queryID,
	}
	if text != "" {
		payload["text"] = text
		payload["show_alert"] = true
	}
	return callMethod("answerCallbackQuery", payload)
}

// EditMessageText rewrites a previously sent message in place.
func EditMessageText(chatID string, messageID int64, text string) error {
	return callMethod("editMessageText", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// SetWebhook registers webhookURL for message and callback_query updates.
func SetWebhook(webhookURL string) error {
	return callMethod("setWebhook", map[string]interface{}{
		"url":             webhookURL,
		"allowed_updates": []string{"message", "callback_query"},
	})
}
