package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const spinCallbackPrefix = "spin:"

var ErrBadCallbackData = errors.New("malformed callback data")

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// BuildSpinKeyboard lays the option list out as buttons in rows of at most
// two. Each button's callback data tags the session and the item index.
func BuildSpinKeyboard(sessionID string, items []string) *InlineKeyboardMarkup {
	keyboard := make([][]InlineKeyboardButton, 0, (len(items)+1)/2)
	for i := 0; i < len(items); i += 2 {
		row := []InlineKeyboardButton{{
			Text:         items[i],
			CallbackData: fmt.Sprintf("%s%s:%d", spinCallbackPrefix, sessionID, i),
		}}
		if i+1 < len(items) {
			row = append(row, InlineKeyboardButton{
				Text:         items[i+1],
				CallbackData: fmt.Sprintf("%s%s:%d", spinCallbackPrefix, sessionID, i+1),
			})
		}
		keyboard = append(keyboard, row)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// IsSpinCallback reports whether data was produced by BuildSpinKeyboard.
func IsSpinCallback(data string) bool {
	return strings.HasPrefix(data, spinCallbackPrefix)
}

// ParseSpinCallback extracts the session id and item index from button
// callback data of the form "spin:<sessionId>:<index>".
func ParseSpinCallback(data string) (sessionID string, itemIndex int, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "spin" || parts[1] == "" {
		return "", 0, ErrBadCallbackData
	}

	itemIndex, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, ErrBadCallbackData
	}
	return parts[1], itemIndex, nil
}
