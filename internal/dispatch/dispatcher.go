package dispatch

import (
	"context"
	"fmt"

	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
	"go.uber.org/zap"
)

// SubscribersKey is the set holding registered chat ids. The set is
// process-wide persistent state with no TTL.
const SubscribersKey = "telegram:subscribers"

const broadcastText = "🎰 <b>Pick the wheel result!</b>\n\nTap one of the options:"

// SendFunc delivers one message to one chat. Injected so tests can swap the
// real Bot API call for a fake.
type SendFunc func(opts telegram.SendMessageOptions) error

// Dispatcher maintains the subscriber set and pushes spin prompts to every
// registered participant.
type Dispatcher struct {
	store kvstore.Store
	send  SendFunc
}

func New(store kvstore.Store, send SendFunc) *Dispatcher {
	return &Dispatcher{store: store, send: send}
}

// AddSubscriber registers a chat id. Idempotent.
func (d *Dispatcher) AddSubscriber(ctx context.Context, chatID string) error {
	if err := d.store.SAdd(ctx, SubscribersKey, chatID); err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber unregisters a chat id. Idempotent.
func (d *Dispatcher) RemoveSubscriber(ctx context.Context, chatID string) error {
	if err := d.store.SRem(ctx, SubscribersKey, chatID); err != nil {
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}
	return nil
}

// Subscribers returns the current set membership.
func (d *Dispatcher) Subscribers(ctx context.Context) ([]string, error) {
	members, err := d.store.SMembers(ctx, SubscribersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribers: %w", err)
	}
	return members, nil
}

// SubscriberCount reports how many participants are registered. Used by the
// client to decide whether waiting for a remote choice is worthwhile.
func (d *Dispatcher) SubscriberCount(ctx context.Context) (int, error) {
	members, err := d.Subscribers(ctx)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// BroadcastSpinOptions sends the option keyboard for one session to every
// subscriber. A failed delivery is logged and skipped; the return value is
// the number of subscribers actually reached.
func (d *Dispatcher) BroadcastSpinOptions(ctx context.Context, sessionID string, items []string) (int, error) {
	subscribers, err := d.Subscribers(ctx)
	if err != nil {
		return 0, err
	}

	keyboard := telegram.BuildSpinKeyboard(sessionID, items)

	sent := 0
	for _, chatID := range subscribers {
		err := d.send(telegram.SendMessageOptions{
			ChatID:      chatID,
			Text:        broadcastText,
			ReplyMarkup: keyboard,
		})
		if err != nil {
			logger.Warn("Failed to send spin options",
				zap.String("chat_id", chatID),
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}
