package dispatch

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
)

func TestAddRemoveSubscriber_Idempotent(t *testing.T) {
	d := New(kvstore.NewMemory(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := d.AddSubscriber(ctx, "100"); err != nil {
			t.Fatalf("AddSubscriber failed: %v", err)
		}
	}
	if err := d.AddSubscriber(ctx, "200"); err != nil {
		t.Fatalf("AddSubscriber failed: %v", err)
	}

	count, err := d.SubscriberCount(ctx)
	if err != nil {
		t.Fatalf("SubscriberCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("count mismatch: got=%d want=2", count)
	}

	if err := d.RemoveSubscriber(ctx, "100"); err != nil {
		t.Fatalf("RemoveSubscriber failed: %v", err)
	}
	// Removing again must not error.
	if err := d.RemoveSubscriber(ctx, "100"); err != nil {
		t.Fatalf("second RemoveSubscriber failed: %v", err)
	}

	count, _ = d.SubscriberCount(ctx)
	if count != 1 {
		t.Fatalf("count mismatch after removal: got=%d want=1", count)
	}
}

func TestBroadcastSpinOptions_NoSubscribers(t *testing.T) {
	sendCalls := 0
	d := New(kvstore.NewMemory(), func(opts telegram.SendMessageOptions) error {
		sendCalls++
		return nil
	})

	sent, err := d.BroadcastSpinOptions(context.Background(), "abc123", []string{"a", "b"})
	if err != nil {
		t.Fatalf("BroadcastSpinOptions failed: %v", err)
	}
	if sent != 0 || sendCalls != 0 {
		t.Fatalf("broadcast to empty set: sent=%d calls=%d want 0/0", sent, sendCalls)
	}
}

func TestBroadcastSpinOptions_ReachesEverySubscriber(t *testing.T) {
	var gotChats []string
	var gotMarkup *telegram.InlineKeyboardMarkup

	d := New(kvstore.NewMemory(), func(opts telegram.SendMessageOptions) error {
		gotChats = append(gotChats, opts.ChatID)
		gotMarkup = opts.ReplyMarkup
		return nil
	})

	ctx := context.Background()
	for _, chatID := range []string{"100", "200", "300"} {
		if err := d.AddSubscriber(ctx, chatID); err != nil {
			t.Fatalf("AddSubscriber failed: %v", err)
		}
	}

	sent, err := d.BroadcastSpinOptions(ctx, "abc123", []string{"pizza", "sushi", "ramen"})
	if err != nil {
		t.Fatalf("BroadcastSpinOptions failed: %v", err)
	}
	if sent != 3 {
		t.Fatalf("sent mismatch: got=%d want=3", sent)
	}

	sort.Strings(gotChats)
	if len(gotChats) != 3 || gotChats[0] != "100" || gotChats[2] != "300" {
		t.Fatalf("chat ids mismatch: %v", gotChats)
	}
	if gotMarkup == nil || len(gotMarkup.InlineKeyboard) != 2 {
		t.Fatalf("keyboard mismatch: %+v", gotMarkup)
	}
}

func TestBroadcastSpinOptions_FailedDeliverySkipped(t *testing.T) {
	d := New(kvstore.NewMemory(), func(opts telegram.SendMessageOptions) error {
		if opts.ChatID == "200" {
			return errors.New("blocked by user")
		}
		return nil
	})

	ctx := context.Background()
	for _, chatID := range []string{"100", "200", "300"} {
		if err := d.AddSubscriber(ctx, chatID); err != nil {
			t.Fatalf("AddSubscriber failed: %v", err)
		}
	}

	sent, err := d.BroadcastSpinOptions(ctx, "abc123", []string{"a", "b"})
	if err != nil {
		t.Fatalf("BroadcastSpinOptions failed: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent mismatch: got=%d want=2", sent)
	}
}
