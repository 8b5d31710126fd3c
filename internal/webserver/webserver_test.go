package webserver

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/spin-overlay/internal/dispatch"
	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
)

// fakeTransport records outbound Telegram calls instead of hitting the API.
type fakeTransport struct {
	answered  []string
	edited    []string
	sent      []telegram.SendMessageOptions
	webhooked []string
}

func (f *fakeTransport) options() Option {
	return WithTransport(
		func(queryID, text string) error {
			f.answered = append(f.answered, text)
			return nil
		},
		func(chatID string, messageID int64, text string) error {
			f.edited = append(f.edited, text)
			return nil
		},
		func(opts telegram.SendMessageOptions) error {
			f.sent = append(f.sent, opts)
			return nil
		},
		func(webhookURL string) error {
			f.webhooked = append(f.webhooked, webhookURL)
			return nil
		},
	)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *session.Manager, *dispatch.Dispatcher, *fakeTransport, *clockwork.FakeClock) {
	t.Helper()
	server, manager, dispatcher, transport, _, clock := newTestServerWithStore(t, opts...)
	return server, manager, dispatcher, transport, clock
}

func newTestServerWithStore(t *testing.T, opts ...Option) (*Server, *session.Manager, *dispatch.Dispatcher, *fakeTransport, *kvstore.Memory, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryWithClock(clock)
	manager := session.NewManager(store, session.WithClock(clock))

	transport := &fakeTransport{}
	dispatcher := dispatch.New(store, func(o telegram.SendMessageOptions) error {
		transport.sent = append(transport.sent, o)
		return nil
	})

	all := append([]Option{WithClock(clock), transport.options()}, opts...)
	server := New(manager, dispatcher, all...)
	return server, manager, dispatcher, transport, store, clock
}

// writeRawSession plants a session record directly in the store, bypassing the
// manager's validation.
func writeRawSession(t *testing.T, store *kvstore.Memory, id, raw string) {
	t.Helper()
	if err := store.SetEx(context.Background(), session.SessionKeyPrefix+id, raw, 300*time.Second); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
}

func mustCreateSession(t *testing.T, manager *session.Manager, items []string) string {
	t.Helper()
	sess, err := manager.CreateSession(context.Background(), items)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return sess.ID
}
