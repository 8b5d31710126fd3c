package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nantokaworks/spin-overlay/internal/dispatch"
	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/telegram"
)

// brokenSetStore fails every set read while leaving the KV surface working.
type brokenSetStore struct {
	kvstore.Store
}

func (b brokenSetStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, errors.New("store unavailable")
}

func TestHandleCreateSpin_TooFewItems(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	for _, body := range []string{`{"items":[]}`, `{"items":["solo"]}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/spin", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.handleCreateSpin(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status mismatch for %s: got=%d want=%d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleCreateSpin_InvalidBody(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/spin", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	server.handleCreateSpin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleCreateSpin_MethodNotAllowed(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spin", nil)
	rec := httptest.NewRecorder()
	server.handleCreateSpin(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCreateSpin_BroadcastsToSubscribers(t *testing.T) {
	server, manager, dispatcher, transport, _ := newTestServer(t)

	ctx := context.Background()
	if err := dispatcher.AddSubscriber(ctx, "100"); err != nil {
		t.Fatalf("AddSubscriber failed: %v", err)
	}
	if err := dispatcher.AddSubscriber(ctx, "200"); err != nil {
		t.Fatalf("AddSubscriber failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/spin",
		strings.NewReader(`{"items":["pizza","sushi","ramen"]}`))
	rec := httptest.NewRecorder()
	server.handleCreateSpin(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp struct {
		SessionID string `json:"sessionId"`
		SentTo    int    `json:"sentTo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("response missing sessionId")
	}
	if resp.SentTo != 2 {
		t.Fatalf("sentTo mismatch: got=%d want=2", resp.SentTo)
	}
	if len(transport.sent) != 2 {
		t.Fatalf("outbound message count mismatch: got=%d want=2", len(transport.sent))
	}
	for _, msg := range transport.sent {
		if msg.ReplyMarkup == nil {
			t.Fatal("broadcast message missing keyboard")
		}
	}

	// The session must exist and be waiting.
	sess, err := manager.GetSession(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(sess.Items) != 3 {
		t.Fatalf("items mismatch: got=%d want=3", len(sess.Items))
	}
}

func TestHandleCreateSpin_BroadcastStoreFailure(t *testing.T) {
	store := brokenSetStore{Store: kvstore.NewMemory()}
	manager := session.NewManager(store)
	dispatcher := dispatch.New(store, func(o telegram.SendMessageOptions) error { return nil })
	transport := &fakeTransport{}
	server := New(manager, dispatcher, transport.options())

	req := httptest.NewRequest(http.MethodPost, "/api/spin",
		strings.NewReader(`{"items":["a","b"]}`))
	rec := httptest.NewRecorder()
	server.handleCreateSpin(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status mismatch: got=%d want=%d body=%s",
			rec.Code, http.StatusInternalServerError, rec.Body.String())
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.Error != "internal server error" {
		t.Fatalf("error payload mismatch: got=%q", resp.Error)
	}
}

func TestHandleCreateSpin_NoSubscribers(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/spin",
		strings.NewReader(`{"items":["a","b"]}`))
	rec := httptest.NewRecorder()
	server.handleCreateSpin(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusCreated)
	}

	var resp struct {
		SentTo int `json:"sentTo"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SentTo != 0 {
		t.Fatalf("sentTo mismatch: got=%d want=0", resp.SentTo)
	}
}
