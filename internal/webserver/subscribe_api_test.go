package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleSubscribe_AddAndRemove(t *testing.T) {
	server, _, dispatcher, _, _ := newTestServer(t)

	post := httptest.NewRequest(http.MethodPost, "/api/telegram/subscribe",
		strings.NewReader(`{"chatId":"100"}`))
	rec := httptest.NewRecorder()
	server.handleSubscribe(rec, post)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}

	// Numeric chat ids are accepted too.
	post = httptest.NewRequest(http.MethodPost, "/api/telegram/subscribe",
		strings.NewReader(`{"chatId":200}`))
	rec = httptest.NewRecorder()
	server.handleSubscribe(rec, post)
	if rec.Code != http.StatusOK {
		t.Fatalf("numeric POST status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}

	count, err := dispatcher.SubscriberCount(context.Background())
	if err != nil {
		t.Fatalf("SubscriberCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("count mismatch: got=%d want=2", count)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/telegram/subscribe",
		strings.NewReader(`{"chatId":"100"}`))
	rec = httptest.NewRecorder()
	server.handleSubscribe(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}

	get := httptest.NewRequest(http.MethodGet, "/api/telegram/subscribe", nil)
	rec = httptest.NewRecorder()
	server.handleSubscribe(rec, get)

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count mismatch after delete: got=%d want=1", resp.Count)
	}
}

func TestHandleSubscribe_MissingChatID(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	for _, body := range []string{`{}`, `{"chatId":""}`, `{"chatId":"   "}`, "not json"} {
		req := httptest.NewRequest(http.MethodPost, "/api/telegram/subscribe", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.handleSubscribe(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status mismatch for %q: got=%d want=%d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleSetupWebhook(t *testing.T) {
	server, _, _, transport, _ := newTestServer(t, WithAppURL("https://example.com/"))

	req := httptest.NewRequest(http.MethodGet, "/api/telegram/setup-webhook", nil)
	rec := httptest.NewRecorder()
	server.handleSetupWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(transport.webhooked) != 1 || transport.webhooked[0] != "https://example.com/api/telegram/webhook" {
		t.Fatalf("webhook url mismatch: %v", transport.webhooked)
	}
}

func TestHandleSetupWebhook_MissingAppURL(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/telegram/setup-webhook", nil)
	rec := httptest.NewRecorder()
	server.handleSetupWebhook(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleTelegramQR(t *testing.T) {
	server, _, _, _, _ := newTestServer(t, WithBotUsername("spin_bot"))

	req := httptest.NewRequest(http.MethodGet, "/api/telegram/qr?size=128", nil)
	rec := httptest.NewRecorder()
	server.handleTelegramQR(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type mismatch: got=%q", ct)
	}
	// PNG magic bytes.
	body := rec.Body.Bytes()
	if len(body) < 8 || body[0] != 0x89 || body[1] != 'P' || body[2] != 'N' || body[3] != 'G' {
		t.Fatalf("response is not a PNG (%d bytes)", len(body))
	}
}

func TestHandleTelegramQR_MissingUsername(t *testing.T) {
	server, _, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/telegram/qr", nil)
	rec := httptest.NewRecorder()
	server.handleTelegramQR(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleStatus(t *testing.T) {
	server, _, dispatcher, _, _ := newTestServer(t)

	if err := dispatcher.AddSubscriber(context.Background(), "100"); err != nil {
		t.Fatalf("AddSubscriber failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, req)

	var resp struct {
		Status      string `json:"status"`
		Subscribers int    `json:"subscribers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.Status != "ok" || resp.Subscribers != 1 {
		t.Fatalf("status payload mismatch: %+v", resp)
	}
}
