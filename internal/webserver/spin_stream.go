package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nantokaworks/spin-overlay/internal/session"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"github.com/nantokaworks/spin-overlay/internal/types"
	"go.uber.org/zap"
)

// handleSpinStream serves GET /api/spin/{id}/stream: a one-directional
// text/event-stream scoped to one session. Externally this looks like push;
// internally it is a bounded poll loop against the session manager (each tick
// an independent read, no held lock), because that is all a 500ms-interval
// shared store needs. A backend with a real pub/sub primitive could replace
// the loop without changing the event contract.
func (s *Server) handleSpinStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/spin/")
	sessionID := strings.TrimSuffix(rest, "/stream")
	if sessionID == "" || sessionID == rest || strings.Contains(sessionID, "/") {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")

	send := func(event string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("Failed to marshal stream event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	ctx := r.Context()
	elapsed := time.Duration(0)
	first := true

	for {
		if elapsed >= s.maxWait {
			send("timeout", map[string]interface{}{"message": "no choice made in time"})
			return
		}

		sess, err := s.manager.GetSession(ctx, sessionID)
		if errors.Is(err, session.ErrNotFound) {
			// An id that was never valid and a session that aged out
			// mid-stream read differently on the client.
			if first {
				send("error", map[string]interface{}{"message": "session not found"})
			} else {
				send("error", map[string]interface{}{"message": "session expired"})
			}
			return
		}
		if err != nil {
			logger.Error("Stream poll failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
			send("error", map[string]interface{}{"message": "server error"})
			return
		}

		switch sess.Status {
		case types.StatusChosen:
			if sess.ChosenIndex == nil || *sess.ChosenIndex < 0 || *sess.ChosenIndex >= len(sess.Items) {
				logger.Error("Chosen session has no usable index",
					zap.String("session_id", sessionID))
				send("error", map[string]interface{}{"message": "server error"})
				return
			}
			send("chosen", map[string]interface{}{
				"chosenIndex": *sess.ChosenIndex,
				"chosenItem":  sess.Items[*sess.ChosenIndex],
			})
			return
		case types.StatusExpired:
			send("expired", map[string]interface{}{"message": "session expired"})
			return
		}

		send("heartbeat", map[string]interface{}{"elapsed": elapsed.Milliseconds()})

		first = false
		elapsed += s.pollInterval
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.pollInterval):
		}
	}
}
