package webserver

import (
	"net/http"
	"strconv"

	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// handleTelegramQR serves a PNG QR code linking to the bot's chat, so
// viewers can subscribe by scanning the overlay.
func (s *Server) handleTelegramQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.botUsername == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "TELEGRAM_BOT_USERNAME is not configured",
		})
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			size = parsed
		}
	}
	if size < minQRSize {
		size = minQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode("https://t.me/"+s.botUsername, qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to generate QR code", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}
