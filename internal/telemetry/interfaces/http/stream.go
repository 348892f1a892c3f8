package http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	telemetry "watertap/internal/telemetry/domain"
)

const defaultKeepAlive = 25 * time.Second

// Feed is the live telemetry producer the stream reads.
type Feed interface {
	Subscribe() (<-chan []telemetry.TelemetryPoint, func())
}

// StreamHandler serves GET /api/v1/sensors/stream. Every client shares the
// feed's single reload loop and gets the newest window on each tick.
type StreamHandler struct {
	feed      Feed
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(feed Feed, keepAlive time.Duration, logger *zap.Logger) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{feed: feed, keepAlive: keepAlive, logger: logger}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.feed == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case points, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(nonNil(points))
			if err != nil {
				h.logger.Warn("telemetry stream encode failed", zap.Error(err))
				continue
			}
			if _, err := w.Write([]byte("event: telemetry\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
