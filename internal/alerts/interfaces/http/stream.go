package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	alertapp "watertap/internal/alerts/application"
)

const defaultKeepAlive = 25 * time.Second

// StreamHandler serves the alert SSE stream: the active-alert snapshot,
// then live events. On overflow it sends an overflow event and ends the
// stream so the client resubscribes and receives a fresh snapshot.
type StreamHandler struct {
	hub       *alertapp.Hub
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs a stream handler. A non-positive keepAlive
// uses the default comment interval.
func NewStreamHandler(hub *alertapp.Hub, keepAlive time.Duration, logger *zap.Logger) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, keepAlive: keepAlive, logger: logger}
}

// ServeHTTP handles GET /api/v1/alerts/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hub == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.hub.Subscribe(r.Context())
	if err != nil {
		h.logger.Error("alert stream subscribe failed", zap.Error(err))
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, h.keepAlive)
		event, err := sub.Next(waitCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			return
		}

		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := writeEvent(w, string(event.Type), payload); err != nil {
			return
		}
		flusher.Flush()
		if event.Type == alertapp.EventOverflow {
			h.logger.Warn("alert stream overflow, closing",
				zap.String("subscription", sub.ID()),
				zap.Int("dropped", event.Dropped),
			)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload []byte) error {
	if _, err := w.Write([]byte("event: " + name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
