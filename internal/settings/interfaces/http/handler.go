package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"watertap/internal/audit"
	settingsapp "watertap/internal/settings/application"
	settings "watertap/internal/settings/domain"
)

// Handler serves the AI settings endpoints.
type Handler struct {
	service *settingsapp.Service
	audit   audit.Logger
	logger  *zap.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service *settingsapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("settings handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, audit: auditLogger, logger: logger}, nil
}

// ServeHTTP handles /api/v1/ai/settings, /api/v1/ai/enable and /api/v1/ai/disable.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/ai/settings":
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r)
		case http.MethodPost:
			h.handleSave(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "/api/v1/ai/enable":
		h.handleToggle(w, r, true)
	case "/api/v1/ai/disable":
		h.handleToggle(w, r, false)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.Get(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, schedule)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var next settings.Schedule
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		if errors.Is(err, settings.ErrInvalidTimeOfDay) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	saved, err := h.service.Save(r.Context(), next)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "ai_settings.save", saved)
	writeJSON(w, saved)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	saved, err := h.service.SetAIEnabled(r.Context(), enabled)
	if err != nil {
		h.respondError(w, err)
		return
	}
	action := "ai_settings.disable"
	if enabled {
		action = "ai_settings.enable"
	}
	h.record(r, action, saved)
	writeJSON(w, saved)
}

func (h *Handler) record(r *http.Request, action string, saved settings.Schedule) {
	if h.audit == nil {
		return
	}
	entry := audit.FromRequest(r, action, audit.ResourceAISettings, strconv.FormatInt(saved.ID, 10), saved)
	if err := h.audit.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.logger.Error("ai settings request failed", zap.Error(err))
	http.Error(w, "settings store unavailable", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
