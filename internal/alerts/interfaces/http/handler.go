package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	alertapp "watertap/internal/alerts/application"
	alerts "watertap/internal/alerts/domain"
	"watertap/internal/audit"
)

const basePath = "/api/v1/alerts"

// Handler provides alert HTTP endpoints.
type Handler struct {
	hub    *alertapp.Hub
	audit  audit.Logger
	logger *zap.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(hub *alertapp.Hub, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if hub == nil {
		return nil, errors.New("alerts handler: nil hub")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, audit: auditLogger, logger: logger}, nil
}

type createRequest struct {
	SensorID    int    `json:"sensor_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Solution    string `json:"solution"`
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == basePath:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, basePath+"/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.hub.Active(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.SensorID <= 0 {
		http.Error(w, "sensor_id is required", http.StatusBadRequest)
		return
	}
	alert, err := h.hub.Create(r.Context(), alerts.Alert{
		SensorID:    req.SensorID,
		Description: req.Description,
		Severity:    alerts.ParseSeverity(req.Severity),
		Solution:    req.Solution,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.record(r, "alert.create", alert.ID, req)
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, basePath+"/")
	parts := strings.Split(path, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDelete(w, r, id)
	case len(parts) == 2:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAction(w, r, id, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, id int64, action string) {
	var (
		alert alerts.Alert
		found bool
		err   error
	)
	switch action {
	case "deactivate":
		alert, found, err = h.hub.Deactivate(r.Context(), id)
	case "activate":
		alert, found, err = h.hub.Activate(r.Context(), id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	h.record(r, "alert."+action, id, nil)
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	found, err := h.hub.Delete(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	h.record(r, "alert.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) record(r *http.Request, action string, id int64, metadata any) {
	if h.audit == nil {
		return
	}
	entry := audit.FromRequest(r, action, audit.ResourceAlert, strconv.FormatInt(id, 10), metadata)
	if err := h.audit.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		http.Error(w, "alert not found", http.StatusNotFound)
	case errors.Is(err, alerts.ErrStoreUnavailable):
		h.logger.Error("alert store unavailable", zap.Error(err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("alert request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
