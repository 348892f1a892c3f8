package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"watertap/internal/audit"
	"watertap/internal/observability/metrics"
	telemetry "watertap/internal/telemetry/domain"
)

const basePath = "/api/v1/sensors"

// Service is the telemetry API the handler depends on.
type Service interface {
	Now() time.Time
	History(ctx context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error)
	AggregatedHistory(ctx context.Context, tier telemetry.Tier, from, to time.Time) ([]telemetry.TelemetryPoint, error)
	Save(ctx context.Context, points []telemetry.TelemetryPoint) error
	DeleteData(ctx context.Context, sensorIDs []*int, from, to *time.Time) (int, error)
}

// Handler provides sensor telemetry endpoints.
type Handler struct {
	service Service
	audit   audit.Logger
	logger  *zap.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("telemetry handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, audit: auditLogger, logger: logger}, nil
}

type deleteRequest struct {
	SensorIDs []*int     `json:"sensorIds"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
}

// ServeHTTP handles /api/v1/sensors subroutes except the stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case basePath + "/history":
		h.allow(w, r, http.MethodGet, h.handleHistory)
	case basePath + "/history/since":
		h.allow(w, r, http.MethodGet, h.handleSince)
	case basePath + "/upload":
		h.allow(w, r, http.MethodPost, h.handleUpload)
	case basePath + "/data":
		h.allow(w, r, http.MethodDelete, h.handleDelete)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, method string, next http.HandlerFunc) {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	next(w, r)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseTime(query.Get("from"))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := parseTime(query.Get("to"))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to before from", http.StatusBadRequest)
		return
	}
	points, err := h.service.History(r.Context(), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(points))
}

func (h *Handler) handleSince(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount := 1
	if raw := strings.TrimSpace(query.Get("amount")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = parsed
	}
	from, to := telemetry.Since(h.service.Now(), amount, query.Get("unit"))

	var (
		points []telemetry.TelemetryPoint
		err    error
	)
	if agg := query.Get("agg"); strings.TrimSpace(agg) != "" {
		tier, parseErr := telemetry.ParseAgg(agg)
		if parseErr != nil {
			http.Error(w, parseErr.Error(), http.StatusBadRequest)
			return
		}
		points, err = h.service.AggregatedHistory(r.Context(), tier, from, to)
	} else {
		points, err = h.service.History(r.Context(), from, to)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(points))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var points []telemetry.TelemetryPoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		metrics.AddIngestedPoints("http", metrics.ResultError, 1)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	for i, p := range points {
		if !p.HasIdentity() {
			metrics.AddIngestedPoints("http", metrics.ResultError, len(points))
			http.Error(w, "point "+strconv.Itoa(i)+" missing sensorId or timestamp", http.StatusBadRequest)
			return
		}
	}
	if err := h.service.Save(r.Context(), points); err != nil {
		metrics.AddIngestedPoints("http", metrics.ResultError, len(points))
		h.respondError(w, err)
		return
	}
	metrics.AddIngestedPoints("http", metrics.ResultSuccess, len(points))
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(points)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	created, err := h.service.DeleteData(r.Context(), req.SensorIDs, req.From, req.To)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.audit != nil {
		entry := audit.FromRequest(r, "telemetry.delete", audit.ResourceExclusion, "", req)
		if err := h.audit.Log(context.WithoutCancel(r.Context()), entry); err != nil {
			h.logger.Warn("audit log failed", zap.String("action", entry.Action), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telemetry.ErrInvalidExclusion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, telemetry.ErrDataSourceUnavailable):
		h.logger.Error("telemetry store unavailable", zap.Error(err))
		http.Error(w, "data source unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("telemetry request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func nonNil(points []telemetry.TelemetryPoint) []telemetry.TelemetryPoint {
	if points == nil {
		return []telemetry.TelemetryPoint{}
	}
	return points
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
