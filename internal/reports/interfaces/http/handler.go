package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"watertap/internal/observability/metrics"
	reports "watertap/internal/reports/domain"
	"watertap/internal/reports/interfaces"
	telemetry "watertap/internal/telemetry/domain"
)

const (
	basePath        = "/api/v1/reports"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Builder produces a report for a range.
type Builder interface {
	Now() time.Time
	Build(ctx context.Context, from, to time.Time) (*reports.Report, error)
}

type format struct {
	name        string
	contentType string
	extension   string
	render      func(*reports.Report) ([]byte, error)
}

var formats = map[string]format{
	basePath:           {name: "pdf", contentType: "application/pdf", extension: "pdf", render: interfaces.BuildReportPDF},
	basePath + "/csv":  {name: "csv", contentType: "text/csv", extension: "csv", render: interfaces.BuildReportCSV},
	basePath + "/xlsx": {name: "xlsx", contentType: xlsxContentType, extension: "xlsx", render: interfaces.BuildReportXLSX},
}

// Handler serves report downloads.
type Handler struct {
	builder Builder
	logger  *zap.Logger
}

// NewHandler constructs a report handler.
func NewHandler(builder Builder, logger *zap.Logger) (*Handler, error) {
	if builder == nil {
		return nil, errors.New("report handler: nil builder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{builder: builder, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/reports[/csv|/xlsx]?amount&unit.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, ok := formats[strings.TrimSuffix(r.URL.Path, "/")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	amount := 24
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = parsed
	}
	from, to := telemetry.Since(h.builder.Now(), amount, r.URL.Query().Get("unit"))

	start := time.Now()
	report, err := h.builder.Build(r.Context(), from, to)
	if err != nil {
		metrics.ObserveReportExport(f.name, metrics.ResultError, time.Since(start))
		if errors.Is(err, telemetry.ErrDataSourceUnavailable) {
			h.logger.Error("report data source unavailable", zap.Error(err))
			http.Error(w, "data source unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("report build failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body, err := f.render(report)
	if err != nil {
		metrics.ObserveReportExport(f.name, metrics.ResultError, time.Since(start))
		h.logger.Error("report render failed", zap.String("format", f.name), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(f.name, metrics.ResultSuccess, time.Since(start))

	filename := "water-report-" + report.To.Format("20060102-1504") + "." + f.extension
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
