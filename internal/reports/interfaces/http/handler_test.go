package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	reportapp "watertap/internal/reports/application"
	telemetry "watertap/internal/telemetry/domain"
)

type stubHistory struct {
	now  time.Time
	from time.Time
	err  error
}

func (s *stubHistory) Now() time.Time { return s.now }

func (s *stubHistory) RawHistory(_ context.Context, from, _ time.Time) ([]telemetry.TelemetryPoint, error) {
	s.from = from
	if s.err != nil {
		return nil, s.err
	}
	return []telemetry.TelemetryPoint{
		{At: s.now.Add(-time.Minute), SensorID: telemetry.Sensor(1), PH: telemetry.Float(7)},
	}, nil
}

func newHandler(t *testing.T, history *stubHistory) *Handler {
	t.Helper()
	svc, err := reportapp.NewService(history, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewHandler(svc, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func TestReportFormats(t *testing.T) {
	history := &stubHistory{now: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)}
	handler := newHandler(t, history)

	cases := []struct {
		path        string
		contentType string
		prefix      []byte
	}{
		{"/api/v1/reports?amount=6&unit=h", "application/pdf", []byte("%PDF")},
		{"/api/v1/reports/csv?amount=30&unit=minutos", "text/csv", []byte("# raw")},
		{"/api/v1/reports/xlsx?amount=2&unit=d", xlsxContentType, []byte("PK")},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.Code)
		}
		if resp.Header().Get("Content-Type") != tc.contentType {
			t.Fatalf("%s: unexpected content type %s", tc.path, resp.Header().Get("Content-Type"))
		}
		if !strings.Contains(resp.Header().Get("Content-Disposition"), "attachment") {
			t.Fatalf("%s: expected attachment disposition", tc.path)
		}
		if !bytes.HasPrefix(resp.Body.Bytes(), tc.prefix) {
			t.Fatalf("%s: unexpected body prefix", tc.path)
		}
	}
	if want := history.now.Add(-48 * time.Hour); !history.from.Equal(want) {
		t.Fatalf("expected two-day range start %s, got %s", want, history.from)
	}
}

func TestReportErrors(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	handler := newHandler(t, &stubHistory{now: now})
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/v1/reports", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/reports/docx", http.StatusNotFound},
		{http.MethodGet, "/api/v1/reports?amount=x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}

	failing := newHandler(t, &stubHistory{now: now, err: telemetry.ErrDataSourceUnavailable})
	resp := httptest.NewRecorder()
	failing.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/reports/csv", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
