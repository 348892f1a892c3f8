package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"watertap/internal/audit"
	telemetryapp "watertap/internal/telemetry/application"
	telemetry "watertap/internal/telemetry/domain"
	"watertap/internal/telemetry/infrastructure/memory"
	"watertap/internal/telemetry/live"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

var now = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) *telemetryapp.Service {
	t.Helper()
	series := memory.NewSeriesStore()
	svc, err := telemetryapp.NewService(series, series, memory.NewExclusionStore(), telemetryapp.WithClock(fakeClock{now: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func decodePoints(t *testing.T, resp *httptest.ResponseRecorder) []telemetry.TelemetryPoint {
	t.Helper()
	var points []telemetry.TelemetryPoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		t.Fatalf("decode: %v (%s)", err, resp.Body.String())
	}
	return points
}

func TestUploadThenHistory(t *testing.T) {
	svc := newService(t)
	handler, err := NewHandler(svc, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `[
		{"timestamp":"2025-03-03T09:30:00Z","sensorId":1,"ph":7.1,"turbidity":0.4,"conductivity":320,"flowRate":0.5},
		{"timestamp":"2025-03-03T09:40:00Z","sensorId":2,"ph":6.9,"flowRate":null}
	]`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sensors/upload", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sensors/history?from=2025-03-03T09:00:00Z&to=2025-03-03T10:00:00Z", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.Code)
	}
	points := decodePoints(t, resp)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].FlowRate != nil {
		t.Fatalf("expected absent flow to stay nil")
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sensors/history/since?amount=25&unit=minutos", nil))
	if got := decodePoints(t, resp); len(got) != 1 || *got[0].SensorID != 2 {
		t.Fatalf("expected only the 09:40 point, got %+v", got)
	}
}

func TestUploadRejectsPointWithoutIdentity(t *testing.T) {
	handler, _ := NewHandler(newService(t), nil, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sensors/upload", strings.NewReader(`[{"ph":7}]`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDeleteDataHidesPoints(t *testing.T) {
	svc := newService(t)
	_ = svc.Save(context.Background(), []telemetry.TelemetryPoint{
		{At: now.Add(-20 * time.Minute), SensorID: telemetry.Sensor(1), PH: telemetry.Float(7)},
		{At: now.Add(-10 * time.Minute), SensorID: telemetry.Sensor(2), PH: telemetry.Float(7)},
	})
	recorder := &recordingAudit{}
	handler, _ := NewHandler(svc, recorder, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/v1/sensors/data", strings.NewReader(`{"sensorIds":[1,null]}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if strings.TrimSpace(resp.Body.String()) != "1" {
		t.Fatalf("expected one range, got %s", resp.Body.String())
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != "telemetry.delete" {
		t.Fatalf("expected audit entry, got %+v", recorder.entries)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sensors/history/since?amount=1&unit=h", nil))
	if got := decodePoints(t, resp); len(got) != 1 || *got[0].SensorID != 2 {
		t.Fatalf("expected sensor 1 hidden, got %+v", got)
	}
}

type failingService struct{ *telemetryapp.Service }

func (failingService) History(context.Context, time.Time, time.Time) ([]telemetry.TelemetryPoint, error) {
	return nil, telemetry.ErrDataSourceUnavailable
}

func TestErrorMapping(t *testing.T) {
	handler, _ := NewHandler(failingService{newService(t)}, nil, nil)
	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/sensors/history?from=2025-03-03T09:00:00Z&to=2025-03-03T10:00:00Z", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/sensors/history?from=bad&to=2025-03-03T10:00:00Z", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/sensors/history?from=2025-03-03T11:00:00Z&to=2025-03-03T10:00:00Z", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/sensors/history/since?amount=x", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/sensors/history/since?agg=5m", "", http.StatusBadRequest},
		{http.MethodDelete, "/api/v1/sensors/data", `{"sensorIds":[]}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/sensors/data", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/sensors/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}

type staticSource struct {
	points []telemetry.TelemetryPoint
	err    error
}

func (s staticSource) Recent(context.Context, time.Duration) ([]telemetry.TelemetryPoint, error) {
	return s.points, s.err
}

func TestStreamPushesFeedSnapshots(t *testing.T) {
	feed, err := live.NewFeed(staticSource{points: []telemetry.TelemetryPoint{
		{At: now, SensorID: telemetry.Sensor(5), PH: telemetry.Float(7.3)},
	}})
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	if err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	server := httptest.NewServer(NewStreamHandler(feed, time.Minute, nil))
	defer server.Close()
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	var points []telemetry.TelemetryPoint
	if err := json.Unmarshal([]byte(data), &points); err != nil || len(points) != 1 || *points[0].SensorID != 5 {
		t.Fatalf("unexpected stream payload %s (%v)", data, err)
	}
}

func TestStreamRejectsPost(t *testing.T) {
	handler := NewStreamHandler(nil, 0, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sensors/stream", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
