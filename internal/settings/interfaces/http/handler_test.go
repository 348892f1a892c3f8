package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	settingsapp "watertap/internal/settings/application"
	settings "watertap/internal/settings/domain"
	"watertap/internal/settings/infrastructure/memory"
)

func newHandler(t *testing.T) (*Handler, *memory.ScheduleRepository) {
	t.Helper()
	repo := memory.NewScheduleRepository()
	svc, err := settingsapp.NewService(repo, time.UTC, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewHandler(svc, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, repo
}

func decodeSchedule(t *testing.T, resp *httptest.ResponseRecorder) settings.Schedule {
	t.Helper()
	var s settings.Schedule
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v (%s)", err, resp.Body.String())
	}
	return s
}

func TestGetCreatesDefault(t *testing.T) {
	handler, repo := newHandler(t)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/ai/settings", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	s := decodeSchedule(t, resp)
	if s.ID == 0 || !s.AIEnabled || s.WorkStart.String() != "08:00" {
		t.Fatalf("unexpected default: %+v", s)
	}
	if repo.Saves() != 1 {
		t.Fatalf("expected one save, got %d", repo.Saves())
	}
}

func TestSaveMergesOntoExistingRow(t *testing.T) {
	handler, _ := newHandler(t)
	body := `{"aiEnabled":true,"workStart":"22:00","workEnd":"06:00","saturday":true}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ai/settings", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	saved := decodeSchedule(t, resp)
	if saved.ID != 1 || saved.WorkStart.String() != "22:00" || !saved.Saturday || saved.Monday {
		t.Fatalf("unexpected saved schedule: %+v", saved)
	}
}

func TestSaveRejectsInvalidTime(t *testing.T) {
	handler, _ := newHandler(t)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ai/settings", strings.NewReader(`{"workStart":"25:00"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestEnableDisable(t *testing.T) {
	handler, _ := newHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ai/disable", nil))
	if s := decodeSchedule(t, resp); s.AIEnabled {
		t.Fatalf("expected disabled")
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ai/enable", nil))
	if s := decodeSchedule(t, resp); !s.AIEnabled {
		t.Fatalf("expected enabled")
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/ai/enable", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
