package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, stubPinger{}, testLogger())
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != "ok" {
			t.Errorf("status = %v, want ok", body["status"])
		}
	})

	t.Run("degraded on backend failure", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, stubPinger{err: errors.New("connection refused")}, testLogger())
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != "degraded" {
			t.Errorf("status = %v, want degraded", body["status"])
		}
		checks := body["checks"].(map[string]any)
		if checks["postgres"] != "ok" {
			t.Errorf("postgres check = %v, want ok", checks["postgres"])
		}
		if checks["redis"] == "ok" {
			t.Error("redis check should carry the failure")
		}
	})

	t.Run("nil backends skipped", func(t *testing.T) {
		h := NewHealthHandler(nil, nil, testLogger())
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 when nothing is wired", rec.Code)
		}
	})
}
