package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cleanroom/internal/metrics"
	"github.com/hitoshi/cleanroom/internal/middleware"
	"github.com/hitoshi/cleanroom/internal/model"
)

// newTestRouter はモックサービスで構成したルーターを返す。
func newTestRouter(svc OverlapServiceInterface, reg *prometheus.Registry) (http.Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	deps := &RouterDeps{
		OverlapService:    svc,
		HealthChecker:     &mockHealthChecker{},
		CORSAllowedOrigin: "*",
		Logger:            slog.New(slog.NewJSONHandler(&buf, nil)),
	}
	if reg != nil {
		deps.Metrics = metrics.NewCollector(reg)
		deps.Gatherer = reg
	}
	return NewRouter(deps), &buf
}

func TestNewRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(&mockOverlapService{}, nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/segment", http.StatusOK},
		{http.MethodPost, "/refresh", http.StatusOK},
		{http.MethodGet, "/history", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/unknown", http.StatusNotFound},
		{http.MethodGet, "/refresh", http.StatusMethodNotAllowed},
		{http.MethodPost, "/segment", http.StatusMethodNotAllowed},
		{http.MethodGet, "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_NotFound_UsesUnifiedErrorFormat(t *testing.T) {
	router, _ := newTestRouter(&mockOverlapService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if body := parseAPIErrorResponse(t, w); body["code"] != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", body["code"])
	}
}

func TestNewRouter_PreflightRefresh_Returns204(t *testing.T) {
	router, _ := newTestRouter(&mockOverlapService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/refresh", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestNewRouter_SetsRequestIDAndLogs(t *testing.T) {
	router, buf := newTestRouter(&mockOverlapService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/segment", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(middleware.RequestIDHeader); got != "req-42" {
		t.Errorf("%s = %q, want req-42", middleware.RequestIDHeader, got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse access log: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "http_request" || entry["request_id"] != "req-42" {
		t.Errorf("unexpected access log entry: %v", entry)
	}
}

// parseAccessLog はアクセスログ1行をパースする。
func parseAccessLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse access log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestNewRouter_RefreshLogsOutcome(t *testing.T) {
	router, buf := newTestRouter(&mockOverlapService{
		refreshAndRecordFn: func(ctx context.Context) (model.OverlapResult, error) {
			return model.OverlapResult{OverlapCount: 5, TotalA: 20, TotalB: 17, PercentOverlap: 15.62}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/refresh", nil))

	entry := parseAccessLog(t, buf)
	if entry["refresh_outcome"] != "recorded" {
		t.Errorf("refresh_outcome = %v, want recorded", entry["refresh_outcome"])
	}
	if entry["overlap_count"] != float64(5) || entry["percent_overlap"] != 15.62 {
		t.Errorf("unexpected overlap attrs in access log: %v", entry)
	}
}

func TestNewRouter_RefreshFailureLogsOutcomeAndErrorCode(t *testing.T) {
	router, buf := newTestRouter(&mockOverlapService{
		refreshAndRecordFn: func(ctx context.Context) (model.OverlapResult, error) {
			return model.OverlapResult{}, model.StorageError("failed to append snapshot", errors.New("down"))
		},
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/refresh", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	entry := parseAccessLog(t, buf)
	if entry["refresh_outcome"] != "failed" {
		t.Errorf("refresh_outcome = %v, want failed", entry["refresh_outcome"])
	}
	if entry["error_code"] != "STORAGE_UNAVAILABLE" {
		t.Errorf("error_code = %v, want STORAGE_UNAVAILABLE", entry["error_code"])
	}
	if _, ok := entry["overlap_count"]; ok {
		t.Error("failed refresh must not log overlap counts")
	}
}

func TestNewRouter_HistoryLogsSnapshotCount(t *testing.T) {
	router, buf := newTestRouter(&mockOverlapService{
		getHistoryFn: func(ctx context.Context) ([]*model.OverlapSnapshot, error) {
			return []*model.OverlapSnapshot{{ID: 1}, {ID: 2}}, nil
		},
	}, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history", nil))

	if entry := parseAccessLog(t, buf); entry["snapshot_count"] != float64(2) {
		t.Errorf("snapshot_count = %v, want 2", entry["snapshot_count"])
	}
}

func TestNewRouter_PanicIsRecovered(t *testing.T) {
	router, _ := newTestRouter(&mockOverlapService{
		computeOverlapFn: func(ctx context.Context) (model.OverlapResult, error) {
			panic("boom")
		},
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/segment", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestNewRouter_MetricsEndpointAndStatusCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	router, _ := newTestRouter(&mockOverlapService{}, reg)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/segment", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `cleanroom_http_status_total{status_code="200"}`) {
		t.Errorf("metrics output missing http status counter:\n%s", w.Body.String())
	}
}
