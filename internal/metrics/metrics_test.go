package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/cleanroom/internal/model"
)

// findMetric はレジストリから指定名のメトリクスを取得するヘルパー。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はラベル値に一致するメトリクスのカウンタ値を返す。
func labelValue(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if NewCollector(reg) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordOverlapComputed_UpdatesCounterAndGauges は計算成功でカウンタとゲージが更新されることを検証する。
func TestRecordOverlapComputed_UpdatesCounterAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOverlapComputed(model.OverlapResult{OverlapCount: 4, TotalA: 10, TotalB: 8, PercentOverlap: 28.57}, 20*time.Millisecond)
	c.RecordOverlapComputed(model.OverlapResult{OverlapCount: 1, TotalA: 2, TotalB: 2, PercentOverlap: 33.33}, 10*time.Millisecond)

	if v := findMetric(t, reg, "cleanroom_overlap_computed_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("overlap_computed_total = %v, want 2", v)
	}
	if v := findMetric(t, reg, "cleanroom_overlap_count").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("overlap_count = %v, want 1", v)
	}
	if v := findMetric(t, reg, "cleanroom_overlap_percent").GetMetric()[0].GetGauge().GetValue(); v != 33.33 {
		t.Errorf("overlap_percent = %v, want 33.33", v)
	}
	if n := findMetric(t, reg, "cleanroom_overlap_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("latency sample count = %d, want 2", n)
	}
}

// TestRecordRefresh_LabelsByResult はリフレッシュ結果がラベル別に記録されることを検証する。
func TestRecordRefresh_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRefresh(true)
	c.RecordRefresh(true)
	c.RecordRefresh(false)

	mf := findMetric(t, reg, "cleanroom_refresh_total")
	if v := labelValue(mf, "result", "success"); v != 2 {
		t.Errorf("refresh success = %v, want 2", v)
	}
	if v := labelValue(mf, "result", "failure"); v != 1 {
		t.Errorf("refresh failure = %v, want 1", v)
	}
}

// TestRecordCache_HitAndMiss はキャッシュのヒット・ミスが記録されることを検証する。
func TestRecordCache_HitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordCacheMiss()

	mf := findMetric(t, reg, "cleanroom_cache_requests_total")
	if v := labelValue(mf, "result", "hit"); v != 1 {
		t.Errorf("cache hit = %v, want 1", v)
	}
	if v := labelValue(mf, "result", "miss"); v != 2 {
		t.Errorf("cache miss = %v, want 2", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(503)

	mf := findMetric(t, reg, "cleanroom_http_status_total")
	if v := labelValue(mf, "status_code", "200"); v != 2 {
		t.Errorf("status 200 = %v, want 2", v)
	}
	if v := labelValue(mf, "status_code", "503"); v != 1 {
		t.Errorf("status 503 = %v, want 1", v)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOverlapComputed(model.OverlapResult{}, time.Millisecond)
	c.RecordOverlapFailure()
	c.RecordRefresh(true)
	c.RecordSnapshotAppended()
	c.RecordHTTPStatus(200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"cleanroom_overlap_computed_total",
		"cleanroom_overlap_fail_total",
		"cleanroom_refresh_total",
		"cleanroom_snapshots_appended_total",
		"cleanroom_http_status_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = NewCollector(prometheus.NewRegistry())
}
