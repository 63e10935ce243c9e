package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestEchoMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPanelCollector(reg)
	if err != nil {
		t.Fatalf("NewPanelCollector: %v", err)
	}

	e := echo.New()
	e.Use(collector.EchoMiddleware())
	e.GET("/api/system", func(c echo.Context) error {
		time.Sleep(5 * time.Millisecond)
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/system", nil)
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/api/system", "200")); got != 1 {
		t.Fatalf("panel_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "panel_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/api/system",
	}); count != 1 {
		t.Fatalf("panel_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestEchoMiddlewareLabelsRoutePatternAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPanelCollector(reg)
	if err != nil {
		t.Fatalf("NewPanelCollector: %v", err)
	}

	e := echo.New()
	e.Use(collector.EchoMiddleware())
	e.GET("/api/tapes/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no such tape")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tapes/99", nil)
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	// The label carries the route pattern, not the concrete URL.
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/api/tapes/:id", "404")); got != 1 {
		t.Fatalf("panel_http_requests_total 404 label = %v, want 1", got)
	}
}

func TestRecordCommandOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPanelCollector(reg)
	if err != nil {
		t.Fatalf("NewPanelCollector: %v", err)
	}

	collector.RecordCommand("addTape", true)
	collector.RecordCommand("removeTape", false)
	collector.RecordCommand("removeTape", false)

	if got := testutil.ToFloat64(collector.Commands.WithLabelValues("addTape", "applied")); got != 1 {
		t.Fatalf("applied count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Commands.WithLabelValues("removeTape", "rejected")); got != 2 {
		t.Fatalf("rejected count = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesPanelGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPanelCollector(reg)
	if err != nil {
		t.Fatalf("NewPanelCollector: %v", err)
	}
	collector.SetPanelCounts(2, 12, 8, 33, 3)
	collector.ObserveSimTick(12 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"panel_tapes 2",
		"panel_segments 12",
		"panel_active_segments 8",
		"panel_sensors 33",
		"panel_unacked_alerts 3",
		"panel_sim_ticks_total 1",
		"panel_sim_tick_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
