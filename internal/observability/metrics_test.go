package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	h := collector.Middleware(func(*http.Request) string { return "/api/v1/requests/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(5 * time.Millisecond)
			w.WriteHeader(http.StatusNotFound)
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/requests/abc", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/requests/{id}", "GET", "404")); got != 1 {
		t.Fatalf("api_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "api_request_duration_seconds", map[string]string{
		"route":  "/api/v1/requests/{id}",
		"method": "GET",
	}); count != 1 {
		t.Fatalf("api_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}
	h := collector.Middleware(nil)(http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nope", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("unmatched", "POST", "404")); got != 1 {
		t.Fatalf("api_requests_total unmatched = %v, want 1", got)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "draining")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "Unavailable")); got != 1 {
		t.Fatalf("grpc_requests_total error label = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesCatalogGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}
	collector.SetCatalogCounts(3, 4, 5)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{
		"catalog_ground_stations 3",
		"catalog_satellites 4",
		"catalog_exclusion_cones 5",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func TestCollectorsTolerateDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector: %v", err)
	}
	second, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("second NewSchedulerCollector: %v", err)
	}
	second.SetPlanSize(2, 7)
	if got := testutil.ToFloat64(first.BookingsActive); got != 7 {
		t.Fatalf("shared scheduler_bookings_active = %v, want 7", got)
	}
}

func TestSchedulerCollectorRecordsPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector: %v", err)
	}

	c.ObservePass(120*time.Millisecond, true)
	c.ObservePass(10*time.Millisecond, false)
	c.AddShortfalls("rf", 2)
	c.AddShortfalls("rf", 0)
	c.IncCollaboratorFailure("availability")
	c.SetPassCacheHitRatio(1.5)

	if got := testutil.ToFloat64(c.PassesTotal.WithLabelValues("committed")); got != 1 {
		t.Fatalf("scheduler_passes_total{committed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PassesTotal.WithLabelValues("aborted")); got != 1 {
		t.Fatalf("scheduler_passes_total{aborted} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ShortfallsTotal.WithLabelValues("rf")); got != 2 {
		t.Fatalf("scheduler_shortfalls_total{rf} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.CollaboratorFailures.WithLabelValues("availability")); got != 1 {
		t.Fatalf("scheduler_collaborator_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PassCacheHitRatio); got != 1 {
		t.Fatalf("scheduler_pass_cache_hit_ratio = %v, want clamped 1", got)
	}
	if count := histogramSampleCount(t, reg, "scheduler_pass_duration_seconds", nil); count != 2 {
		t.Fatalf("scheduler_pass_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestNilSchedulerCollectorIsSafe(t *testing.T) {
	var c *SchedulerCollector
	c.ObservePass(time.Second, true)
	c.SetPlanSize(1, 1)
	c.AddShortfalls("contact", 1)
	c.IncCollaboratorFailure("store")
	c.SetPassCacheHitRatio(0.5)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector Gatherer() should be nil")
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":                             {"unknown", "unknown"},
		"/grpc.health.v1.Health/Check": {"Health", "Check"},
		"Health/Watch":                 {"Health", "Watch"},
		"nomethod":                     {"unknown", "unknown"},
	}
	for in, want := range cases {
		s, m := SplitMethod(in)
		if s != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, s, m, want[0], want[1])
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
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

func TestTracingConfigWithEnvOverlays(t *testing.T) {
	base := TracingConfig{ServiceName: "contact-scheduler", Exporter: ExporterStdout, SampleRatio: 1}
	t.Setenv("SCHED_TRACING_ENABLED", "true")
	t.Setenv("SCHED_TRACING_EXPORTER", "OTLP")
	t.Setenv("SCHED_TRACING_SAMPLE_RATIO", "2")
	t.Setenv("SCHED_OTLP_ENDPOINT", "collector:4317")

	got := base.WithEnv()
	if !got.Enabled || got.Exporter != ExporterOTLP || got.Endpoint != "collector:4317" {
		t.Fatalf("WithEnv() = %+v", got)
	}
	if got.SampleRatio != 1 {
		t.Fatalf("SampleRatio = %v, want out-of-range value ignored", got.SampleRatio)
	}
	if got.ServiceName != "contact-scheduler" {
		t.Fatalf("ServiceName = %q, want unchanged", got.ServiceName)
	}
}
