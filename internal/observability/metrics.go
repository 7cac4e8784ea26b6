package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// ServerCollector bundles Prometheus metrics for the HTTP API and the gRPC
// health endpoint, plus catalog size gauges.
type ServerCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
	RPCRequests   *prometheus.CounterVec

	CatalogStations   prometheus.Gauge
	CatalogSatellites prometheus.Gauge
	CatalogCones      prometheus.Gauge
}

// NewServerCollector registers server metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewServerCollector(reg prometheus.Registerer) (*ServerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of handled API requests, labeled by route, method and status code.",
	}, []string{"route", "method", "code"}), "api_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "api_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	rpcs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method and status code.",
	}, []string{"service", "method", "code"}), "grpc_requests_total")
	if err != nil {
		return nil, err
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_ground_stations",
		Help: "Current number of ground stations in the catalog.",
	}), "catalog_ground_stations")
	if err != nil {
		return nil, err
	}
	satellites, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_satellites",
		Help: "Current number of satellites in the catalog.",
	}), "catalog_satellites")
	if err != nil {
		return nil, err
	}
	cones, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_exclusion_cones",
		Help: "Current number of exclusion cones in the catalog.",
	}), "catalog_exclusion_cones")
	if err != nil {
		return nil, err
	}

	return &ServerCollector{
		gatherer:          gatherer,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
		RPCRequests:       rpcs,
		CatalogStations:   stations,
		CatalogSatellites: satellites,
		CatalogCones:      cones,
	}, nil
}

// Middleware records request counts and durations. route names the matched
// route after the handler has run; nil or an empty result labels the
// request "unmatched".
func (c *ServerCollector) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if c == nil {
				return
			}
			name := ""
			if route != nil {
				name = route(r)
			}
			if name == "" {
				name = "unmatched"
			}
			if c.HTTPRequests != nil {
				c.HTTPRequests.WithLabelValues(name, r.Method, strconv.Itoa(sw.status)).Inc()
			}
			if c.HTTPDurations != nil {
				c.HTTPDurations.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// UnaryServerInterceptor records request counts for unary RPCs.
func (c *ServerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)

		if c == nil || c.RPCRequests == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ServerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetCatalogCounts updates the catalog size gauges.
func (c *ServerCollector) SetCatalogCounts(stations, satellites, cones int) {
	if c == nil {
		return
	}
	if c.CatalogStations != nil {
		c.CatalogStations.Set(float64(stations))
	}
	if c.CatalogSatellites != nil {
		c.CatalogSatellites.Set(float64(satellites))
	}
	if c.CatalogCones != nil {
		c.CatalogCones.Set(float64(cones))
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
