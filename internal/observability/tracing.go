package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
)

// TracerName is the instrumentation scope used for scheduler spans.
const TracerName = "github.com/signalsfoundry/contact-scheduler"

// Tracer returns the scheduler tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Exporters accepted by TracingConfig.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Exporter       string  `yaml:"exporter"`
	Endpoint       string  `yaml:"endpoint"` // OTLP collector host:port
	Insecure       bool    `yaml:"insecure"` // plaintext OTLP
	SampleRatio    float64 `yaml:"sample_ratio"`
}

// WithEnv overlays any SCHED_TRACING_* and SCHED_OTLP_* variables that are
// set onto c.
func (c TracingConfig) WithEnv() TracingConfig {
	if v, ok := os.LookupEnv("SCHED_TRACING_ENABLED"); ok {
		c.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SCHED_TRACING_EXPORTER"); v != "" {
		c.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("SCHED_TRACING_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("SCHED_TRACING_SAMPLE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0 && ratio <= 1 {
			c.SampleRatio = ratio
		}
	}
	if v := os.Getenv("SCHED_OTLP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v, ok := os.LookupEnv("SCHED_OTLP_INSECURE"); ok {
		c.Insecure = strings.EqualFold(v, "true") || v == "1"
	}
	return c
}

// InitTracing installs the global tracer provider and propagators. When
// tracing is disabled a noop provider is installed. The returned function
// flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", exporterName(cfg)),
		logging.String("service_name", cfg.ServiceName),
		logging.Any("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "contact-scheduler"),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func exporterName(cfg TracingConfig) string {
	if cfg.Exporter == "" {
		return ExporterStdout
	}
	return strings.ToLower(cfg.Exporter)
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch exporterName(cfg) {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithoutTimestamps())
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		creds := credentials.NewTLS(nil)
		if cfg.Insecure {
			creds = insecure.NewCredentials()
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout runs shutdown with a five second budget and logs,
// rather than returns, any error.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil && log != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
