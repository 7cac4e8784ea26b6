package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/contact-scheduler/internal/api"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/observability"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler API",
		Long:  "Serve the HTTP API, Prometheus metrics and gRPC health, and reschedule periodically when configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	cfg, log := c.cfg, c.log

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	serverMetrics, err := observability.NewServerCollector(reg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn(context.Background(), "close resources", logging.Err(err))
		}
	}()

	if stations, sats, cones, err := a.store.CatalogCounts(ctx); err == nil {
		serverMetrics.SetCatalogCounts(stations, sats, cones)
	} else {
		log.Warn(ctx, "count catalog", logging.Err(err))
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(a.sched, a.store, serverMetrics, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := serveMetrics(cfg.Metrics.Addr, serverMetrics, log)

	healthSrv := health.NewServer()
	grpcSrv, err := serveHealth(ctx, cfg.GRPC.Addr, healthSrv, serverMetrics, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "starting scheduler API", logging.String("addr", cfg.HTTP.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if interval := cfg.Allocator.RescheduleInterval; interval > 0 {
		go func() {
			log.Info(ctx, "periodic reschedule enabled", logging.Duration("interval", interval))
			if err := a.sched.RunPeriodic(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error(ctx, "scheduler stopped", logging.Err(runErr))
	}

	log.Info(context.Background(), "shutting down scheduler")
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "api shutdown", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.ServerCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// serveHealth exposes the standard gRPC health service. An empty address
// disables it.
func serveHealth(ctx context.Context, addr string, hs *health.Server, collector *observability.ServerCollector, log logging.Logger) (*grpc.Server, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()),
	)
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	log.Info(ctx, "starting gRPC health server", logging.String("addr", addr))
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Warn(context.Background(), "gRPC health server exited", logging.Err(err))
		}
	}()
	return srv, nil
}
