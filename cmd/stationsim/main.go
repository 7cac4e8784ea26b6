package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/stationsim"
	"github.com/signalsfoundry/contact-scheduler/model"
)

func main() {
	addr := flag.String("addr", ":8000", "HTTP address the station simulator listens on")
	busyStation := flag.String("busy-station", "", "station to preload with a busy window")
	busyFrom := flag.String("busy-from", "", "start of the preloaded busy window (RFC3339)")
	busyFor := flag.Duration("busy-for", time.Hour, "length of the preloaded busy window")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	srv := stationsim.New(log)
	if *busyStation != "" {
		if err := preload(srv, *busyStation, *busyFrom, *busyFor); err != nil {
			log.Error(ctx, "failed to preload busy window", logging.Err(err))
			os.Exit(1)
		}
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           otelhttp.NewHandler(srv.Handler(), "station-simulator"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info(ctx, "starting station simulator", logging.String("addr", *addr))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "station simulator exited", logging.Err(err))
			os.Exit(1)
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down station simulator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func preload(srv *stationsim.Server, station, from string, d time.Duration) error {
	start := time.Now().UTC().Truncate(time.Minute)
	if from != "" {
		t, err := availability.ParseTime(from)
		if err != nil {
			return err
		}
		start = t
	}
	return srv.Set(station, model.Interval{Start: start, End: start.Add(d)}, availability.StateBothBusy, "preload")
}
