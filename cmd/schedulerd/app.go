package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/config"
	"github.com/signalsfoundry/contact-scheduler/internal/events"
	"github.com/signalsfoundry/contact-scheduler/internal/lock"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/observability"
	"github.com/signalsfoundry/contact-scheduler/internal/service"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
)

// app holds the wired scheduler and everything that must be closed with
// it.
type app struct {
	store     *store.Store
	sched     *service.Scheduler
	metrics   *observability.SchedulerCollector
	publisher events.Publisher
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	st, err := store.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}

	metrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("scheduler metrics: %w", err)
	}
	a.metrics = metrics

	var oracle availability.Oracle
	if cfg.Availability.URL != "" {
		oracle = availability.NewClient(cfg.Availability.URL,
			availability.WithTimeout(cfg.Availability.Timeout),
			availability.WithLogger(log))
		log.Info(ctx, "using station simulator", logging.String("url", cfg.Availability.URL))
	} else {
		oracle = availability.NewMemory()
		log.Warn(ctx, "no station simulator configured; using in-process availability")
	}

	var locker lock.Locker = lock.NewMutex()
	if cfg.Lock.Backend == config.LockRedis {
		rl, err := lock.NewRedis(ctx, cfg.Lock.Redis, log)
		if err != nil {
			return nil, err
		}
		locker = rl
		a.closers = append(a.closers, rl.Close)
	}

	a.publisher = events.Noop{}
	if cfg.Events.Backend == config.EventsNATS {
		pub, err := events.NewNATS(cfg.Events.NATS, log)
		if err != nil {
			return nil, err
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	opts := []service.Option{
		service.WithLocker(locker),
		service.WithPublisher(a.publisher),
		service.WithMetrics(metrics),
		service.WithLogger(log),
		service.WithSlotDuration(cfg.Allocator.SlotDuration),
		service.WithReserveOnCommit(cfg.Availability.ReserveOnCommit),
	}
	if cfg.Allocator.VisibilityRule {
		passes, err := core.NewCachedOracle(core.NewPassFinder(), cfg.Allocator.PassCacheSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithVisibility(passes, cfg.Allocator.VisibilityParallelism))
	}
	if cfg.Allocator.ExclusionRule {
		opts = append(opts, service.WithExclusion(core.ExclusionCalculator{}))
	}

	a.sched = service.New(st, st, st, oracle, opts...)
	ok = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
