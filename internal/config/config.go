// Package config loads scheduler configuration from defaults, an optional
// YAML file and SCHED_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/allocator"
	"github.com/signalsfoundry/contact-scheduler/internal/events"
	"github.com/signalsfoundry/contact-scheduler/internal/lock"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/observability"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
)

// Lock and event backends.
const (
	LockMutex = "mutex"
	LockRedis = "redis"

	EventsNone = "none"
	EventsNATS = "nats"
)

// Config covers process level configuration.
type Config struct {
	HTTP         HTTPConfig                  `yaml:"http"`
	Metrics      MetricsConfig               `yaml:"metrics"`
	GRPC         GRPCConfig                  `yaml:"grpc"`
	Database     store.Config                `yaml:"database"`
	Availability AvailabilityConfig          `yaml:"availability"`
	Allocator    AllocatorConfig             `yaml:"allocator"`
	Lock         LockConfig                  `yaml:"lock"`
	Events       EventsConfig                `yaml:"events"`
	Tracing      observability.TracingConfig `yaml:"tracing"`
	Logging      logging.Config              `yaml:"logging"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// GRPCConfig configures the health service listener; an empty address
// disables it.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// AvailabilityConfig selects the station availability oracle. An empty
// URL uses the in-process oracle.
type AvailabilityConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	ReserveOnCommit bool          `yaml:"reserve_on_commit"`
}

type AllocatorConfig struct {
	SlotDuration          time.Duration `yaml:"slot_duration"`
	VisibilityRule        bool          `yaml:"visibility_rule"`
	VisibilityParallelism int           `yaml:"visibility_parallelism"`
	PassCacheSize         int           `yaml:"pass_cache_size"`
	ExclusionRule         bool          `yaml:"exclusion_rule"`
	// RescheduleInterval, when positive, runs a full pass periodically.
	RescheduleInterval time.Duration `yaml:"reschedule_interval"`
}

type LockConfig struct {
	Backend string           `yaml:"backend"`
	Redis   lock.RedisConfig `yaml:"redis"`
}

type EventsConfig struct {
	Backend string            `yaml:"backend"`
	NATS    events.NATSConfig `yaml:"nats"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second},
		Metrics:  MetricsConfig{Addr: ":9090"},
		GRPC:     GRPCConfig{Addr: ":9091"},
		Database: store.Config{Backend: store.BackendSQLite, DSN: "scheduler.db"},
		Availability: AvailabilityConfig{
			Timeout: 5 * time.Second,
		},
		Allocator: AllocatorConfig{
			SlotDuration:          allocator.DefaultSlotDuration,
			VisibilityParallelism: allocator.DefaultRuleParallelism,
			PassCacheSize:         core.DefaultPassCacheSize,
		},
		Lock:   LockConfig{Backend: LockMutex, Redis: lock.RedisConfig{Addr: "localhost:6379"}},
		Events: EventsConfig{Backend: EventsNone, NATS: events.DefaultNATSConfig()},
		Tracing: observability.TracingConfig{
			Exporter:    observability.ExporterStdout,
			ServiceName: "contact-scheduler",
			Insecure:    true,
			SampleRatio: 1,
		},
		Logging: logging.Config{Level: "info", Format: "text", Backend: logging.BackendSlog},
	}
}

// Load reads path (if non-empty) over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("SCHED_HTTP_ADDR", c.HTTP.Addr)
	c.Metrics.Addr = getEnv("SCHED_METRICS_ADDR", c.Metrics.Addr)
	c.GRPC.Addr = getEnv("SCHED_GRPC_ADDR", c.GRPC.Addr)

	c.Database.Backend = store.Backend(getEnv("SCHED_DB_BACKEND", string(c.Database.Backend)))
	c.Database.DSN = getEnv("SCHED_DB_DSN", c.Database.DSN)

	c.Availability.URL = getEnv("SCHED_STATION_SIM_URL", c.Availability.URL)
	c.Availability.Timeout = getEnvDuration("SCHED_STATION_SIM_TIMEOUT", c.Availability.Timeout)
	c.Availability.ReserveOnCommit = getEnvBool("SCHED_RESERVE_ON_COMMIT", c.Availability.ReserveOnCommit)

	c.Allocator.SlotDuration = getEnvDuration("SCHED_SLOT_DURATION", c.Allocator.SlotDuration)
	c.Allocator.VisibilityRule = getEnvBool("SCHED_VISIBILITY_RULE", c.Allocator.VisibilityRule)
	c.Allocator.ExclusionRule = getEnvBool("SCHED_EXCLUSION_RULE", c.Allocator.ExclusionRule)
	c.Allocator.RescheduleInterval = getEnvDuration("SCHED_RESCHEDULE_INTERVAL", c.Allocator.RescheduleInterval)

	c.Lock.Backend = getEnv("SCHED_LOCK_BACKEND", c.Lock.Backend)
	c.Lock.Redis.Addr = getEnv("SCHED_REDIS_ADDR", c.Lock.Redis.Addr)
	c.Lock.Redis.Password = getEnv("SCHED_REDIS_PASSWORD", c.Lock.Redis.Password)
	c.Lock.Redis.DB = getEnvInt("SCHED_REDIS_DB", c.Lock.Redis.DB)

	c.Events.Backend = getEnv("SCHED_EVENTS_BACKEND", c.Events.Backend)
	c.Events.NATS.URL = getEnv("SCHED_NATS_URL", c.Events.NATS.URL)
	c.Events.NATS.Subject = getEnv("SCHED_NATS_SUBJECT", c.Events.NATS.Subject)

	c.Tracing = c.Tracing.WithEnv()

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Backend = getEnv("LOG_BACKEND", c.Logging.Backend)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Backend {
	case store.BackendSQLite, store.BackendPostgres, store.BackendMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.backend %q: want sqlite, postgres or mysql", c.Database.Backend))
	}
	if c.Database.Backend != store.BackendSQLite && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Availability.Timeout <= 0 {
		errs = append(errs, errors.New("availability.timeout must be positive"))
	}
	if c.Availability.ReserveOnCommit && c.Availability.URL == "" {
		errs = append(errs, errors.New("availability.reserve_on_commit needs availability.url"))
	}
	if c.Allocator.SlotDuration <= 0 {
		errs = append(errs, errors.New("allocator.slot_duration must be positive"))
	}
	if c.Allocator.SlotDuration%time.Second != 0 {
		errs = append(errs, errors.New("allocator.slot_duration must be whole seconds"))
	}
	if c.Allocator.RescheduleInterval < 0 {
		errs = append(errs, errors.New("allocator.reschedule_interval must not be negative"))
	}
	switch c.Lock.Backend {
	case LockMutex:
	case LockRedis:
		if c.Lock.Redis.Addr == "" {
			errs = append(errs, errors.New("lock.redis.addr is required for the redis lock"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q: want mutex or redis", c.Lock.Backend))
	}
	switch c.Events.Backend {
	case EventsNone, "":
	case EventsNATS:
		if c.Events.NATS.URL == "" {
			errs = append(errs, errors.New("events.nats.url is required for nats events"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.backend %q: want none or nats", c.Events.Backend))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
