package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
)

const (
	defaultKey   = "contact-scheduler:reschedule"
	defaultLease = 30 * time.Second
	defaultRetry = 200 * time.Millisecond
)

// Only the holder may extend or release the lease.
var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// RedisConfig configures a Redis lease lock.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Lease    time.Duration `yaml:"lease"`
	Retry    time.Duration `yaml:"retry"`
}

// Redis is a Locker shared by every scheduler instance using the same
// Redis key. The lease is renewed while fn runs; fn's context is cancelled
// if the lease is lost.
type Redis struct {
	client redis.UniversalClient
	key    string
	lease  time.Duration
	retry  time.Duration
	log    logging.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, log logging.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, cfg RedisConfig, log logging.Logger) *Redis {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.Retry <= 0 {
		cfg.Retry = defaultRetry
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Redis{client: client, key: cfg.Key, lease: cfg.Lease, retry: cfg.Retry, log: log}
}

// Do implements Locker.
func (r *Redis) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	if err := r.acquire(ctx, token); err != nil {
		return err
	}

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	go r.keepAlive(fnCtx, cancel, token, done)

	err := fn(fnCtx)
	close(done)

	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer releaseCancel()
	if rerr := releaseScript.Run(releaseCtx, r.client, []string{r.key}, token).Err(); rerr != nil {
		r.log.Warn(ctx, "release reschedule lock", logging.String("key", r.key), logging.Err(rerr))
	}
	if err == nil {
		if cause := context.Cause(fnCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
	}
	return err
}

func (r *Redis) acquire(ctx context.Context, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.lease).Result()
		if err != nil {
			return fmt.Errorf("%w: set %s: %v", ErrLockNotAcquired, r.key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Redis) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, token string, done <-chan struct{}) {
	ticker := time.NewTicker(r.lease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, r.client, []string{r.key}, token, r.lease.Milliseconds()).Int()
			if err != nil || n == 0 {
				r.log.Error(ctx, "reschedule lock lease lost", logging.String("key", r.key), logging.Err(err))
				cancel(fmt.Errorf("%w: lease on %s lost", ErrLockNotAcquired, r.key))
				return
			}
		}
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error { return r.client.Close() }
