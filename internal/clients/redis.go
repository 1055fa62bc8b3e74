package clients

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"classroom-platform/dbinit/internal/config"
	"classroom-platform/dbinit/internal/orchestrator"
)

const redisProbeName = "redis"

// minLeaseWait bounds how often Acquire retries a held lease, whatever the
// configured retry delay.
const minLeaseWait = 100 * time.Millisecond

// releaseScript deletes the lease only while it still carries our token, so
// an expired lease taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript resets the lease TTL only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// redisStore is the subset of Redis used by RedisClient. It is implemented
// by the real go-redis client and by test doubles.
type redisStore interface {
	PingResult(ctx context.Context) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Close() error
}

// realRedisStore adapts a *redis.Client to redisStore. The wrapper exists so
// tests can inject a fake without constructing real *redis.Cmd values.
type realRedisStore struct {
	client *redis.Client
}

func (r *realRedisStore) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *realRedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{key}, value).Int()
	return n == 1, err
}

func (r *realRedisStore) Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{key}, value, ttl.Milliseconds()).Int()
	return n == 1, err
}

func (r *realRedisStore) Close() error {
	return r.client.Close()
}

// RedisClient holds the bootstrap lease and exposes a Probe for the deep
// health check.
type RedisClient struct {
	cfg        config.LeaseConfig
	retryDelay time.Duration
	cb         *gobreaker.CircuitBreaker
	store      redisStore
	logger     *slog.Logger
	newToken   func() string
}

// NewRedisClient creates a RedisClient. go-redis dials lazily, so no
// connection is opened until the first command.
func NewRedisClient(cfg config.LeaseConfig, retryDelay time.Duration, cb *gobreaker.CircuitBreaker, logger *slog.Logger) *RedisClient {
	return &RedisClient{
		cfg:        cfg,
		retryDelay: retryDelay,
		cb:         cb,
		logger:     logger,
		newToken:   uuid.NewString,
		store: &realRedisStore{
			client: redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
				Password: cfg.Password,
				DB:       cfg.DB,
			}),
		},
	}
}

// Acquire takes the lease with SET NX PX. While another replica holds it,
// Acquire waits retryDelay (at least minLeaseWait) between tries until ctx
// ends. Once taken, the lease is extended in the background every renew
// interval. The returned release function stops the renewal and removes the
// lease only if it is still ours.
func (c *RedisClient) Acquire(ctx context.Context) (func(context.Context), error) {
	token := c.newToken()
	wait := max(c.retryDelay, minLeaseWait)

	for attempt := 1; ; attempt++ {
		ok, err := c.store.SetNX(ctx, c.cfg.Key, token, c.cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring lease %s: %w", c.cfg.Key, err)
		}
		if ok {
			c.logger.Info("lease acquired",
				"key", c.cfg.Key,
				"ttl", c.cfg.TTL.String(),
				"renew_interval", c.renewInterval().String(),
			)
			return c.hold(ctx, token), nil
		}

		c.logger.Info("lease held elsewhere, waiting",
			"key", c.cfg.Key,
			"attempt", attempt,
			"retry_delay", wait.String(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for lease %s: %w", c.cfg.Key, ctx.Err())
		case <-timer.C:
		}
	}
}

// renewInterval falls back to a third of the TTL when unset.
func (c *RedisClient) renewInterval() time.Duration {
	if c.cfg.RenewInterval > 0 {
		return c.cfg.RenewInterval
	}
	return c.cfg.TTL / 3
}

// hold starts renewing the lease and returns its release function. Renewal
// outlives ctx cancellation and stops only when release is called or the
// lease turns out to be gone.
func (c *RedisClient) hold(ctx context.Context, token string) func(context.Context) {
	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.keepAlive(renewCtx, token)
	}()

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			stop()
			<-done
			c.release(ctx, token)
		})
	}
}

func (c *RedisClient) keepAlive(ctx context.Context, token string) {
	interval := c.renewInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := c.store.Extend(ctx, c.cfg.Key, token, c.cfg.TTL)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			// Retried on the next tick; the TTL still covers one missed renewal.
			c.logger.Warn("renewing lease failed", "key", c.cfg.Key, "error", err)
		case !ok:
			c.logger.Error("lease lost before release", "key", c.cfg.Key)
			return
		default:
			c.logger.Debug("lease renewed", "key", c.cfg.Key)
		}
	}
}

func (c *RedisClient) release(ctx context.Context, token string) {
	deleted, err := c.store.CompareAndDelete(ctx, c.cfg.Key, token)
	switch {
	case err != nil:
		c.logger.Warn("releasing lease failed", "key", c.cfg.Key, "error", err)
	case !deleted:
		c.logger.Warn("lease expired before release", "key", c.cfg.Key)
	default:
		c.logger.Info("lease released", "key", c.cfg.Key)
	}
}

// Probe sends a PING command to Redis and validates the PONG response. The call
// is wrapped in the circuit breaker; once it opens, calls return immediately
// with "circuit open".
func (c *RedisClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		val, err := c.store.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return probeResult(redisProbeName, start, err)
}

// Close closes the underlying go-redis client.
func (c *RedisClient) Close() error {
	return c.store.Close()
}
