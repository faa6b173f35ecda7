package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tabmarks/tabmarks/internal/logger"
)

// ConnectOptions defines Redis connection and retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	DB             int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // Cap on the wait between retries (ex: 10s)
	PingTimeout    time.Duration // Timeout for each ping attempt (ex: 5s)
}

func (o ConnectOptions) validate() error {
	if o.Addr == "" {
		return fmt.Errorf("Addr must not be empty")
	}
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	}
	return nil
}

// New creates a Redis client and pings it until it answers or
// ConnectTimeout elapses, backing off exponentially between attempts.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	log.Info("connecting to redis",
		logger.String("addr", opts.Addr),
		logger.Duration("timeout", opts.ConnectTimeout))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.RetryInterval
	policy.MaxInterval = opts.MaxWait
	policy.MaxElapsedTime = opts.ConnectTimeout

	started := time.Now()
	attempts := 0

	ping := func() error {
		attempts++
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	notify := func(err error, next time.Duration) {
		log.Warn("redis connection failed, retrying",
			logger.String("addr", opts.Addr),
			logger.Int("attempt", attempts),
			logger.Duration("next_retry_in", next),
			logger.Error(err))
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		log.Error("redis unavailable - failed to connect after timeout",
			logger.String("addr", opts.Addr),
			logger.Int("attempts", attempts),
			logger.Duration("timeout", opts.ConnectTimeout),
			logger.Error(err))
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", opts.Addr, err)
	}

	if attempts > 1 {
		log.Warn("connected to redis after retry",
			logger.String("addr", opts.Addr),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", time.Since(started)))
	} else {
		log.Info("connected to redis", logger.String("addr", opts.Addr))
	}

	return client, nil
}
