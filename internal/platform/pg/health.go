package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WaitStrategy selects the backoff shape between connection attempts.
type WaitStrategy int

const (
	// LinearWait increases the interval by a fixed step each attempt.
	LinearWait WaitStrategy = iota
	// ExponentialWait doubles the interval each attempt.
	ExponentialWait
)

// HealthCheckOptions configures WaitForDB.
type HealthCheckOptions struct {
	// MaxRetries caps the number of attempts (0 = unlimited until the
	// context deadline).
	MaxRetries int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps how large the delay grows.
	MaxInterval time.Duration
	// Strategy selects the backoff shape.
	Strategy WaitStrategy
	// PingTimeout bounds each individual connection attempt.
	PingTimeout time.Duration
}

// DefaultHealthCheckOptions returns sane defaults for a scheduler process
// waiting on a Postgres sink to come up alongside it (e.g. in
// docker-compose, where ordering between containers isn't guaranteed).
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        ExponentialWait,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB blocks until dsn accepts connections or opts/ctx give up.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	attempt := 0
	interval := opts.InitialInterval

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for database: %w", ctx.Err())
		default:
		}

		attempt++

		err := pingDatabase(ctx, dsn, opts.PingTimeout)
		if err == nil {
			return nil
		}

		if opts.MaxRetries > 0 && attempt >= opts.MaxRetries {
			return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(interval):
		}

		interval = calculateNextInterval(interval, opts)
	}
}

// WaitForDBSimple is WaitForDB with the default options and no attempt
// cap, bounded only by timeout. pgsink.Open calls this before applying
// migrations so a sink configured against a not-yet-ready Postgres
// container doesn't fail the scheduler's startup outright.
func WaitForDBSimple(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := DefaultHealthCheckOptions()
	opts.MaxRetries = 0

	return WaitForDB(ctx, dsn, opts)
}

func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

func calculateNextInterval(currentInterval time.Duration, opts HealthCheckOptions) time.Duration {
	switch opts.Strategy {
	case LinearWait:
		next := currentInterval + opts.InitialInterval
		if next > opts.MaxInterval {
			return opts.MaxInterval
		}
		return next

	case ExponentialWait:
		next := currentInterval * 2
		if next > opts.MaxInterval {
			return opts.MaxInterval
		}
		return next

	default:
		return opts.InitialInterval
	}
}
