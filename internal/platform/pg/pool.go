package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions configures a PostgreSQL connection pool.
type PoolOptions struct {
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32
	// MinConns is the minimum number of connections kept warm.
	MinConns int32
	// HealthCheckPeriod is the interval between background connection
	// health checks.
	HealthCheckPeriod time.Duration
	// MaxConnLifetime bounds how long a single connection may live.
	MaxConnLifetime time.Duration
	// MaxConnIdleTime bounds how long a connection may sit idle.
	MaxConnIdleTime time.Duration
	// PingTimeout bounds the initial connectivity check at pool creation.
	PingTimeout time.Duration
}

// DefaultPoolOptions returns defaults for a single scheduler process
// writing one history record at a time: at most 20 connections, with at
// least 2 kept open.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          20,
		MinConns:          2,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
	}
}

// NewPool creates a connection pool using DefaultPoolOptions.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPoolWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewPoolWithOptions creates a connection pool with the given options,
// verifying connectivity with a ping before returning.
func NewPoolWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
