// Package database opens the external connections the player agent needs:
// Redis for the redis device store and the audit queues, PostgreSQL for the
// audit tables. Both are optional and depend on configuration.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
)

// auditConnIdle bounds how long an idle audit connection is kept. The
// workers write in bursts, so a small warm pool is enough.
const auditConnIdle = 5 * time.Minute

// Connections holds whatever Connect opened. Unused clients are nil.
type Connections struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
}

// NeedsRedis reports whether the configuration uses Redis at all: as the
// device store or as the audit queue.
func NeedsRedis(cfg *config.Config) bool {
	return cfg.DeviceStore == config.DeviceStoreRedis || cfg.AuditEnabled
}

// Connect opens Redis when NeedsRedis and PostgreSQL when auditing is on.
// On error nothing is left open.
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Connections, error) {
	conns := &Connections{}
	if NeedsRedis(cfg) {
		rdb, err := openRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		conns.Redis = rdb
	}
	if cfg.AuditEnabled {
		pool, err := openPostgres(ctx, cfg, log)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.Postgres = pool
	}
	return conns, nil
}

// Close releases every open connection.
func (c *Connections) Close() error {
	var errs []error
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openRedis(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}

	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("Redis connected")
	return rdb, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := auditPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostgreSQL connected")
	return pool, nil
}

// auditPoolConfig sizes the pool for the two audit workers.
func auditPoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxDBConns > 0 {
		poolCfg.MaxConns = cfg.MaxDBConns
	}
	poolCfg.MaxConnIdleTime = auditConnIdle
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "exstem-player-audit"
	return poolCfg, nil
}
