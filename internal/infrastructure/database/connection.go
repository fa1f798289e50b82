package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/config"
)

// ConnectionPool wraps a pgx connection pool with health checking and
// lifecycle management for the tender database.
type ConnectionPool struct {
	pool            *pgxpool.Pool
	config          *config.DatabaseConfig
	logger          *zap.Logger
	healthCheckStop chan struct{}
}

// NewConnectionPool creates and verifies a connection pool.
func NewConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MinIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cp := &ConnectionPool{
		pool:            pool,
		config:          cfg,
		logger:          logger,
		healthCheckStop: make(chan struct{}),
	}

	go cp.healthCheckLoop()

	logger.Info("database connection pool established",
		zap.Int("max_conns", cfg.MaxOpenConns),
		zap.Int("min_conns", cfg.MinIdleConns))

	return cp, nil
}

// Pool exposes the underlying pgx pool for repositories.
func (cp *ConnectionPool) Pool() *pgxpool.Pool {
	return cp.pool
}

// BeginTx starts a transaction with the given options.
func (cp *ConnectionPool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx, err := cp.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// HealthCheck verifies the database is reachable.
func (cp *ConnectionPool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return cp.pool.Ping(ctx)
}

func (cp *ConnectionPool) healthCheckLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := cp.HealthCheck(context.Background()); err != nil {
				cp.logger.Warn("database health check failed", zap.Error(err))
				continue
			}
			stats := cp.pool.Stat()
			cp.logger.Debug("database pool stats",
				zap.Int32("total_conns", stats.TotalConns()),
				zap.Int32("idle_conns", stats.IdleConns()),
				zap.Int64("acquire_count", stats.AcquireCount()))
		case <-cp.healthCheckStop:
			return
		}
	}
}

// Close stops health checks and releases all connections.
func (cp *ConnectionPool) Close() {
	close(cp.healthCheckStop)
	cp.pool.Close()
	cp.logger.Info("database connection pool closed")
}
