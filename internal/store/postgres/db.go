// Package postgres provides PostgreSQL-based implementations of the store interfaces.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vigil-go/internal/config"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// RunMigrations creates the required database tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS alert_rules (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			conditions JSONB NOT NULL,
			actions JSONB,
			cooldown_minutes INTEGER NOT NULL DEFAULT 0,
			escalation_policy VARCHAR(100),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);
		CREATE INDEX IF NOT EXISTS idx_rules_type ON alert_rules(type);

		CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR(36) PRIMARY KEY,
			rule_id VARCHAR(36),
			dedup_key VARCHAR(255) NOT NULL,
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			context JSONB NOT NULL,
			recommendations JSONB,
			triggered_at TIMESTAMP WITH TIME ZONE NOT NULL,
			acknowledged_at TIMESTAMP WITH TIME ZONE,
			acknowledged_by VARCHAR(100),
			resolved_at TIMESTAMP WITH TIME ZONE,
			resolved_by VARCHAR(100),
			escalation_level INTEGER NOT NULL DEFAULT 0,
			suppressed_until TIMESTAMP WITH TIME ZONE,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(dedup_key);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
		CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered_at);

		CREATE TABLE IF NOT EXISTS notification_templates (
			id VARCHAR(36) PRIMARY KEY,
			channel VARCHAR(20) NOT NULL,
			alert_type VARCHAR(50) NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			variables JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (channel, alert_type)
		);

		CREATE TABLE IF NOT EXISTS notification_deliveries (
			id VARCHAR(36) PRIMARY KEY,
			alert_id VARCHAR(36) NOT NULL,
			channel VARCHAR(20) NOT NULL,
			recipient VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL,
			sent_at TIMESTAMP WITH TIME ZONE,
			delivered_at TIMESTAMP WITH TIME ZONE,
			error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_alert ON notification_deliveries(alert_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_status ON notification_deliveries(status);
	`

	_, err := db.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
