package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/config"
	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/logger"
)

// CockroachDB connection using pgx (PostgreSQL-compatible driver)
type CockroachDB struct {
	Pool *pgxpool.Pool
}

// NewCockroachDB creates a new CockroachDB connection pool
func NewCockroachDB(ctx context.Context, cfg config.DatabaseConfig) (*CockroachDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = constants.MaxConnLifetime
	poolConfig.MaxConnIdleTime = constants.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = constants.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &CockroachDB{Pool: pool}, nil
}

// ConnectWithRetry tries NewCockroachDB up to attempts times with a linear pause.
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, attempts int, pause time.Duration) (*CockroachDB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := NewCockroachDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Warn("Database connection attempt failed",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * pause):
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, lastErr)
}

// EnsureSchema creates the appointments table and its indexes if missing
func (db *CockroachDB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, appointmentsDDL)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (db *CockroachDB) Close() {
	db.Pool.Close()
}

// Ping tests the database connection
func (db *CockroachDB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// SlotIndex keeps a doctor from holding two live appointments in one slot
const SlotIndex = "appointments_doctor_slot_key"

const appointmentsDDL = `
CREATE TABLE IF NOT EXISTS appointments (
	id                STRING PRIMARY KEY,
	doctor_id         STRING NOT NULL,
	patient_id        STRING NOT NULL,
	date              STRING NOT NULL,
	time              STRING NOT NULL,
	reason            STRING NOT NULL DEFAULT 'General consultation',
	status            STRING NOT NULL DEFAULT 'scheduled',
	offer             STRING NULL,
	answer            STRING NULL,
	call_initiated_at TIMESTAMPTZ NULL,
	call_answered_at  TIMESTAMPTZ NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id, date, time);
CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id, date, time);
CREATE UNIQUE INDEX IF NOT EXISTS ` + SlotIndex + ` ON appointments (doctor_id, date, time) WHERE status != 'cancelled';
`
