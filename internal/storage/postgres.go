package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres storage requires DATABASE_URL")
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{sqlStore: &sqlStore{db: db, logger: logger, postgres: true, now: time.Now}}, nil
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		deployment_id TEXT NOT NULL DEFAULT '',
		module_id TEXT NOT NULL DEFAULT '',
		future_id TEXT NOT NULL DEFAULT '',
		contract_name TEXT NOT NULL,
		chain TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT,
		tx_hash TEXT,
		block_number BIGINT,
		source TEXT,
		constructor_args TEXT,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(chain_id, address)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_future
		ON deployments(chain_id, deployment_id, future_id) WHERE future_id <> '';
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract_name);
	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete", "driver", "postgres")
	return nil
}
