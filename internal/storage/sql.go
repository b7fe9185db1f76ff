package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// sqlStore holds the deployment queries shared by the SQLite and Postgres
// stores. Queries are written with ? placeholders and rebound for Postgres.
type sqlStore struct {
	db       *sql.DB
	logger   *slog.Logger
	postgres bool
	now      func() time.Time
}

func (s *sqlStore) q(query string) string {
	if s.postgres {
		return rebind(query)
	}
	return query
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

const deploymentColumns = `id, deployment_id, module_id, future_id, contract_name, chain, chain_id, address,
	deployer_address, tx_hash, block_number, source, constructor_args, verified, verified_at, created_at`

// RecordDeployment inserts or updates the record for (chain id, address).
// A future recorded at a different address is replaced, since a future maps
// to exactly one live contract per deployment.
func (s *sqlStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ChainID <= 0 || d.Address == "" || d.ContractName == "" {
		return fmt.Errorf("%w: chain id, address and contract name are required", ErrInvalidInput)
	}
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.Chain == "" {
		d.Chain = "evm"
	}
	args := d.ConstructorArgs
	if len(args) == 0 {
		args = json.RawMessage("[]")
	}
	createdAt := formatTime(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if d.FutureID != "" {
		_, err := tx.ExecContext(ctx, s.q(`
			DELETE FROM deployments
			WHERE chain_id = ? AND deployment_id = ? AND future_id = ? AND address <> ?
		`), d.ChainID, d.DeploymentID, d.FutureID, d.Address)
		if err != nil {
			return fmt.Errorf("replacing future record: %w", err)
		}
	}

	// A different creation transaction at the same address is a new
	// contract, so the old verification no longer applies
	const sameTx = `COALESCE(deployments.tx_hash, '') = COALESCE(excluded.tx_hash, '')`
	query := s.q(`
		INSERT INTO deployments (id, deployment_id, module_id, future_id, contract_name, chain, chain_id, address,
			deployer_address, tx_hash, block_number, source, constructor_args, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, address) DO UPDATE SET
			verified = CASE WHEN `+sameTx+` THEN deployments.verified ELSE FALSE END,
			verified_at = CASE WHEN `+sameTx+` THEN deployments.verified_at ELSE NULL END,
			created_at = CASE WHEN `+sameTx+` THEN deployments.created_at ELSE excluded.created_at END,
			deployment_id = excluded.deployment_id,
			module_id = excluded.module_id,
			future_id = excluded.future_id,
			contract_name = excluded.contract_name,
			deployer_address = excluded.deployer_address,
			tx_hash = excluded.tx_hash,
			block_number = excluded.block_number,
			source = excluded.source,
			constructor_args = excluded.constructor_args
		RETURNING id, verified, created_at
	`)
	err = tx.QueryRowContext(ctx, query,
		d.ID, d.DeploymentID, d.ModuleID, d.FutureID, d.ContractName, d.Chain, d.ChainID, d.Address,
		d.DeployerAddress, d.TxHash, d.BlockNumber, d.Source, string(args), false, createdAt,
	).Scan(&d.ID, &d.Verified, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording deployment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing deployment: %w", err)
	}
	d.ConstructorArgs = args
	return nil
}

// GetDeployment retrieves a deployment by chain id and checksummed address
func (s *sqlStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := s.q(`SELECT ` + deploymentColumns + ` FROM deployments WHERE chain_id = ? AND address = ?`)
	return s.scanOne(s.db.QueryRowContext(ctx, query, chainID, address))
}

// GetFutureDeployment retrieves the record of an ignition future
func (s *sqlStore) GetFutureDeployment(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error) {
	query := s.q(`SELECT ` + deploymentColumns + ` FROM deployments WHERE chain_id = ? AND deployment_id = ? AND future_id = ?`)
	return s.scanOne(s.db.QueryRowContext(ctx, query, chainID, deploymentID, futureID))
}

// ListDeployments lists deployments, newest first
func (s *sqlStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	offset, err := decodeCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	var conditions []string
	var args []any
	if filter.ChainID != 0 {
		conditions = append(conditions, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Contract != "" {
		conditions = append(conditions, "contract_name = ?")
		args = append(args, filter.Contract)
	}
	if filter.DeploymentID != "" {
		conditions = append(conditions, "deployment_id = ?")
		args = append(args, filter.DeploymentID)
	}
	if filter.Verified != nil {
		conditions = append(conditions, "verified = ?")
		args = append(args, *filter.Verified)
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &PaginatedResult[Deployment]{Data: deployments}
	if len(deployments) > limit {
		result.Data = deployments[:limit]
		result.HasMore = true
		result.NextCursor = encodeCursor(offset + limit)
	}
	if offset > 0 {
		result.PrevCursor = encodeCursor(max(offset-limit, 0))
	}
	return result, nil
}

// UpdateVerificationStatus updates a deployment's verification status
func (s *sqlStore) UpdateVerificationStatus(ctx context.Context, id string, verified bool) error {
	var verifiedAt any
	if verified {
		verifiedAt = formatTime(s.now())
	}
	res, err := s.db.ExecContext(ctx, s.q("UPDATE deployments SET verified = ?, verified_at = ? WHERE id = ?"), verified, verifiedAt, id)
	if err != nil {
		return fmt.Errorf("updating verification status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqlStore) scanOne(row *sql.Row) (*Deployment, error) {
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func scanDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var deployer, txHash, source, verifiedAt sql.NullString
	var args sql.NullString
	var block sql.NullInt64
	err := row.Scan(
		&d.ID, &d.DeploymentID, &d.ModuleID, &d.FutureID, &d.ContractName, &d.Chain, &d.ChainID, &d.Address,
		&deployer, &txHash, &block, &source, &args, &d.Verified, &verifiedAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.DeployerAddress = deployer.String
	d.TxHash = txHash.String
	d.BlockNumber = block.Int64
	d.Source = source.String
	d.VerifiedAt = verifiedAt.String
	if args.Valid && args.String != "" {
		d.ConstructorArgs = json.RawMessage(args.String)
	}
	return &d, nil
}
