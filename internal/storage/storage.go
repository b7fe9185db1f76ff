package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pendergraft/piggyfactory/internal/config"
)

// DeploymentStore handles deployment record operations
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error)
	GetFutureDeployment(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	UpdateVerificationStatus(ctx context.Context, id string, verified bool) error
}

// Store combines the storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment sources
const (
	SourceIgnition = "ignition"
	SourceScript   = "script"
)

// Deployment represents a recorded contract deployment
type Deployment struct {
	ID              string
	DeploymentID    string // "chain-<id>" for ignition deployments, empty for scripts
	ModuleID        string
	FutureID        string
	ContractName    string
	Chain           string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	Source          string
	ConstructorArgs json.RawMessage
	Verified        bool
	VerifiedAt      string
	CreatedAt       string
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ChainID      int64
	Contract     string
	DeploymentID string
	Verified     *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
	PrevCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
