package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/piggyfactory/internal/storage"
	"github.com/pendergraft/piggyfactory/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound        = errors.New("deployment not found")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidChainID  = errors.New("invalid chain ID")
	ErrInvalidContract = errors.New("invalid contract name")
)

// Service defines the deployment service interface.
type Service interface {
	// Record records a deployment, replacing any record at the same address.
	Record(ctx context.Context, req RecordRequest) (*Deployment, error)

	// Get retrieves a deployment by chain ID and address.
	Get(ctx context.Context, chainID int64, address string) (*Deployment, error)

	// GetFuture retrieves the deployment of an ignition future.
	GetFuture(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// UpdateVerificationStatus updates the verification status of a deployment.
	UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error
}

// service implements the Service interface.
type service struct {
	store storage.DeploymentStore
}

// NewService creates a new deployment service.
func NewService(store storage.DeploymentStore) Service {
	return &service{store: store}
}

// Record records a deployment.
func (s *service) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	if err := validation.ValidateContractName(req.Contract); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}

	args := req.ConstructorArgs
	if args == nil {
		args = []any{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding constructor args: %w", err)
	}

	source := req.Source
	if source == "" {
		source = storage.SourceScript
		if req.FutureID != "" {
			source = storage.SourceIgnition
		}
	}

	deployment := &storage.Deployment{
		DeploymentID:    req.DeploymentID,
		ModuleID:        req.ModuleID,
		FutureID:        req.FutureID,
		ContractName:    req.Contract,
		Chain:           "evm",
		ChainID:         req.ChainID,
		Address:         checksum(req.Address),
		DeployerAddress: checksumOptional(req.DeployerAddress),
		TxHash:          req.TxHash,
		BlockNumber:     req.BlockNumber,
		Source:          source,
		ConstructorArgs: encodedArgs,
	}

	if err := s.store.RecordDeployment(ctx, deployment); err != nil {
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// Get retrieves a deployment by chain ID and address.
func (s *service) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	deployment, err := s.store.GetDeployment(ctx, chainID, checksum(address))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// GetFuture retrieves the deployment of an ignition future.
func (s *service) GetFuture(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error) {
	deployment, err := s.store.GetFutureDeployment(ctx, chainID, deploymentID, futureID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting future deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		ChainID:      filter.ChainID,
		Contract:     filter.Contract,
		DeploymentID: filter.DeploymentID,
		Verified:     filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i, d := range result.Data {
		deployments[i] = *toDeployment(&d)
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
		PrevCursor:  result.PrevCursor,
	}, nil
}

// UpdateVerificationStatus updates the verification status of a deployment.
func (s *service) UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error {
	deployment, err := s.Get(ctx, chainID, address)
	if err != nil {
		return err
	}

	if err := s.store.UpdateVerificationStatus(ctx, deployment.ID, verified); err != nil {
		return fmt.Errorf("updating verification status: %w", err)
	}

	return nil
}

func checksum(address string) string {
	return common.HexToAddress(address).Hex()
}

func checksumOptional(address string) string {
	if address == "" {
		return ""
	}
	return checksum(address)
}

func toDeployment(d *storage.Deployment) *Deployment {
	var createdAt, verifiedAt time.Time
	if d.CreatedAt != "" {
		createdAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	}
	if d.VerifiedAt != "" {
		verifiedAt, _ = time.Parse(time.RFC3339Nano, d.VerifiedAt)
	}
	return &Deployment{
		ID:              d.ID,
		DeploymentID:    d.DeploymentID,
		ModuleID:        d.ModuleID,
		FutureID:        d.FutureID,
		ContractName:    d.ContractName,
		Chain:           d.Chain,
		ChainID:         d.ChainID,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		Source:          d.Source,
		ConstructorArgs: d.ConstructorArgs,
		Verified:        d.Verified,
		VerifiedAt:      verifiedAt,
		CreatedAt:       createdAt,
	}
}
