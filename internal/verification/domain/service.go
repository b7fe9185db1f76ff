package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/piggyfactory/internal/chains"
	deployments "github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/validation"
)

// Common errors returned by the verification service.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain ID")
	ErrChainNotFound  = errors.New("chain not supported")
	ErrNoBytecode     = errors.New("artifact has no deployed bytecode")
)

// DeploymentStore defines the journal operations needed by verification.
type DeploymentStore interface {
	Get(ctx context.Context, chainID int64, address string) (*deployments.Deployment, error)
	UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error
}

// ArtifactSource resolves compiled contracts by name.
type ArtifactSource interface {
	Artifact(contractName string) (*chains.Artifact, error)
}

// Service verifies recorded deployments against project artifacts.
type Service struct {
	deployments DeploymentStore
	artifacts   ArtifactSource
	registry    *chains.Registry
}

// NewService creates a new verification service.
func NewService(journal DeploymentStore, artifacts ArtifactSource, registry *chains.Registry) *Service {
	return &Service{
		deployments: journal,
		artifacts:   artifacts,
		registry:    registry,
	}
}

// Verify compares the code at a recorded deployment with its artifact's
// deployed bytecode. A full or partial match marks the record verified.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	d, err := s.deployments.Get(ctx, req.ChainID, req.Address)
	if err != nil {
		if errors.Is(err, deployments.ErrNotFound) {
			return nil, fmt.Errorf("%w: no deployment recorded at %s on chain %d", ErrNotFound, req.Address, req.ChainID)
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}

	artifact, err := s.artifacts.Artifact(d.ContractName)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact for %s: %w", d.ContractName, err)
	}
	if artifact.EVM == nil || artifact.EVM.DeployedBytecode == "" || artifact.EVM.DeployedBytecode == "0x" {
		return nil, fmt.Errorf("%w: %s", ErrNoBytecode, d.ContractName)
	}

	chainName := d.Chain
	if chainName == "" {
		chainName = artifact.Chain
	}
	chain, ok := s.registry.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainName)
	}

	result, err := chain.VerifyDeployment(ctx, chains.VerifyOptions{
		Address:      d.Address,
		ExpectedCode: []byte(artifact.EVM.DeployedBytecode),
		Libraries:    req.Libraries,
	})
	if err != nil {
		return nil, fmt.Errorf("verifying deployment: %w", err)
	}

	out := &VerifyResult{
		Deployment: d,
		Verified:   result.Match,
		MatchType:  result.MatchType,
		Message:    result.Message,
	}
	if !result.Match {
		return out, nil
	}

	if err := s.deployments.UpdateVerificationStatus(ctx, d.ChainID, d.Address, true); err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}
	out.Marked = true
	return out, nil
}
