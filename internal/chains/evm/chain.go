// Package evm provides the EVM chain module for Ethereum and compatible chains.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/chains/evm/foundry"
	"github.com/pendergraft/piggyfactory/internal/chains/evm/hardhat"
	"github.com/pendergraft/piggyfactory/internal/validation"
)

// ErrNoRPC is returned when on-chain data is requested from an offline chain module
var ErrNoRPC = errors.New("no RPC connection configured")

// CodeReader reads deployed code; satisfied by ethclient.Client
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Chain implements the chains.Chain interface for EVM-compatible blockchains
type Chain struct {
	builders []chains.Builder
	code     CodeReader
}

// NewChain creates a new EVM chain module. code may be nil when no RPC
// endpoint is available; verification then fails with ErrNoRPC.
func NewChain(code CodeReader) *Chain {
	return &Chain{
		builders: []chains.Builder{
			hardhat.New(),
			foundry.New(),
		},
		code: code,
	}
}

// Name returns the chain identifier
func (c *Chain) Name() string {
	return "evm"
}

// DisplayName returns a human-readable name
func (c *Chain) DisplayName() string {
	return "Ethereum/EVM"
}

// Builders returns all available builders for this chain
func (c *Chain) Builders() []chains.Builder {
	return c.builders
}

// DetectBuilder detects which builder is used in the given directory.
// Hardhat wins when a project carries both config files.
func (c *Chain) DetectBuilder(dir string) (chains.Builder, error) {
	for _, b := range c.builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no EVM builder detected in %s", dir)
}

// VerifyDeployment verifies that deployed bytecode matches expected bytecode
func (c *Chain) VerifyDeployment(ctx context.Context, opts chains.VerifyOptions) (*chains.VerifyResult, error) {
	deployed, err := c.GetDeployedBytecode(ctx, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployed bytecode: %w", err)
	}
	if len(deployed) == 0 {
		return &chains.VerifyResult{
			Match:     false,
			MatchType: "none",
			Message:   "No code at address",
		}, nil
	}

	return CompareBytecode(deployed, opts.ExpectedCode, opts.Libraries)
}

// GetDeployedBytecode fetches the deployed bytecode at the latest block (eth_getCode)
func (c *Chain) GetDeployedBytecode(ctx context.Context, address string) ([]byte, error) {
	if c.code == nil {
		return nil, ErrNoRPC
	}
	if err := validation.ValidateAddress(address); err != nil {
		return nil, err
	}
	return c.code.CodeAt(ctx, common.HexToAddress(address), nil)
}
