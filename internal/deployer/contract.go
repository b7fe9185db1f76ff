package deployer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contract is a deployment in flight, and once WaitForDeployment returns, a
// confirmed contract instance.
type Contract struct {
	Name    string
	Address common.Address
	Tx      *types.Transaction
	Receipt *types.Receipt
	ABI     abi.ABI

	client *Client
}

// Target returns the contract address as a checksummed hex string
func (c *Contract) Target() string {
	return c.Address.Hex()
}

// DeploymentTransaction returns the creation transaction
func (c *Contract) DeploymentTransaction() *types.Transaction {
	return c.Tx
}

// WaitForDeployment blocks until the creation transaction is mined and has
// the configured number of confirmations. Only ctx cancellation aborts it.
func (c *Contract) WaitForDeployment(ctx context.Context) (*Contract, error) {
	if c.Receipt != nil {
		return c, nil
	}

	start := time.Now()
	receipt, err := bind.WaitMined(ctx, c.client.backend, c.Tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s deployment: %w", c.Name, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s tx %s", ErrDeploymentReverted, c.Name, c.Tx.Hash().Hex())
	}

	code, err := c.client.backend.CodeAt(ctx, c.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("reading code at %s: %w", c.Address.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoCode, c.Name, c.Address.Hex())
	}

	if err := c.client.waitConfirmations(ctx, receipt.BlockNumber); err != nil {
		return nil, err
	}

	c.Receipt = receipt
	c.client.logger.Info("contract deployed",
		"contract", c.Name,
		"address", c.Address.Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"gas_used", receipt.GasUsed,
		"duration", time.Since(start),
	)
	return c, nil
}

// waitConfirmations waits until the head is confirmations-1 blocks past the
// inclusion block
func (c *Client) waitConfirmations(ctx context.Context, included *big.Int) error {
	if c.confirmations <= 1 {
		return nil
	}
	target := new(big.Int).Add(included, new(big.Int).SetUint64(c.confirmations-1))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		head, err := c.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return fmt.Errorf("reading chain head: %w", err)
		}
		if head.Number.Cmp(target) >= 0 {
			return nil
		}
		c.logger.Debug("waiting for confirmations",
			"head", head.Number.Uint64(),
			"target", target.Uint64(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
