package ignition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/piggyfactory/internal/deployer"
	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/storage"
)

// DeployedAddressesFile is written per deployment under the ignition dir
const DeployedAddressesFile = "deployed_addresses.json"

// ContractDeployer sends creation transactions; satisfied by deployer.Client
type ContractDeployer interface {
	DeployContractWithValue(ctx context.Context, name string, value *big.Int, args ...any) (*deployer.Contract, error)
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	From() common.Address
}

// Journal records deployed futures; satisfied by the deployments service
type Journal interface {
	Record(ctx context.Context, req domain.RecordRequest) (*domain.Deployment, error)
	GetFuture(ctx context.Context, chainID int64, deploymentID, futureID string) (*domain.Deployment, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
}

// DeployOptions configures one module execution
type DeployOptions struct {
	// DeploymentID defaults to chain-<chainID>
	DeploymentID string
	Parameters   Parameters
}

// FutureResult is the outcome of one future
type FutureResult struct {
	FutureID     string `json:"futureId"`
	ContractName string `json:"contractName"`
	Address      string `json:"address"`
	TxHash       string `json:"txHash,omitempty"`
	Reused       bool   `json:"reused"`
}

// DeploymentResult is the outcome of a module execution
type DeploymentResult struct {
	DeploymentID string         `json:"deploymentId"`
	ChainID      int64          `json:"chainId"`
	ModuleID     string         `json:"moduleId"`
	Futures      []FutureResult `json:"futures"`
	// Contracts maps the module's output keys to deployed addresses
	Contracts map[string]string `json:"contracts"`
}

// Executor runs modules against one chain
type Executor struct {
	deployer ContractDeployer
	journal  Journal
	dir      string
	logger   *slog.Logger
}

// NewExecutor creates an executor that writes deployment folders under dir
// (usually ignition/deployments)
func NewExecutor(d ContractDeployer, journal Journal, dir string, logger *slog.Logger) *Executor {
	return &Executor{deployer: d, journal: journal, dir: dir, logger: logger}
}

// DeploymentID returns the default deployment ID for a chain
func DeploymentID(chainID int64) string {
	return fmt.Sprintf("chain-%d", chainID)
}

// Deploy executes the module's futures in order. Futures already journaled
// with code on chain are reused without sending a transaction.
func (e *Executor) Deploy(ctx context.Context, m *Module, opts DeployOptions) (*DeploymentResult, error) {
	chainIDBig, err := e.deployer.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	chainID := chainIDBig.Int64()

	deploymentID := opts.DeploymentID
	if deploymentID == "" {
		deploymentID = DeploymentID(chainID)
	}

	log := e.logger.With("module", m.ID, "deployment", deploymentID, "chain_id", chainID)
	log.Info("deploying module", "futures", len(m.Futures))

	addresses := make(map[string]string, len(m.Futures))
	result := &DeploymentResult{
		DeploymentID: deploymentID,
		ChainID:      chainID,
		ModuleID:     m.ID,
		Contracts:    make(map[string]string, len(m.Results)),
	}

	for _, f := range m.Futures {
		fr, err := e.executeFuture(ctx, log, f, chainID, deploymentID, addresses, opts.Parameters)
		if err != nil {
			return result, err
		}
		addresses[f.ID()] = fr.Address
		result.Futures = append(result.Futures, *fr)
	}

	for key, f := range m.Results {
		result.Contracts[key] = addresses[f.ID()]
	}

	if err := e.writeDeployedAddresses(deploymentID, addresses); err != nil {
		return result, err
	}

	log.Info("module deployed", "contracts", len(result.Contracts))
	return result, nil
}

func (e *Executor) executeFuture(ctx context.Context, log *slog.Logger, f *ContractFuture, chainID int64, deploymentID string, addresses map[string]string, params Parameters) (*FutureResult, error) {
	log = log.With("future", f.ID())

	existing, err := e.journal.GetFuture(ctx, chainID, deploymentID, f.ID())
	switch {
	case err == nil:
		if existing.ContractName != f.ContractName() {
			return nil, fmt.Errorf("%w: future %s was deployed as %s, module now requests %s",
				ErrReconciliation, f.ID(), existing.ContractName, f.ContractName())
		}
		code, err := e.deployer.CodeAt(ctx, common.HexToAddress(existing.Address))
		if err != nil {
			return nil, fmt.Errorf("reading code at %s: %w", existing.Address, err)
		}
		if len(code) > 0 {
			log.Info("future already deployed", "address", existing.Address)
			return &FutureResult{
				FutureID:     f.ID(),
				ContractName: f.ContractName(),
				Address:      existing.Address,
				TxHash:       existing.TxHash,
				Reused:       true,
			}, nil
		}
		log.Warn("journaled contract has no code, redeploying", "address", existing.Address)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, fmt.Errorf("reading journal for %s: %w", f.ID(), err)
	}

	args, err := resolveArgs(f, addresses, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	contract, err := e.deployer.DeployContractWithValue(ctx, f.ContractName(), f.Value(), args...)
	if err != nil {
		return nil, fmt.Errorf("future %s: %w", f.ID(), err)
	}
	if _, err := contract.WaitForDeployment(ctx); err != nil {
		return nil, fmt.Errorf("future %s: %w", f.ID(), err)
	}

	var block int64
	if contract.Receipt != nil {
		block = contract.Receipt.BlockNumber.Int64()
	}
	_, err = e.journal.Record(ctx, domain.RecordRequest{
		DeploymentID:    deploymentID,
		ModuleID:        f.module().ID,
		FutureID:        f.ID(),
		Contract:        f.ContractName(),
		ChainID:         chainID,
		Address:         contract.Target(),
		TxHash:          contract.Tx.Hash().Hex(),
		DeployerAddress: e.deployer.From().Hex(),
		BlockNumber:     block,
		Source:          storage.SourceIgnition,
		ConstructorArgs: args,
	})
	if err != nil {
		return nil, fmt.Errorf("journaling %s: %w", f.ID(), err)
	}

	log.Info("future deployed", "address", contract.Target(), "duration", time.Since(start))
	return &FutureResult{
		FutureID:     f.ID(),
		ContractName: f.ContractName(),
		Address:      contract.Target(),
		TxHash:       contract.Tx.Hash().Hex(),
	}, nil
}

// resolveArgs turns declared args into ABI values. Futures earlier in the
// module are always resolved by the time a dependent future runs.
func resolveArgs(f *ContractFuture, addresses map[string]string, params Parameters) ([]any, error) {
	args := make([]any, 0, len(f.Args()))
	for _, a := range f.Args() {
		switch arg := a.(type) {
		case *ContractFuture:
			addr, ok := addresses[arg.ID()]
			if !ok {
				return nil, fmt.Errorf("%w: %s used before deployment", ErrInvalidModule, arg.ID())
			}
			args = append(args, common.HexToAddress(addr))
		case *ModuleParameter:
			raw, err := params.resolve(arg)
			if err != nil {
				return nil, err
			}
			v, err := abiValue(raw)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", arg.ID(), err)
			}
			args = append(args, v)
		case Future:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFuture, arg.ID())
		default:
			args = append(args, arg)
		}
	}
	return args, nil
}

// writeDeployedAddresses merges addresses into the deployment's
// deployed_addresses.json, keeping entries written by other modules
func (e *Executor) writeDeployedAddresses(deploymentID string, addresses map[string]string) error {
	existing, err := ReadDeployedAddresses(e.dir, deploymentID)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if existing == nil {
		existing = make(map[string]string)
	}
	for id, addr := range addresses {
		existing[id] = addr
	}

	dir := filepath.Join(e.dir, deploymentID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating deployment directory: %w", err)
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, DeployedAddressesFile), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", DeployedAddressesFile, err)
	}
	return nil
}

// ReadDeployedAddresses reads a deployment's future ID to address map
func ReadDeployedAddresses(dir, deploymentID string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, deploymentID, DeployedAddressesFile))
	if err != nil {
		return nil, err
	}
	var addresses map[string]string
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", DeployedAddressesFile, err)
	}
	return addresses, nil
}

// Status lists every journaled future of a deployment
func (e *Executor) Status(ctx context.Context, deploymentID string, chainID int64) ([]domain.Deployment, error) {
	var all []domain.Deployment
	cursor := ""
	for {
		page, err := e.journal.List(ctx, domain.ListFilter{
			ChainID:      chainID,
			DeploymentID: deploymentID,
		}, domain.PaginationParams{Limit: 100, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("listing deployment %s: %w", deploymentID, err)
		}
		all = append(all, page.Deployments...)
		if !page.HasMore {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
