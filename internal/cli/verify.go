package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/chains/evm"
	"github.com/pendergraft/piggyfactory/internal/deployer"
	verification "github.com/pendergraft/piggyfactory/internal/verification/domain"
)

// ErrBytecodeMismatch is returned when on-chain code differs from the artifact
var ErrBytecodeMismatch = errors.New("deployed bytecode does not match artifact")

// newCodeReader opens an RPC connection for reading deployed code
var newCodeReader = func(ctx context.Context, rpcURL string) (evm.CodeReader, func(), error) {
	eth, err := deployer.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return eth, eth.Close, nil
}

func createVerifyCmd() *cobra.Command {
	var rpcURL string
	var libraries []string

	cmd := &cobra.Command{
		Use:   "verify <chain-id> <address>",
		Short: "Verify a recorded deployment against its artifact",
		Long: `Verify that the code at a recorded deployment matches the deployed
bytecode of the contract's artifact in the project. CBOR metadata is
stripped when the exact bytecode differs, so a rebuild with different
source paths still verifies as a partial match.

On a match the deployment is marked verified in the journal.

EXAMPLES:
  piggyfactory verify 31337 0x5FbDB2315678afecb367f032d93F642f64180aa3
  piggyfactory verify 11155111 0x... --rpc https://sepolia.example.com
  piggyfactory verify 1 0x... --library contracts/Math.sol:Math=0x...
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, address, err := parseDeploymentRef(args[0], args[1])
			if err != nil {
				return err
			}
			return runVerify(cmd, chainID, address, rpcURL, libraries)
		},
	}

	cmd.Flags().StringVar(&rpcURL, "rpc", "", "RPC URL (default: the network's url)")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "linked library as <path:Name>=<address> (repeatable, overrides the network's libraries)")

	return cmd
}

func parseLibraries(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	libs := make(map[string]string, len(values))
	for _, v := range values {
		name, addr, ok := strings.Cut(v, "=")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid --library %q, expected <path:Name>=<address>", v)
		}
		libs[name] = addr
	}
	return libs, nil
}

func runVerify(cmd *cobra.Command, chainID int64, address, rpcURL string, libraries []string) error {
	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyLibraryFlags(cfg, libraries); err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	artifacts, err := openArtifacts(cfg)
	if err != nil {
		return err
	}

	if rpcURL == "" {
		rpcURL = cfg.Network.RPCURL
	}
	code, closeCode, err := newCodeReader(ctx, rpcURL)
	if err != nil {
		return err
	}
	defer closeCode()

	registry := chains.NewRegistry()
	registry.Register(evm.NewChain(code))

	result, err := verification.NewService(journal, artifacts, registry).Verify(ctx, verification.VerifyRequest{
		ChainID:   chainID,
		Address:   address,
		Libraries: cfg.Network.Libraries,
	})
	if err != nil {
		return err
	}

	d := result.Deployment
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s at %s on chain %d\n", d.ContractName, d.Address, d.ChainID)
	fmt.Fprintf(out, "   Match:   %s\n", result.MatchType)
	fmt.Fprintf(out, "   Details: %s\n", result.Message)

	if !result.Verified {
		return fmt.Errorf("%w: %s", ErrBytecodeMismatch, d.Address)
	}
	fmt.Fprintln(out, "   Marked verified")
	return nil
}
