package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/config"
	"github.com/pendergraft/piggyfactory/internal/deployer"
	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/scripts"
	"github.com/pendergraft/piggyfactory/internal/storage"
)

func createRunCmd() *cobra.Command {
	var record bool
	var libraries []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy PiggyBankFactory with the deployment script",
		Long: `Deploy PiggyBankFactory, wait for it to be confirmed and print one
JSON line with its address:

  {"Ticket_City contract successfully deployed to":"0x..."}

On any error the message goes to stderr and the exit code is 1. Confirmed
deployments are recorded in the journal unless --record=false.

EXAMPLES:
  piggyfactory run
  piggyfactory run --network sepolia
  DEPLOYER_PRIVATE_KEY=0x... RPC_URL=http://127.0.0.1:8545 piggyfactory run
  piggyfactory run --library contracts/Math.sol:Math=0x...
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, record, libraries)
		},
	}

	cmd.Flags().BoolVar(&record, "record", true, "record the deployment in the journal")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "link a library as <path:Name>=<address> (repeatable)")

	return cmd
}

func runScript(cmd *cobra.Command, record bool, libraries []string) error {
	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyLibraryFlags(cfg, libraries); err != nil {
		return err
	}
	logger := setupLogger(cfg)

	ctx, cancel := deployContext(cmd.Context(), cfg)
	defer cancel()

	client, err := newDeployer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	d := scripts.FromClient(client)
	if code := scripts.Main(ctx, d, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
		return &ExitError{Code: code}
	}

	if record {
		recordScriptDeployments(ctx, cfg, logger, client, d.Deployed())
	}
	return nil
}

// recordScriptDeployments journals confirmed contracts. The contracts are
// already on chain, so failures are logged rather than returned.
func recordScriptDeployments(ctx context.Context, cfg *config.Config, logger *slog.Logger, client *deployer.Client, contracts []*deployer.Contract) {
	if len(contracts) == 0 {
		return
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn("deployment not recorded", "error", err)
		return
	}

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		logger.Warn("deployment not recorded", "error", err)
		return
	}
	defer closeJournal()

	for _, c := range contracts {
		req := domain.RecordRequest{
			Contract:        c.Name,
			ChainID:         chainID.Int64(),
			Address:         c.Target(),
			DeployerAddress: client.From().Hex(),
			Source:          storage.SourceScript,
		}
		if tx := c.DeploymentTransaction(); tx != nil {
			req.TxHash = tx.Hash().Hex()
		}
		if c.Receipt != nil {
			req.BlockNumber = c.Receipt.BlockNumber.Int64()
		}
		if _, err := journal.Record(ctx, req); err != nil {
			logger.Warn("deployment not recorded", "contract", c.Name, "address", c.Target(), "error", err)
		}
	}
}
