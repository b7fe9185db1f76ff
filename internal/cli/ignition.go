package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/ignition"
	"github.com/pendergraft/piggyfactory/internal/ignition/modules"
)

// defaultModule is deployed when ignition deploy gets no module ID
const defaultModule = "PiggyBankFactoryModule"

func createIgnitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignition",
		Short: "Deploy declarative ignition modules",
	}

	cmd.AddCommand(createIgnitionDeployCmd())
	cmd.AddCommand(createIgnitionStatusCmd())
	cmd.AddCommand(createIgnitionModulesCmd())

	return cmd
}

func createIgnitionDeployCmd() *cobra.Command {
	var paramsFile string
	var deploymentID string
	var jsonOutput bool
	var libraries []string

	cmd := &cobra.Command{
		Use:   "deploy [module-id]",
		Short: "Deploy an ignition module",
		Long: `Deploy an ignition module (default PiggyBankFactoryModule). Futures
already recorded for the deployment with code on chain are reused, so an
interrupted deployment can simply be run again.

EXAMPLES:
  piggyfactory ignition deploy
  piggyfactory ignition deploy PiggyBankFactoryModule --network sepolia
  piggyfactory ignition deploy --parameters ignition/parameters.yaml --deployment-id staging
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			moduleID := defaultModule
			if len(args) == 1 {
				moduleID = args[0]
			}
			return runIgnitionDeploy(cmd, moduleID, paramsFile, deploymentID, libraries, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&paramsFile, "parameters", "", "module parameters file (YAML or JSON)")
	cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "deployment ID (default chain-<chainId>)")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "link a library as <path:Name>=<address> (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")

	return cmd
}

func runIgnitionDeploy(cmd *cobra.Command, moduleID, paramsFile, deploymentID string, libraries []string, jsonOutput bool) error {
	m, err := modules.Default().Get(moduleID)
	if err != nil {
		return err
	}

	var params ignition.Parameters
	if paramsFile != "" {
		if params, err = ignition.LoadParameters(paramsFile); err != nil {
			return err
		}
	}

	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	if err := applyLibraryFlags(cfg, libraries); err != nil {
		return err
	}
	logger := setupLogger(cfg)

	// Fail before connecting when the project was not compiled
	artifacts, err := openArtifacts(cfg)
	if err != nil {
		return err
	}
	if err := artifacts.Require(moduleContracts(m)...); err != nil {
		return fmt.Errorf("module %s: %w", m.ID, err)
	}

	ctx, cancel := deployContext(cmd.Context(), cfg)
	defer cancel()

	client, err := newDeployer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	executor := ignition.NewExecutor(client, journal, ignitionDir(cfg), logger)
	result, err := executor.Deploy(ctx, m, ignition.DeployOptions{
		DeploymentID: deploymentID,
		Parameters:   params,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printDeploymentResult(out, result)
	return nil
}

func printDeploymentResult(out io.Writer, result *ignition.DeploymentResult) {
	fmt.Fprintf(out, "Deployment %s (chain %d), module %s\n\n", result.DeploymentID, result.ChainID, result.ModuleID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FUTURE\tCONTRACT\tADDRESS\tSTATUS")
	for _, f := range result.Futures {
		status := "deployed"
		if f.Reused {
			status = "reused"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.FutureID, f.ContractName, f.Address, status)
	}
	w.Flush()

	keys := make([]string, 0, len(result.Contracts))
	for k := range result.Contracts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Deployed Addresses")
	for _, k := range keys {
		fmt.Fprintf(out, "  %s - %s\n", k, result.Contracts[k])
	}
}

func createIgnitionStatusCmd() *cobra.Command {
	var chainID int64

	cmd := &cobra.Command{
		Use:   "status [deployment-id]",
		Short: "Show the recorded futures of a deployment",
		Long: `Show the futures recorded for a deployment. Without a deployment ID
the default chain-<chainId> deployment of the network is shown.

EXAMPLES:
  piggyfactory ignition status
  piggyfactory ignition status chain-11155111 --chain-id 11155111
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deploymentID := ""
			if len(args) == 1 {
				deploymentID = args[0]
			}
			return runIgnitionStatus(cmd, deploymentID, chainID)
		},
	}

	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "chain ID (default from the network config or node)")

	return cmd
}

func runIgnitionStatus(cmd *cobra.Command, deploymentID string, chainID int64) error {
	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	if chainID == 0 {
		chainID = cfg.Network.ChainID
	}
	if chainID == 0 {
		eth, id, err := dialNetwork(ctx, cfg)
		if err != nil {
			return fmt.Errorf("resolving chain id (pass --chain-id to skip): %w", err)
		}
		eth.Close()
		chainID = id.Int64()
	}
	if deploymentID == "" {
		deploymentID = ignition.DeploymentID(chainID)
	}

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	futures, err := ignition.NewExecutor(nil, journal, ignitionDir(cfg), logger).Status(ctx, deploymentID, chainID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(futures) == 0 {
		fmt.Fprintf(out, "No futures recorded for %s on chain %d\n", deploymentID, chainID)
		return nil
	}

	sort.Slice(futures, func(i, j int) bool { return futures[i].FutureID < futures[j].FutureID })
	printFutures(out, futures)
	return nil
}

func printFutures(out io.Writer, futures []domain.Deployment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FUTURE\tCONTRACT\tADDRESS\tBLOCK\tVERIFIED")
	for _, f := range futures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", f.FutureID, f.ContractName, f.Address, f.BlockNumber, f.Verified)
	}
	w.Flush()
}

func createIgnitionModulesCmd() *cobra.Command {
	var withArtifacts bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the available ignition modules",
		Long: `List the available ignition modules. With --artifacts the project's
compiled contracts are listed too, and each module shows the contracts it
deploys that have no artifact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			list := modules.Default().List()
			if !withArtifacts {
				printModules(out, list, nil)
				return nil
			}

			cfg, _, err := loadSettings()
			if err != nil {
				return err
			}
			artifacts, err := openArtifacts(cfg)
			if err != nil {
				return err
			}
			compiled, err := artifacts.Contracts(chains.DiscoverOptions{})
			if err != nil {
				return err
			}

			printModules(out, list, func(m *ignition.Module) string {
				if err := artifacts.Require(moduleContracts(m)...); err != nil {
					if errors.Is(err, chains.ErrArtifactNotFound) {
						return strings.TrimPrefix(err.Error(), chains.ErrArtifactNotFound.Error()+": ")
					}
					return err.Error()
				}
				return "-"
			})

			fmt.Fprintf(out, "\nCompiled contracts (%s):\n", artifacts.Builder().DisplayName())
			if len(compiled) == 0 {
				fmt.Fprintln(out, "   (none)")
			}
			for _, name := range compiled {
				fmt.Fprintf(out, "   %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withArtifacts, "artifacts", false, "check module contracts against the project's artifacts")

	return cmd
}

// moduleContracts returns the contract names a module deploys
func moduleContracts(m *ignition.Module) []string {
	names := make([]string, len(m.Futures))
	for i, f := range m.Futures {
		names[i] = f.ContractName()
	}
	return names
}

// printModules writes the module table. missing, when set, adds a column
// naming the contracts without artifacts.
func printModules(out io.Writer, list []*ignition.Module, missing func(*ignition.Module) string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if missing != nil {
		fmt.Fprintln(w, "MODULE\tFUTURES\tOUTPUTS\tMISSING")
	} else {
		fmt.Fprintln(w, "MODULE\tFUTURES\tOUTPUTS")
	}
	for _, m := range list {
		outputs := make([]string, 0, len(m.Results))
		for k := range m.Results {
			outputs = append(outputs, k)
		}
		sort.Strings(outputs)
		row := fmt.Sprintf("%s\t%s\t%s", m.ID, strings.Join(moduleContracts(m), ", "), strings.Join(outputs, ", "))
		if missing != nil {
			row += "\t" + missing(m)
		}
		fmt.Fprintln(w, row)
	}
	w.Flush()
}
