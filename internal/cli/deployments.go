package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/validation"
	"github.com/pendergraft/piggyfactory/pkg/client"
)

func createDeploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment"},
		Short:   "Inspect recorded deployments",
	}

	cmd.AddCommand(createDeploymentsListCmd())
	cmd.AddCommand(createDeploymentsInfoCmd())

	return cmd
}

type deploymentsListFlags struct {
	chainID      int64
	contract     string
	deploymentID string
	verified     string
	limit        int
	cursor       string
	server       string
	jsonOutput   bool
}

func createDeploymentsListCmd() *cobra.Command {
	var f deploymentsListFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long: `List recorded deployments, newest first. Reads the local journal, or a
deployments server when --server (or server in piggyfactory.toml) is set.

EXAMPLES:
  piggyfactory deployments list
  piggyfactory deployments list --chain-id 31337 --contract PiggyBankFactory
  piggyfactory deployments list --deployment chain-31337 --json
  piggyfactory deployments list --server http://localhost:8080 --verified true
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentsList(cmd, f)
		},
	}

	cmd.Flags().Int64Var(&f.chainID, "chain-id", 0, "filter by chain ID")
	cmd.Flags().StringVar(&f.contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&f.deploymentID, "deployment", "", "filter by deployment ID")
	cmd.Flags().StringVar(&f.verified, "verified", "", "filter by verification status (true or false)")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&f.cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().StringVar(&f.server, "server", "", "deployments server URL")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print as JSON")

	return cmd
}

func runDeploymentsList(cmd *cobra.Command, f deploymentsListFlags) error {
	var verified *bool
	if f.verified != "" {
		b, err := strconv.ParseBool(f.verified)
		if err != nil {
			return fmt.Errorf("--verified must be true or false")
		}
		verified = &b
	}
	if f.chainID != 0 {
		if err := validation.ValidateChainID(f.chainID); err != nil {
			return err
		}
	}

	cfg, project, err := loadSettings()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	server := f.server
	if server == "" && project != nil {
		server = project.Server
	}

	var page *client.ListDeploymentsResponse
	if server != "" {
		page, err = client.New(server).ListDeployments(ctx, client.ListOptions{
			ChainID:      f.chainID,
			Contract:     f.contract,
			DeploymentID: f.deploymentID,
			Verified:     verified,
			Limit:        f.limit,
			Cursor:       f.cursor,
		})
		if err != nil {
			return fmt.Errorf("listing deployments from %s: %w", server, err)
		}
	} else {
		journal, closeJournal, err := openJournal(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeJournal()

		result, err := journal.List(ctx, domain.ListFilter{
			ChainID:      f.chainID,
			Contract:     f.contract,
			DeploymentID: f.deploymentID,
			Verified:     verified,
		}, domain.PaginationParams{Limit: f.limit, Cursor: f.cursor})
		if err != nil {
			return err
		}
		page = fromListResult(result, f.limit)
	}

	out := cmd.OutOrStdout()
	if f.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	if len(page.Data) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tCONTRACT\tADDRESS\tDEPLOYMENT\tVERIFIED\tCREATED")
	for _, d := range page.Data {
		deployment := d.DeploymentID
		if deployment == "" {
			deployment = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", d.ChainID, d.ContractName, d.Address, deployment, d.Verified, d.CreatedAt)
	}
	w.Flush()

	if page.Pagination.HasMore {
		fmt.Fprintf(out, "\nMore results: --cursor %s\n", page.Pagination.NextCursor)
	}
	return nil
}

// fromListResult shapes a journal page like the server's list response so
// both sources print the same way
func fromListResult(r *domain.ListResult, limit int) *client.ListDeploymentsResponse {
	resp := &client.ListDeploymentsResponse{
		Data: make([]client.DeploymentSummary, 0, len(r.Deployments)),
		Pagination: client.Pagination{
			Limit:      limit,
			HasMore:    r.HasMore,
			NextCursor: r.NextCursor,
			PrevCursor: r.PrevCursor,
		},
	}
	for _, d := range r.Deployments {
		resp.Data = append(resp.Data, client.DeploymentSummary{
			ChainID:      d.ChainID,
			Address:      d.Address,
			ContractName: d.ContractName,
			DeploymentID: d.DeploymentID,
			FutureID:     d.FutureID,
			Verified:     d.Verified,
			TxHash:       d.TxHash,
			CreatedAt:    formatTime(d.CreatedAt),
		})
	}
	return resp
}

func createDeploymentsInfoCmd() *cobra.Command {
	var server string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <chain-id> <address>",
		Short: "Show one deployment",
		Long: `Show a recorded deployment by chain ID and address.

EXAMPLES:
  piggyfactory deployments info 31337 0x5FbDB2315678afecb367f032d93F642f64180aa3
  piggyfactory deployments info 11155111 0x... --server http://localhost:8080
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, address, err := parseDeploymentRef(args[0], args[1])
			if err != nil {
				return err
			}
			return runDeploymentsInfo(cmd, chainID, address, server, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "deployments server URL")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON")

	return cmd
}

func parseDeploymentRef(chain, address string) (int64, string, error) {
	chainID, err := strconv.ParseInt(chain, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid chain ID %q", chain)
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return 0, "", err
	}
	if err := validation.ValidateAddress(address); err != nil {
		return 0, "", err
	}
	return chainID, common.HexToAddress(address).Hex(), nil
}

func runDeploymentsInfo(cmd *cobra.Command, chainID int64, address, server string, jsonOutput bool) error {
	cfg, project, err := loadSettings()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	if server == "" && project != nil {
		server = project.Server
	}

	var d *client.Deployment
	if server != "" {
		d, err = client.New(server).GetDeployment(ctx, chainID, address)
		if err != nil {
			return err
		}
	} else {
		journal, closeJournal, err := openJournal(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeJournal()

		found, err := journal.Get(ctx, chainID, address)
		if err != nil {
			return err
		}
		d = fromDeployment(found)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	printDeployment(out, d)
	return nil
}

func fromDeployment(d *domain.Deployment) *client.Deployment {
	return &client.Deployment{
		ID:              d.ID,
		DeploymentID:    d.DeploymentID,
		ModuleID:        d.ModuleID,
		FutureID:        d.FutureID,
		ChainID:         d.ChainID,
		Address:         d.Address,
		ContractName:    d.ContractName,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		Source:          d.Source,
		ConstructorArgs: d.ConstructorArgs,
		Verified:        d.Verified,
		VerifiedAt:      formatTime(d.VerifiedAt),
		CreatedAt:       formatTime(d.CreatedAt),
	}
}

func printDeployment(out io.Writer, d *client.Deployment) {
	fmt.Fprintf(out, "%s\n", d.ContractName)
	fmt.Fprintf(out, "   Address:     %s\n", d.Address)
	fmt.Fprintf(out, "   Chain ID:    %d\n", d.ChainID)
	if d.DeploymentID != "" {
		fmt.Fprintf(out, "   Deployment:  %s\n", d.DeploymentID)
	}
	if d.FutureID != "" {
		fmt.Fprintf(out, "   Future:      %s\n", d.FutureID)
	}
	fmt.Fprintf(out, "   Source:      %s\n", d.Source)
	if d.DeployerAddress != "" {
		fmt.Fprintf(out, "   Deployer:    %s\n", d.DeployerAddress)
	}
	if d.TxHash != "" {
		fmt.Fprintf(out, "   Tx:          %s\n", d.TxHash)
	}
	if d.BlockNumber > 0 {
		fmt.Fprintf(out, "   Block:       %d\n", d.BlockNumber)
	}
	if len(d.ConstructorArgs) > 0 && string(d.ConstructorArgs) != "null" {
		fmt.Fprintf(out, "   Args:        %s\n", d.ConstructorArgs)
	}
	if d.Verified {
		fmt.Fprintf(out, "   Verified:    yes (%s)\n", d.VerifiedAt)
	} else {
		fmt.Fprintln(out, "   Verified:    no")
	}
	if d.CreatedAt != "" {
		fmt.Fprintf(out, "   Recorded:    %s\n", d.CreatedAt)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
