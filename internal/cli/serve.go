package cli

import (
	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/observability/metrics"
	"github.com/pendergraft/piggyfactory/internal/server"
)

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the deployment journal over HTTP",
		Long: `Start a read-only HTTP API over the deployment journal:

  GET /api/v1/deployments                      list, filtered and paged
  GET /api/v1/deployments/{chainId}/{address}  one deployment
  GET /health, /readyz, /metrics

Point STORAGE_TYPE=postgres and DATABASE_URL at a shared database to serve
deployments recorded by several machines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	logger.Info("starting piggyfactory server", "version", cmd.Root().Version)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.Init(cfg.Metrics.Enabled, "piggyfactory")

	srv := server.New(cfg, store, logger)
	defer srv.Close()

	return srv.ListenAndServe(ctx)
}
