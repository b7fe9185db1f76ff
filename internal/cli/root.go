// Package cli implements the piggyfactory command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/config"
)

var (
	cfgFile     string
	networkName string
	projectDir  string
)

// ExitError carries a process exit code for failures already reported to
// stderr
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the CLI until it finishes or SIGINT/SIGTERM arrives
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "piggyfactory",
		Short: "Deploy and track the PiggyBankFactory contract",
		Long: `piggyfactory deploys PiggyBankFactory from Hardhat or Foundry build
artifacts, either with the one-shot deployment script (run) or with
resumable ignition modules, and keeps a journal of every deployment.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: <project>/piggyfactory.toml)")
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "", "network from the project config (default: default_network or NETWORK)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "contract project directory (default: PROJECT_DIR or .)")

	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createIgnitionCmd())
	rootCmd.AddCommand(createDeploymentsCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createServeCmd())

	return rootCmd
}

// setupLogger builds the process logger. Logs go to stderr so stdout only
// carries command output.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
