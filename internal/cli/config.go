package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pendergraft/piggyfactory/internal/config"
)

// projectConfigFile is looked up in the project directory
const projectConfigFile = "piggyfactory.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	DefaultNetwork string                   `toml:"default_network,omitempty"`
	Builder        string                   `toml:"builder,omitempty"`
	IgnitionDir    string                   `toml:"ignition_dir,omitempty"`
	MinSolcVersion string                   `toml:"min_solc_version,omitempty"`
	Server         string                   `toml:"server,omitempty"`
	Networks       map[string]NetworkConfig `toml:"networks,omitempty"`
}

// NetworkConfig is one [networks.<name>] table
type NetworkConfig struct {
	URL           string `toml:"url"`
	ChainID       int64  `toml:"chain_id,omitempty"`
	Confirmations int    `toml:"confirmations,omitempty"`
	// PrivateKeyEnv names the environment variable holding the deployer key
	PrivateKeyEnv string `toml:"private_key_env,omitempty"`
	// Libraries maps fully qualified library names to deployed addresses
	Libraries map[string]string `toml:"libraries,omitempty"`
}

// ErrUnknownNetwork is returned when --network names no configured network
var ErrUnknownNetwork = errors.New("unknown network")

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var url string
	var chainID int64
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create piggyfactory.toml",
		Long: `Create a piggyfactory.toml in the project directory with a localhost
network and a commented example of a remote one.

EXAMPLES:
  piggyfactory config init
  piggyfactory config init --url http://127.0.0.1:8545 --chain-id 31337
  piggyfactory config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), url, chainID, force)
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8545", "RPC URL of the localhost network")
	cmd.Flags().Int64Var(&chainID, "chain-id", 31337, "chain ID of the localhost network")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration after applying, in order of
precedence: command line flags, environment variables, piggyfactory.toml,
defaults. Private keys are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(out io.Writer, url string, chainID int64, force bool) error {
	path := projectConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content := fmt.Sprintf(`# piggyfactory project configuration

default_network = "localhost"

# Artifact builder: "hardhat", "foundry" or empty to detect
# builder = "hardhat"

# Where ignition writes deployed_addresses.json, relative to the project
# ignition_dir = "ignition/deployments"

# Reject artifacts compiled with an older solc
# min_solc_version = "0.8.20"

# Deployments server used by 'deployments list --server'
# server = "http://localhost:8080"

[networks.localhost]
url = %q
chain_id = %d
confirmations = 1

# [networks.sepolia]
# url = "https://sepolia.infura.io/v3/<project-id>"
# chain_id = 11155111
# confirmations = 2
# private_key_env = "SEPOLIA_PRIVATE_KEY"
`, url, chainID)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Edit %s to add your networks\n", path)
	fmt.Fprintln(out, "  2. Compile your contracts (npx hardhat compile or forge build)")
	fmt.Fprintln(out, "  3. Run 'piggyfactory run' or 'piggyfactory ignition deploy'")

	return nil
}

func runConfigShow(out io.Writer) error {
	cfg, project, err := loadSettings()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Project config: %s", projectConfigPath())
	if project == nil {
		fmt.Fprint(out, " (not found)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Network:")
	fmt.Fprintf(out, "   name:          %s\n", cfg.Network.Name)
	fmt.Fprintf(out, "   url:           %s\n", cfg.Network.RPCURL)
	if cfg.Network.ChainID != 0 {
		fmt.Fprintf(out, "   chain_id:      %d\n", cfg.Network.ChainID)
	} else {
		fmt.Fprintln(out, "   chain_id:      (from node)")
	}
	fmt.Fprintf(out, "   confirmations: %d\n", cfg.Network.Confirmations)
	for _, name := range slices.Sorted(maps.Keys(cfg.Network.Libraries)) {
		fmt.Fprintf(out, "   library:       %s=%s\n", name, cfg.Network.Libraries[name])
	}
	if cfg.Network.PrivateKey != "" {
		fmt.Fprintf(out, "   private_key:   %s\n", maskKey(cfg.Network.PrivateKey))
	} else {
		fmt.Fprintln(out, "   private_key:   (not set, will prompt)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Project:")
	fmt.Fprintf(out, "   dir:           %s\n", cfg.Project.Dir)
	builder := cfg.Project.Builder
	if builder == "" {
		builder = "(detect)"
	}
	fmt.Fprintf(out, "   builder:       %s\n", builder)
	fmt.Fprintf(out, "   ignition_dir:  %s\n", ignitionDir(cfg))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Journal:")
	fmt.Fprintf(out, "   storage:       %s\n", cfg.Storage.Type)
	if cfg.Storage.Type == "sqlite" {
		fmt.Fprintf(out, "   path:          %s\n", cfg.Storage.SQLite.Path)
	}

	if project != nil && len(project.Networks) > 0 {
		names := make([]string, 0, len(project.Networks))
		for name := range project.Networks {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configured networks:")
		for _, name := range names {
			fmt.Fprintf(out, "   %s\t%s\n", name, project.Networks[name].URL)
		}
	}

	return nil
}

// loadSettings resolves the effective configuration. Flags win over
// environment variables, which win over piggyfactory.toml, which wins over
// built-in defaults.
func loadSettings() (*config.Config, *ProjectConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if projectDir != "" {
		cfg.Project.Dir = projectDir
	}

	project, err := loadProjectConfig()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	if err := applyProjectConfig(cfg, project); err != nil {
		return nil, nil, err
	}
	return cfg, project, nil
}

func applyProjectConfig(cfg *config.Config, project *ProjectConfig) error {
	name := networkName
	if name == "" && !envSet("NETWORK") && project != nil && project.DefaultNetwork != "" {
		name = project.DefaultNetwork
	}
	if name == "" {
		name = cfg.Network.Name
	}
	cfg.Network.Name = name

	if project == nil {
		if networkName != "" && networkName != "localhost" {
			return fmt.Errorf("%w %q: no %s found", ErrUnknownNetwork, networkName, projectConfigFile)
		}
		return nil
	}

	if project.Builder != "" && !envSet("ARTIFACT_BUILDER") {
		cfg.Project.Builder = project.Builder
	}
	if project.IgnitionDir != "" && !envSet("IGNITION_DIR") {
		cfg.Project.IgnitionDir = project.IgnitionDir
	}
	if project.MinSolcVersion != "" && !envSet("MIN_SOLC_VERSION") {
		cfg.Project.MinSolcVersion = project.MinSolcVersion
	}

	network, ok := project.Networks[name]
	if !ok {
		if networkName != "" {
			return fmt.Errorf("%w %q in %s", ErrUnknownNetwork, name, projectConfigPath())
		}
		return nil
	}

	if network.URL != "" && !envSet("RPC_URL") {
		cfg.Network.RPCURL = network.URL
	}
	if network.ChainID != 0 && !envSet("CHAIN_ID") {
		cfg.Network.ChainID = network.ChainID
	}
	if network.Confirmations > 0 && !envSet("CONFIRMATIONS") {
		cfg.Network.Confirmations = network.Confirmations
	}
	if network.PrivateKeyEnv != "" && !envSet("DEPLOYER_PRIVATE_KEY") {
		cfg.Network.PrivateKey = os.Getenv(network.PrivateKeyEnv)
	}
	if len(network.Libraries) > 0 {
		cfg.Network.Libraries = maps.Clone(network.Libraries)
	}
	return nil
}

// projectConfigPath returns --config or piggyfactory.toml in the project dir
func projectConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	dir := projectDir
	if dir == "" {
		dir = os.Getenv("PROJECT_DIR")
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, projectConfigFile)
}

// loadProjectConfig returns os.ErrNotExist when there is no config file
func loadProjectConfig() (*ProjectConfig, error) {
	return loadProjectConfigFromPath(projectConfigPath())
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, nil
}

func envSet(key string) bool {
	return os.Getenv(key) != ""
}

// ignitionDir resolves the ignition deployments directory against the project
func ignitionDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Project.IgnitionDir) {
		return cfg.Project.IgnitionDir
	}
	return filepath.Join(cfg.Project.Dir, cfg.Project.IgnitionDir)
}

// maskKey shows only the last four characters of a secret
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
