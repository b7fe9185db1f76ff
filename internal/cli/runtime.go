package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/term"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/chains/evm"
	"github.com/pendergraft/piggyfactory/internal/config"
	"github.com/pendergraft/piggyfactory/internal/deployer"
	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/storage"
)

// ErrNoPrivateKey is returned when no deployer key is configured and stdin
// is not a terminal
var ErrNoPrivateKey = errors.New("no deployer private key: set DEPLOYER_PRIVATE_KEY or private_key_env for the network")

// newDeployer connects to the configured network and returns a deployer
// client reading artifacts from the project. Closing the client closes the
// RPC connection. Tests replace it with a simulated chain.
var newDeployer = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deployer.Client, error) {
	artifacts, err := openArtifacts(cfg)
	if err != nil {
		return nil, err
	}

	eth, chainID, err := dialNetwork(ctx, cfg)
	if err != nil {
		return nil, err
	}

	key, err := resolvePrivateKey(cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	signer, err := deployer.NewSigner(key, chainID)
	if err != nil {
		eth.Close()
		return nil, err
	}

	return deployer.New(eth, artifacts, signer,
		deployer.WithConfirmations(cfg.Network.Confirmations),
		deployer.WithMinCompilerVersion(cfg.Project.MinSolcVersion),
		deployer.WithLibraries(cfg.Network.Libraries),
		deployer.WithCloser(eth.Close),
		deployer.WithLogger(logger),
	), nil
}

// applyLibraryFlags merges --library values over the network's libraries
func applyLibraryFlags(cfg *config.Config, values []string) error {
	libs, err := parseLibraries(values)
	if err != nil {
		return err
	}
	if len(libs) == 0 {
		return nil
	}
	if cfg.Network.Libraries == nil {
		cfg.Network.Libraries = make(map[string]string, len(libs))
	}
	maps.Copy(cfg.Network.Libraries, libs)
	return nil
}

// dialNetwork connects to the RPC endpoint and checks the chain ID against
// the configured one
func dialNetwork(ctx context.Context, cfg *config.Config) (*ethclient.Client, *big.Int, error) {
	eth, err := deployer.Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("reading chain id from %s: %w", cfg.Network.RPCURL, err)
	}
	if cfg.Network.ChainID != 0 && chainID.Int64() != cfg.Network.ChainID {
		eth.Close()
		return nil, nil, fmt.Errorf("network %s: node reports chain id %s, config expects %d",
			cfg.Network.Name, chainID, cfg.Network.ChainID)
	}
	return eth, chainID, nil
}

// readSecret reads a line from the terminal without echo
var readSecret = func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoPrivateKey
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}
	return string(b), nil
}

func resolvePrivateKey(cfg *config.Config) (string, error) {
	if cfg.Network.PrivateKey != "" {
		return cfg.Network.PrivateKey, nil
	}
	key, err := readSecret(fmt.Sprintf("Deployer private key for %s: ", cfg.Network.Name))
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoPrivateKey
	}
	return key, nil
}

// openArtifacts returns an artifact source for the project's builder
func openArtifacts(cfg *config.Config) (*chains.ProjectArtifacts, error) {
	registry := chains.NewRegistry()
	registry.Register(evm.NewChain(nil))

	var builder chains.Builder
	var err error
	if cfg.Project.Builder != "" {
		builder, err = registry.BuilderByName(cfg.Project.Builder)
	} else {
		_, builder, err = registry.DetectChainAndBuilder(cfg.Project.Dir)
	}
	if err != nil {
		return nil, err
	}
	return chains.NewProjectArtifacts(cfg.Project.Dir, builder), nil
}

// openStore opens and migrates the deployment store, creating the sqlite
// directory when needed
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage.Type == "sqlite" {
		if dir := filepath.Dir(cfg.Storage.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating journal directory: %w", err)
			}
		}
	}

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// openJournal returns the deployments service over the local store
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Service, func(), error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := domain.LoggingMiddleware(logger)(domain.NewService(store))
	return svc, func() { store.Close() }, nil
}

// deployContext bounds a deployment by DEPLOY_TIMEOUT when set
func deployContext(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Network.DeployTimeout > 0 {
		return context.WithTimeout(ctx, time.Duration(cfg.Network.DeployTimeout)*time.Second)
	}
	return context.WithCancel(ctx)
}
