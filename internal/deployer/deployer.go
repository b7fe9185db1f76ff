// Package deployer sends contract creation transactions built from compiled
// artifacts and tracks them until they are confirmed on chain.
package deployer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/chains/evm"
	"github.com/pendergraft/piggyfactory/internal/validation"
)

// Deployment errors
var (
	ErrArtifactNotFound   = chains.ErrArtifactNotFound
	ErrUnlinkedLibraries  = evm.ErrUnlinkedLibraries
	ErrDeploymentReverted = errors.New("deployment transaction reverted")
	ErrNoCode             = errors.New("no code at deployed address")
	ErrCompilerTooOld     = errors.New("compiler version below minimum")
)

// Backend is everything a deployment needs from a node. ethclient.Client and
// the go-ethereum simulated backend both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// ArtifactSource resolves compiled contracts by name
type ArtifactSource interface {
	Artifact(name string) (*chains.Artifact, error)
}

// Client deploys contracts with a single signer
type Client struct {
	backend       Backend
	artifacts     ArtifactSource
	signer        *bind.TransactOpts
	confirmations uint64
	pollInterval  time.Duration
	minCompiler   string
	libraries     map[string]string
	logger        *slog.Logger

	closer    func()
	closeOnce sync.Once
}

// Option configures a Client
type Option func(*Client)

// WithConfirmations sets how many blocks (including the inclusion block) a
// deployment waits for. Values below 1 are treated as 1.
func WithConfirmations(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.confirmations = uint64(n)
	}
}

// WithPollInterval sets how often the confirmation wait polls for new blocks
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMinCompilerVersion refuses artifacts built by an older solc
func WithMinCompilerVersion(v string) Option {
	return func(c *Client) { c.minCompiler = v }
}

// WithLibraries links library addresses, keyed by fully qualified name
func WithLibraries(libs map[string]string) Option {
	return func(c *Client) { c.libraries = libs }
}

// WithCloser registers a function Close runs once, usually the Close of the
// RPC connection the client owns
func WithCloser(fn func()) Option {
	return func(c *Client) { c.closer = fn }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a deployment client
func New(backend Backend, artifacts ArtifactSource, signer *bind.TransactOpts, opts ...Option) *Client {
	c := &Client{
		backend:       backend,
		artifacts:     artifacts,
		signer:        signer,
		confirmations: 1,
		pollInterval:  time.Second,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the connection registered with WithCloser. It is safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closer()
		}
	})
}

// Dial connects to a JSON-RPC endpoint
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", rpcURL, err)
	}
	return client, nil
}

// NewSigner builds transaction options from a hex private key
func NewSigner(hexKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	return opts, nil
}

// ParsePrivateKey parses a hex private key, with or without 0x
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("no deployer private key configured")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// ChainID returns the chain ID reported by the node
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// From returns the deployer account
func (c *Client) From() common.Address {
	return c.signer.From
}

// CodeAt returns the code at an address at the latest block
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.backend.CodeAt(ctx, address, nil)
}

// DeployContract sends the creation transaction for a contract. It returns
// once the transaction is accepted by the node; call WaitForDeployment to
// wait for it to be mined.
func (c *Client) DeployContract(ctx context.Context, name string, args ...any) (*Contract, error) {
	return c.DeployContractWithValue(ctx, name, nil, args...)
}

// DeployContractWithValue is DeployContract for payable constructors
func (c *Client) DeployContractWithValue(ctx context.Context, name string, value *big.Int, args ...any) (*Contract, error) {
	if err := validation.ValidateContractName(name); err != nil {
		return nil, err
	}

	artifact, err := c.artifacts.Artifact(name)
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s: %w", name, err)
	}
	if artifact.EVM == nil {
		return nil, fmt.Errorf("artifact %s has no EVM section", name)
	}

	if c.minCompiler != "" && artifact.EVM.Compiler.Version != "" {
		ok, err := validation.CompilerAtLeast(artifact.EVM.Compiler.Version, c.minCompiler)
		if err != nil {
			return nil, fmt.Errorf("checking compiler version: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s built with %s, need %s", ErrCompilerTooOld, name, artifact.EVM.Compiler.Version, c.minCompiler)
		}
	}

	bytecode := artifact.EVM.Bytecode
	if len(c.libraries) > 0 && evm.HasLibraryPlaceholders([]byte(bytecode)) {
		linked, err := evm.LinkLibraries(bytecode, c.libraries)
		if err != nil {
			return nil, fmt.Errorf("linking %s: %w", name, err)
		}
		bytecode = linked
	}
	if evm.HasLibraryPlaceholders([]byte(bytecode)) {
		return nil, fmt.Errorf("%w: %s", ErrUnlinkedLibraries, name)
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.EVM.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI for %s: %w", name, err)
	}

	opts := *c.signer
	opts.Context = ctx
	opts.Value = value

	address, tx, _, err := bind.DeployContract(&opts, parsed, common.FromHex(bytecode), c.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}

	c.logger.Info("deployment transaction sent",
		"contract", name,
		"address", address.Hex(),
		"tx", tx.Hash().Hex(),
		"from", c.signer.From.Hex(),
	)

	return &Contract{
		Name:    name,
		Address: address,
		Tx:      tx,
		ABI:     parsed,
		client:  c,
	}, nil
}
