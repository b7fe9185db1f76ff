// Package chains provides the chain module interfaces and the artifact
// builders used to locate compiled contracts in a project.
package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Chain represents a blockchain ecosystem
type Chain interface {
	// Metadata
	Name() string        // "evm"
	DisplayName() string // "Ethereum/EVM"

	// Builder discovery
	DetectBuilder(dir string) (Builder, error)
	Builders() []Builder

	// Verification
	VerifyDeployment(ctx context.Context, opts VerifyOptions) (*VerifyResult, error)
	GetDeployedBytecode(ctx context.Context, address string) ([]byte, error)
}

// Builder parses artifacts from a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"
	Chain() string       // "evm"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string // "foundry.toml", "hardhat.config.ts"

	// Artifact handling
	Discover(dir string, opts DiscoverOptions) ([]string, error)
	Find(dir string, contractName string) (string, error)
	Parse(artifactPath string) (*Artifact, error)
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
	// Patterns to exclude (e.g., "Test*", "Mock*")
	Exclude []string
}

// VerifyOptions configures verification
type VerifyOptions struct {
	Address      string
	ExpectedCode []byte
	Libraries    map[string]string
}

// VerifyResult contains verification results
type VerifyResult struct {
	Match     bool   // Whether the bytecode matches
	MatchType string // "full", "partial", "none"
	Message   string // Human-readable explanation
}

// Artifact is a compiled contract as produced by a builder
type Artifact struct {
	Name  string `json:"name"`
	Chain string `json:"chain"`

	EVM *EVMArtifact `json:"evm,omitempty"`
}

// EVMArtifact contains EVM-specific contract data
type EVMArtifact struct {
	SourcePath       string          `json:"sourcePath"`
	License          string          `json:"license,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Compiler         EVMCompiler     `json:"compiler"`
}

// EVMCompiler contains EVM compiler details
type EVMCompiler struct {
	Version    string          `json:"version"` // "0.8.20+commit.a1b2c3d4"
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion"` // "paris", "shanghai"
	ViaIR      bool            `json:"viaIR"`
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// ErrArtifactNotFound is returned when a builder has no artifact for a contract
var ErrArtifactNotFound = errors.New("artifact not found")

// Registry holds all registered chain modules
type Registry struct {
	chains map[string]Chain
}

// NewRegistry creates a new chain registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string]Chain),
	}
}

// Register adds a chain module to the registry
func (r *Registry) Register(c Chain) {
	r.chains[c.Name()] = c
}

// Get retrieves a chain module by name
func (r *Registry) Get(name string) (Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// List returns all registered chain modules sorted by name
func (r *Registry) List() []Chain {
	chains := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Name() < chains[j].Name() })
	return chains
}

// DetectChainAndBuilder detects the chain and builder for a project directory
func (r *Registry) DetectChainAndBuilder(dir string) (Chain, Builder, error) {
	for _, chain := range r.List() {
		builder, err := chain.DetectBuilder(dir)
		if err == nil && builder != nil {
			return chain, builder, nil
		}
	}
	return nil, nil, fmt.Errorf("no supported builder detected in %s", dir)
}

// BuilderByName finds a builder across all chains
func (r *Registry) BuilderByName(name string) (Builder, error) {
	for _, chain := range r.List() {
		for _, b := range chain.Builders() {
			if b.Name() == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown builder: %s", name)
}

// ProjectArtifacts resolves contract artifacts from a project directory,
// caching each parsed artifact by contract name.
type ProjectArtifacts struct {
	dir     string
	builder Builder

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewProjectArtifacts creates an artifact resolver for a project directory
func NewProjectArtifacts(dir string, builder Builder) *ProjectArtifacts {
	return &ProjectArtifacts{
		dir:     dir,
		builder: builder,
		cache:   make(map[string]*Artifact),
	}
}

// Builder returns the builder used to read artifacts
func (p *ProjectArtifacts) Builder() Builder {
	return p.builder
}

// Artifact returns the parsed artifact for a contract
func (p *ProjectArtifacts) Artifact(contractName string) (*Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.cache[contractName]; ok {
		return a, nil
	}

	path, err := p.builder.Find(p.dir, contractName)
	if err != nil {
		return nil, err
	}

	a, err := p.builder.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s artifact for %s: %w", p.builder.DisplayName(), contractName, err)
	}

	p.cache[contractName] = a
	return a, nil
}

// Contracts lists the names of the contracts the builder discovers in the
// project, sorted
func (p *ProjectArtifacts) Contracts(opts DiscoverOptions) ([]string, error) {
	paths, err := p.builder.Discover(p.dir, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, strings.TrimSuffix(filepath.Base(path), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Require checks that every named contract has an artifact. Names the
// builder does not discover among project sources, such as library
// dependencies, are looked up directly.
func (p *ProjectArtifacts) Require(names ...string) error {
	wanted := slices.Clone(names)
	slices.Sort(wanted)
	wanted = slices.Compact(wanted)

	found, err := p.Contracts(DiscoverOptions{Contracts: wanted})
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range wanted {
		if slices.Contains(found, name) {
			continue
		}
		if _, err := p.Artifact(name); err != nil {
			if !errors.Is(err, ErrArtifactNotFound) {
				return err
			}
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, strings.Join(missing, ", "))
	}
	return nil
}
