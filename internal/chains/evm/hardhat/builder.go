// Package hardhat provides the Hardhat builder for EVM contracts.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/piggyfactory/internal/chains"
)

// configFiles are the Hardhat config names, in detection order
var configFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// artifactFormat is the _format value of Hardhat contract artifacts
const artifactFormat = "hh-sol-artifact-1"

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// Chain returns the chain this builder targets
func (b *Builder) Chain() string {
	return "evm"
}

// ConfigFile returns the primary config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Artifact is the structure of a Hardhat artifact JSON file
type Artifact struct {
	Format                 string                       `json:"_format"`
	ContractName           string                       `json:"contractName"`
	SourceName             string                       `json:"sourceName"`
	ABI                    json.RawMessage              `json:"abi"`
	Bytecode               string                       `json:"bytecode"`
	DeployedBytecode       string                       `json:"deployedBytecode"`
	LinkReferences         map[string]map[string][]Link `json:"linkReferences"`
	DeployedLinkReferences map[string]map[string][]Link `json:"deployedLinkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// DebugFile is the <Contract>.dbg.json companion pointing at build-info
type DebugFile struct {
	Format    string `json:"_format"`
	BuildInfo string `json:"buildInfo"`
}

// BuildInfo is the subset of a Hardhat build-info file we read
type BuildInfo struct {
	SolcVersion     string `json:"solcVersion"`
	SolcLongVersion string `json:"solcLongVersion"`
	Input           struct {
		Settings struct {
			Optimizer struct {
				Enabled bool `json:"enabled"`
				Runs    int  `json:"runs"`
			} `json:"optimizer"`
			EVMVersion string `json:"evmVersion"`
			ViaIR      bool   `json:"viaIR"`
		} `json:"settings"`
	} `json:"input"`
}

// walk visits every contract artifact under artifacts/
func (b *Builder) walk(dir string, fn func(path, contractName string) error) error {
	artifactsDir := filepath.Join(dir, "artifacts")
	if _, err := os.Stat(artifactsDir); os.IsNotExist(err) {
		return fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
	}

	return filepath.Walk(artifactsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		name := info.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}
		// artifacts/<sourceName>/<Contract>.json
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		return fn(path, strings.TrimSuffix(name, ".json"))
	})
}

// Discover finds all contract artifacts in a Hardhat project
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	var artifacts []string
	seen := make(map[string]bool)

	err := b.walk(dir, func(path, contractName string) error {
		if seen[contractName] {
			return nil
		}
		if len(opts.Contracts) > 0 && !contains(opts.Contracts, contractName) {
			return nil
		}
		if excluded(contractName, opts.Exclude) {
			return nil
		}
		seen[contractName] = true
		artifacts = append(artifacts, path)
		return nil
	})
	return artifacts, err
}

// Find returns the artifact path for a contract. Two sources defining the
// same contract name make the lookup ambiguous.
func (b *Builder) Find(dir string, contractName string) (string, error) {
	var matches []string
	err := b.walk(dir, func(path, name string) error {
		if name == contractName {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, filepath.Join(dir, "artifacts"))
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("multiple artifacts named %s: %s", contractName, strings.Join(matches, ", "))
	}
}

// Parse parses a Hardhat artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	if raw.Format != "" && raw.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", raw.Format)
	}
	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface or abstract contract)")
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	artifact := &chains.Artifact{
		Name:  name,
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       raw.SourceName,
			ABI:              raw.ABI,
			Bytecode:         raw.Bytecode,
			DeployedBytecode: raw.DeployedBytecode,
		},
	}

	// Compiler details live in build-info, reached through the .dbg.json file
	if bi, err := readBuildInfo(artifactPath); err == nil {
		artifact.EVM.Compiler = chains.EVMCompiler{
			Version:    bi.SolcLongVersion,
			EVMVersion: bi.Input.Settings.EVMVersion,
			ViaIR:      bi.Input.Settings.ViaIR,
			Optimizer: chains.OptimizerConfig{
				Enabled: bi.Input.Settings.Optimizer.Enabled,
				Runs:    bi.Input.Settings.Optimizer.Runs,
			},
		}
		if artifact.EVM.Compiler.Version == "" {
			artifact.EVM.Compiler.Version = bi.SolcVersion
		}
	}

	return artifact, nil
}

func readBuildInfo(artifactPath string) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, err
	}
	var dbg DebugFile
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, err
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("no build-info reference in %s", dbgPath)
	}

	data, err = os.ReadFile(filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo))
	if err != nil {
		return nil, err
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, err
	}
	return &bi, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// excluded checks suffix, prefix and glob patterns
func excluded(contractName string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(contractName, pattern) || strings.HasPrefix(contractName, pattern) {
			return true
		}
		if matched, _ := filepath.Match(pattern, contractName); matched {
			return true
		}
	}
	return false
}
