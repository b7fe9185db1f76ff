// Package foundry provides the Foundry builder for EVM contracts.
package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/piggyfactory/internal/chains"
)

const defaultOutDir = "out"

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// Chain returns the chain this builder targets
func (b *Builder) Chain() string {
	return "evm"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// foundryConfig is the subset of foundry.toml we read
type foundryConfig struct {
	Profile map[string]struct {
		Out string `toml:"out"`
	} `toml:"profile"`
}

// OutDir returns the artifact directory, honoring [profile.default] out
func (b *Builder) OutDir(dir string) string {
	var cfg foundryConfig
	if _, err := toml.DecodeFile(filepath.Join(dir, b.ConfigFile()), &cfg); err == nil {
		if p, ok := cfg.Profile["default"]; ok && p.Out != "" {
			return filepath.Join(dir, p.Out)
		}
	}
	return filepath.Join(dir, defaultOutDir)
}

// walk visits every contract artifact: <out>/<Source>.sol/<Contract>.json
func (b *Builder) walk(dir string, fn func(path, contractName string) error) error {
	outDir := b.OutDir(dir)
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return fmt.Errorf("%s directory not found - run 'forge build' first", filepath.Base(outDir))
	}

	return filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") || !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		return fn(path, strings.TrimSuffix(info.Name(), ".json"))
	})
}

// Discover finds project contract artifacts. Only sources under src/ are
// returned; lib/ dependencies and scripts are skipped.
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

		sourcePath, err := artifactSourcePath(path)
		if err != nil || !strings.HasPrefix(sourcePath, "src/") {
			return nil
		}

		seen[contractName] = true
		artifacts = append(artifacts, path)
		return nil
	})
	return artifacts, err
}

// Find returns the artifact path for a contract, preferring src/ sources
// when the same name is compiled from several files.
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
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, b.OutDir(dir))
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	var project []string
	for _, m := range matches {
		if src, err := artifactSourcePath(m); err == nil && strings.HasPrefix(src, "src/") {
			project = append(project, m)
		}
	}
	if len(project) == 1 {
		return project[0], nil
	}
	return "", fmt.Errorf("multiple artifacts named %s: %s", contractName, strings.Join(matches, ", "))
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface)")
	}

	var metadata Metadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata) // missing metadata only loses compiler details
	}

	return &chains.Artifact{
		Name:  strings.TrimSuffix(filepath.Base(artifactPath), ".json"),
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       firstKey(metadata.Settings.CompilationTarget),
			License:          metadata.Sources.FirstLicense(),
			ABI:              raw.ABI,
			Bytecode:         raw.Bytecode.Object,
			DeployedBytecode: raw.DeployedBytecode.Object,
			Compiler: chains.EVMCompiler{
				Version:    metadata.Compiler.Version,
				EVMVersion: metadata.Settings.EVMVersion,
				ViaIR:      metadata.Settings.ViaIR,
				Optimizer: chains.OptimizerConfig{
					Enabled: metadata.Settings.Optimizer.Enabled,
					Runs:    metadata.Settings.Optimizer.Runs,
				},
			},
		},
	}, nil
}

func artifactSourcePath(artifactPath string) (string, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", err
	}
	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	if raw.RawMetadata == "" {
		return "", fmt.Errorf("no metadata")
	}
	var metadata Metadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return "", err
	}
	return firstKey(metadata.Settings.CompilationTarget), nil
}

// Artifact represents the structure of a Foundry artifact JSON file
type Artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object         string                       `json:"object"`
	LinkReferences map[string]map[string][]Link `json:"linkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Metadata is the parsed rawMetadata field
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string `json:"language"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
		EVMVersion        string            `json:"evmVersion"`
		Optimizer         struct {
			Enabled bool `json:"enabled"`
			Runs    int  `json:"runs"`
		} `json:"optimizer"`
		ViaIR bool `json:"viaIR"`
	} `json:"settings"`
	Sources Sources `json:"sources"`
}

// Sources maps source paths to their metadata
type Sources map[string]struct {
	Keccak256 string `json:"keccak256"`
	License   string `json:"license"`
}

// FirstLicense returns the first license found in sources
func (s Sources) FirstLicense() string {
	for _, src := range s {
		if src.License != "" {
			return src.License
		}
	}
	return ""
}

func firstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// excluded checks suffix ("Test"), prefix ("Mock") and glob patterns
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
