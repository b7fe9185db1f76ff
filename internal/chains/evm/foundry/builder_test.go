package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/piggyfactory/internal/chains"
)

func writeArtifact(t *testing.T, outDir, sourcePath, name, bytecode string) string {
	t.Helper()
	artifactDir := filepath.Join(outDir, filepath.Base(sourcePath))
	require.NoError(t, os.MkdirAll(artifactDir, 0755))

	metadata := fmt.Sprintf(`{"compiler":{"version":"0.8.28+commit.7893614a"},"settings":{"compilationTarget":{%q:%q},"evmVersion":"cancun","optimizer":{"enabled":true,"runs":200}},"sources":{%q:{"license":"MIT"}}}`,
		sourcePath, name, sourcePath)
	artifact := map[string]any{
		"abi":              []map[string]any{{"type": "function", "name": "createPiggyBank"}},
		"bytecode":         map[string]any{"object": bytecode},
		"deployedBytecode": map[string]any{"object": "0x6080"},
		"rawMetadata":      metadata,
	}
	data, _ := json.Marshal(artifact)
	path := filepath.Join(artifactDir, name+".json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newProject(t *testing.T, foundryToml string) (dir, outDir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte(foundryToml), 0644))
	return dir, New().OutDir(dir)
}

func TestBuilder_Metadata(t *testing.T) {
	b := New()

	assert.Equal(t, "foundry", b.Name())
	assert.Equal(t, "Foundry", b.DisplayName())
	assert.Equal(t, "evm", b.Chain())
	assert.Equal(t, "foundry.toml", b.ConfigFile())
}

func TestBuilder_Detect(t *testing.T) {
	b := New()

	t.Run("with foundry.toml", func(t *testing.T) {
		dir, _ := newProject(t, "[profile.default]")
		detected, err := b.Detect(dir)
		require.NoError(t, err)
		assert.True(t, detected)
	})

	t.Run("without foundry.toml", func(t *testing.T) {
		detected, err := b.Detect(t.TempDir())
		require.NoError(t, err)
		assert.False(t, detected)
	})
}

func TestBuilder_OutDir(t *testing.T) {
	b := New()

	dir, _ := newProject(t, "[profile.default]\nsrc = \"src\"\n")
	assert.Equal(t, filepath.Join(dir, "out"), b.OutDir(dir))

	dir, _ = newProject(t, "[profile.default]\nout = \"build\"\n")
	assert.Equal(t, filepath.Join(dir, "build"), b.OutDir(dir))
}

func TestBuilder_Discover(t *testing.T) {
	b := New()

	t.Run("project sources only", func(t *testing.T) {
		dir, out := newProject(t, "[profile.default]")
		writeArtifact(t, out, "src/PiggyBankFactory.sol", "PiggyBankFactory", "0x6080")
		writeArtifact(t, out, "lib/openzeppelin-contracts/contracts/token/ERC20/ERC20.sol", "ERC20", "0x6080")
		writeArtifact(t, out, "src/MockToken.sol", "MockToken", "0x6080")

		paths, err := b.Discover(dir, chains.DiscoverOptions{Exclude: []string{"Mock"}})
		require.NoError(t, err)
		require.Len(t, paths, 1)
		assert.Equal(t, "PiggyBankFactory.json", filepath.Base(paths[0]))
	})

	t.Run("not built", func(t *testing.T) {
		dir, _ := newProject(t, "[profile.default]")
		_, err := b.Discover(dir, chains.DiscoverOptions{})
		assert.Error(t, err)
	})
}

func TestBuilder_FindAndParse(t *testing.T) {
	b := New()
	dir, out := newProject(t, "[profile.default]\nout = \"build\"\n")
	writeArtifact(t, out, "src/PiggyBankFactory.sol", "PiggyBankFactory", "0x60806040")

	path, err := b.Find(dir, "PiggyBankFactory")
	require.NoError(t, err)

	artifact, err := b.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "PiggyBankFactory", artifact.Name)
	assert.Equal(t, "src/PiggyBankFactory.sol", artifact.EVM.SourcePath)
	assert.Equal(t, "MIT", artifact.EVM.License)
	assert.Equal(t, "0x60806040", artifact.EVM.Bytecode)
	assert.Equal(t, "0.8.28+commit.7893614a", artifact.EVM.Compiler.Version)
	assert.Equal(t, "cancun", artifact.EVM.Compiler.EVMVersion)
	assert.Equal(t, 200, artifact.EVM.Compiler.Optimizer.Runs)

	_, err = b.Find(dir, "Missing")
	assert.ErrorIs(t, err, chains.ErrArtifactNotFound)
}

func TestBuilder_FindPrefersProjectSource(t *testing.T) {
	b := New()
	dir, out := newProject(t, "[profile.default]")
	want := writeArtifact(t, out, "src/Ownable.sol", "Ownable", "0x6080")
	writeArtifact(t, filepath.Join(out, "lib"), "lib/oz/Ownable.sol", "Ownable", "0x6080")

	path, err := b.Find(dir, "Ownable")
	require.NoError(t, err)
	assert.Equal(t, want, path)
}

func TestBuilder_ParseInterface(t *testing.T) {
	_, out := newProject(t, "[profile.default]")
	path := writeArtifact(t, out, "src/IPiggyBank.sol", "IPiggyBank", "0x")

	_, err := New().Parse(path)
	assert.Error(t, err)
}
