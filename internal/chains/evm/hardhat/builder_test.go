package hardhat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/posdeploy/internal/chains"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// writeProject lays out a compiled Hardhat project the way `npx hardhat compile` does
func writeProject(t *testing.T, withBuildInfo bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hardhat.config.js"), []byte("module.exports = {}"), 0644))

	artifactDir := filepath.Join(dir, "artifacts", "contracts", "Pos25.sol")
	writeJSON(t, filepath.Join(artifactDir, "Pos25.json"), map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     "Pos25",
		"sourceName":       "contracts/Pos25.sol",
		"abi":              []any{},
		"bytecode":         "0x608060405234801561001057600080fd5b50",
		"deployedBytecode": "0x6080604052",
	})

	if withBuildInfo {
		writeJSON(t, filepath.Join(artifactDir, "Pos25.dbg.json"), map[string]any{
			"_format":   "hh-sol-dbg-1",
			"buildInfo": "../../build-info/f00d.json",
		})
		writeJSON(t, filepath.Join(dir, "artifacts", "build-info", "f00d.json"), map[string]any{
			"_format":         "hh-sol-build-info-1",
			"id":              "f00d",
			"solcVersion":     "0.8.19",
			"solcLongVersion": "0.8.19+commit.7dd6d404",
			"input": map[string]any{
				"language": "Solidity",
				"sources":  map[string]any{"contracts/Pos25.sol": map[string]any{"content": "contract Pos25 {}"}},
			},
		})
	}
	return dir
}

func TestBuilder_Detect(t *testing.T) {
	b := New()

	detected, err := b.Detect(writeProject(t, false))
	require.NoError(t, err)
	assert.True(t, detected)

	detected, err = b.Detect(t.TempDir())
	require.NoError(t, err)
	assert.False(t, detected)
}

func TestBuilder_Load(t *testing.T) {
	b := New()

	t.Run("with build-info", func(t *testing.T) {
		artifact, err := b.Load(writeProject(t, true), "Pos25")
		require.NoError(t, err)

		assert.Equal(t, "Pos25", artifact.Name)
		assert.Equal(t, "contracts/Pos25.sol", artifact.SourcePath)
		assert.Equal(t, "contracts/Pos25.sol:Pos25", artifact.FullyQualifiedName())
		assert.Equal(t, "v0.8.19+commit.7dd6d404", artifact.LongCompilerVersion())
		assert.Equal(t, "hardhat", artifact.Builder)
		assert.Contains(t, string(artifact.StandardJSONInput), "contract Pos25")
		assert.NoError(t, artifact.Validate())
	})

	t.Run("without build-info", func(t *testing.T) {
		artifact, err := b.Load(writeProject(t, false), "Pos25")
		require.NoError(t, err)
		assert.Empty(t, artifact.Compiler.Version)
		assert.Empty(t, artifact.StandardJSONInput)
	})

	t.Run("not compiled", func(t *testing.T) {
		_, err := b.Load(t.TempDir(), "Pos25")
		assert.ErrorIs(t, err, chains.ErrArtifactNotFound)
	})

	t.Run("unknown contract", func(t *testing.T) {
		_, err := b.Load(writeProject(t, false), "Missing")
		assert.ErrorIs(t, err, chains.ErrArtifactNotFound)
	})

	t.Run("ambiguous name", func(t *testing.T) {
		dir := writeProject(t, false)
		writeJSON(t, filepath.Join(dir, "artifacts", "contracts", "v2", "Pos25.sol", "Pos25.json"), map[string]any{
			"_format":      "hh-sol-artifact-1",
			"contractName": "Pos25",
			"sourceName":   "contracts/v2/Pos25.sol",
			"bytecode":     "0x00",
		})

		_, err := b.Load(dir, "Pos25")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ambiguous")
	})
}

func TestBuilder_ParseRejectsOtherFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Pos25.json")
	writeJSON(t, path, map[string]any{"_format": "hh-zksolc-artifact-1"})

	_, err := New().Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact format")
}
