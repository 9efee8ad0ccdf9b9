// Package foundry provides the Foundry builder for EVM contracts.
package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/posdeploy/internal/chains"
)

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

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, "foundry.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Load finds out/{Source}.sol/{contractName}.json. When the same name is
// compiled from several sources, the one under src/ wins.
func (b *Builder) Load(dir, contractName string) (*chains.Artifact, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: out directory not found - run 'forge build' first", chains.ErrArtifactNotFound)
	}

	var candidates []string
	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != contractName+".json" || !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking out directory: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, outDir)
	}

	var artifact *chains.Artifact
	for _, path := range candidates {
		a, err := b.Parse(path)
		if err != nil {
			return nil, err
		}
		if artifact == nil || strings.HasPrefix(a.SourcePath, "src/") {
			artifact = a
		}
	}

	// Build-info is optional at deploy time; verification reports its absence.
	if vi, err := b.GetVerificationInput(dir, contractName, artifact.SourcePath); err == nil {
		artifact.StandardJSONInput = vi.StandardJSON
		if vi.SolcLongVersion != "" {
			artifact.Compiler.Version = vi.SolcLongVersion
		}
	}

	return artifact, nil
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw FoundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	// Skip if no bytecode (interfaces, libraries without code)
	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface)")
	}

	var metadata FoundryMetadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata) // Non-fatal, continue without metadata
	}

	return &chains.Artifact{
		Name:             strings.TrimSuffix(filepath.Base(artifactPath), ".json"),
		SourcePath:       getFirstKey(metadata.Settings.CompilationTarget),
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
		Compiler: chains.Compiler{
			Version: metadata.Compiler.Version,
		},
		Builder: b.Name(),
	}, nil
}

// VerificationInput is the Standard JSON Input plus the compiler that produced it
type VerificationInput struct {
	StandardJSON    []byte
	SolcLongVersion string
}

// GetVerificationInput extracts Standard JSON Input and full solc version from build-info.
// When sourcePath is non-empty, finds the build-info whose output contains contracts[sourcePath][contractName].
func (b *Builder) GetVerificationInput(dir, contractName, sourcePath string) (*VerificationInput, error) {
	buildInfoDir := filepath.Join(dir, "out", "build-info")

	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}

		var buildInfo BuildInfo
		if err := json.Unmarshal(data, &buildInfo); err != nil || len(buildInfo.Input) == 0 {
			continue
		}

		if sourcePath != "" {
			var output struct {
				Contracts map[string]map[string]json.RawMessage `json:"contracts"`
			}
			if err := json.Unmarshal(buildInfo.Output, &output); err != nil {
				continue
			}
			if _, ok := output.Contracts[sourcePath][contractName]; !ok {
				continue
			}
		}

		stdJSON, err := stripFoundryStandardJSONKeys(buildInfo.Input)
		if err != nil {
			continue
		}
		return &VerificationInput{
			StandardJSON:    stdJSON,
			SolcLongVersion: buildInfo.SolcLongVersion,
		}, nil
	}

	return nil, fmt.Errorf("build-info not found for contract %s", contractName)
}

// foundryStandardJSONKeysToStrip are top-level keys Foundry adds that the Solidity compiler rejects.
var foundryStandardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripFoundryStandardJSONKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range foundryStandardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

// FoundryArtifact represents the structure of a Foundry artifact JSON file
type FoundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object string `json:"object"`
}

// FoundryMetadata represents the parsed rawMetadata field
type FoundryMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}

// BuildInfo represents a file in out/build-info
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
	Output          json.RawMessage `json:"output"`
}

// getFirstKey returns the first key from a map
func getFirstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
