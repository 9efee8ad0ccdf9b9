// Package hardhat provides the Hardhat builder for EVM contracts.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/posdeploy/internal/chains"
)

// configFiles are the Hardhat config names in detection order
var configFiles = []string{"hardhat.config.js", "hardhat.config.ts", "hardhat.config.cjs", "hardhat.config.mjs"}

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

// Load finds artifacts/**/<contractName>.json and its build-info
func (b *Builder) Load(dir, contractName string) (*chains.Artifact, error) {
	artifactsDir := filepath.Join(dir, "artifacts")
	if _, err := os.Stat(artifactsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: artifacts directory not found - run 'npx hardhat compile' first", chains.ErrArtifactNotFound)
	}

	var matches []string
	err := filepath.Walk(artifactsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != contractName+".json" {
			return nil
		}
		// Artifacts live in artifacts/{source}.sol/{Contract}.json
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking artifacts: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, artifactsDir)
	case 1:
	default:
		return nil, fmt.Errorf("contract name %s is ambiguous: %s", contractName, strings.Join(matches, ", "))
	}

	return b.Parse(matches[0])
}

// Parse parses a Hardhat artifact file and, when present, its build-info
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

	artifact := &chains.Artifact{
		Name:             raw.ContractName,
		SourcePath:       raw.SourceName,
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode,
		DeployedBytecode: raw.DeployedBytecode,
		Builder:          b.Name(),
	}
	if artifact.Name == "" {
		artifact.Name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	buildInfo, err := readBuildInfo(artifactPath)
	if err != nil {
		return nil, err
	}
	if buildInfo != nil {
		artifact.Compiler.Version = buildInfo.SolcLongVersion
		artifact.StandardJSONInput = buildInfo.Input
	}

	return artifact, nil
}

// readBuildInfo follows the .dbg.json file next to the artifact.
// A missing debug file is not an error; verification will report it.
func readBuildInfo(artifactPath string) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading debug file: %w", err)
	}

	var dbg DebugFile
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("parsing debug file: %w", err)
	}
	if dbg.BuildInfo == "" {
		return nil, nil
	}

	buildInfoPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
	data, err = os.ReadFile(buildInfoPath)
	if err != nil {
		return nil, fmt.Errorf("reading build-info: %w", err)
	}

	var info BuildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing build-info: %w", err)
	}
	return &info, nil
}

const artifactFormat = "hh-sol-artifact-1"

// Artifact represents a Hardhat artifact JSON file
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// DebugFile represents the {Contract}.dbg.json pointer to build-info
type DebugFile struct {
	Format    string `json:"_format"`
	BuildInfo string `json:"buildInfo"`
}

// BuildInfo represents artifacts/build-info/{id}.json
type BuildInfo struct {
	Format          string          `json:"_format"`
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}
