// Package chains defines the compiled-artifact model shared by the EVM
// builders and the deploy pipeline.
package chains

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrArtifactNotFound is returned when no builder output exists for a contract.
var ErrArtifactNotFound = errors.New("artifact not found")

// Builder loads artifacts produced by a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "hardhat", "foundry"
	DisplayName() string // "Hardhat", "Foundry"

	// Detection
	Detect(dir string) (bool, error)

	// Load reads the artifact for contractName from the project in dir.
	Load(dir, contractName string) (*Artifact, error)
}

// Artifact is a compiled EVM contract ready to deploy and verify
type Artifact struct {
	Name              string          `json:"name"`
	SourcePath        string          `json:"sourcePath"`
	ABI               json.RawMessage `json:"abi"`
	Bytecode          string          `json:"bytecode"`
	DeployedBytecode  string          `json:"deployedBytecode"`
	StandardJSONInput json.RawMessage `json:"standardJsonInput,omitempty"`
	Compiler          Compiler        `json:"compiler"`
	Builder           string          `json:"builder"`
}

// Compiler contains compiler details
type Compiler struct {
	Version string `json:"version"` // "0.8.19+commit.7dd6d404"
}

// FullyQualifiedName returns "source:Name" as verification services expect it
func (a *Artifact) FullyQualifiedName() string {
	if a.SourcePath == "" {
		return a.Name
	}
	return a.SourcePath + ":" + a.Name
}

// LongCompilerVersion returns the compiler version with the leading "v"
// verification services require, e.g. "v0.8.19+commit.7dd6d404".
func (a *Artifact) LongCompilerVersion() string {
	if a.Compiler.Version == "" {
		return ""
	}
	return "v" + strings.TrimPrefix(a.Compiler.Version, "v")
}

// Validate checks that the artifact has deployable bytecode
func (a *Artifact) Validate() error {
	if a.Bytecode == "" || a.Bytecode == "0x" {
		return fmt.Errorf("contract %s has no bytecode (likely an interface or abstract contract)", a.Name)
	}
	if len(a.ABI) == 0 {
		return fmt.Errorf("contract %s has no ABI", a.Name)
	}
	return nil
}

// Detect returns the first builder that recognizes dir
func Detect(dir string, builders ...Builder) (Builder, error) {
	for _, b := range builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no supported builder detected in %s", dir)
}
