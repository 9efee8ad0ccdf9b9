package cli

import (
	"fmt"
	"log/slog"

	"github.com/pendergraft/posdeploy/internal/chains"
	"github.com/pendergraft/posdeploy/internal/chains/evm/foundry"
	"github.com/pendergraft/posdeploy/internal/chains/evm/hardhat"
	"github.com/pendergraft/posdeploy/internal/validation"
)

// loadArtifact detects the build tool in dir and loads contractName
func loadArtifact(dir, contractName string) (*chains.Artifact, error) {
	builder, err := chains.Detect(dir, hardhat.New(), foundry.New())
	if err != nil {
		return nil, err
	}

	artifact, err := builder.Load(dir, contractName)
	if err != nil {
		return nil, fmt.Errorf("loading %s artifact: %w", builder.DisplayName(), err)
	}
	return artifact, nil
}

// checkCompilerPin warns when the artifact was built with a different solc
// release than the project pins
func checkCompilerPin(logger *slog.Logger, pinned string, artifact *chains.Artifact) {
	if pinned == "" || artifact.Compiler.Version == "" {
		return
	}
	if !validation.CompilerVersionMatches(pinned, artifact.Compiler.Version) {
		logger.Warn("artifact compiler differs from pinned version",
			"pinned", pinned,
			"artifact", artifact.Compiler.Version,
		)
	}
}
