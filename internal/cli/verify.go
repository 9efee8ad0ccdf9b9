package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pendergraft/posdeploy/internal/config"
	"github.com/pendergraft/posdeploy/internal/validation"
	"github.com/pendergraft/posdeploy/internal/verification"
)

func createVerifyCmd() *cobra.Command {
	var network string
	var contract string
	var artifactsDir string
	var address string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Publish source for an already deployed contract",
		Long: `Submit the contract's source to Etherscan for an existing deployment.

Uses the same artifacts as deploy. A contract that is already verified
counts as success. Requires ETHERSCAN_API_KEY.

EXAMPLES:
  # Verify a goerli deployment
  posdeploy verify --address 0x1234...

  # Verify on mainnet
  posdeploy verify --network mainnet --address 0x1234...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("network") {
				cfg.Deploy.Network = network
			}
			if flags.Changed("contract") {
				cfg.Deploy.Contract = contract
			}
			if flags.Changed("artifacts") {
				cfg.Deploy.ArtifactsDir = artifactsDir
			}
			return runVerify(cmd.Context(), cfg, address, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network the contract lives on (default from config)")
	cmd.Flags().StringVar(&contract, "contract", "", "contract name (default Pos25)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "project directory containing build output")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address (required)")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runVerify(ctx context.Context, cfg *config.Config, address string, stdout, stderr io.Writer) error {
	if err := validation.ValidateAddress(address); err != nil {
		return err
	}

	resolver := config.NewResolver(cfg)
	profile, ok := resolver.Network(cfg.Deploy.Network)
	if !ok {
		return fmt.Errorf("%w: %q", config.ErrUnknownNetwork, cfg.Deploy.Network)
	}
	credential := resolver.Verification()
	if !credential.Present() {
		return errors.New("verification requires an API key: set " + config.EnvEtherscanAPIKey)
	}

	logger := setupLogger(cfg, stderr)

	artifact, err := loadArtifact(cfg.Deploy.ArtifactsDir, cfg.Deploy.Contract)
	if err != nil {
		return err
	}
	checkCompilerPin(logger, cfg.Deploy.CompilerVersion, artifact)

	fmt.Fprintf(stdout, "🔍 Verifying %s on %s\n", artifact.Name, profile.Name)
	fmt.Fprintf(stdout, "   Chain:   %d\n", profile.ChainID)
	fmt.Fprintf(stdout, "   Address: %s\n", address)

	err = newVerifier(cfg, credential, logger).Verify(ctx, verification.VerifyRequest{
		ChainID:         profile.ChainID,
		Address:         address,
		Artifact:        artifact,
		ConstructorArgs: []any{},
	})

	fmt.Fprintln(stdout)
	switch verification.Classify(err) {
	case verification.OutcomeVerified:
		fmt.Fprintln(stdout, "✅ VERIFIED")
	case verification.OutcomeAlreadyVerified:
		fmt.Fprintln(stdout, "✅ Already verified")
	default:
		fmt.Fprintln(stdout, "❌ NOT VERIFIED")
		return fmt.Errorf("verification failed: %w", err)
	}
	if url := profile.AddressURL(address); url != "" {
		fmt.Fprintf(stdout, "   %s#code\n", url)
	}
	return nil
}
