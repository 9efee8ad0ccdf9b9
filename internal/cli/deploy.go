package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/posdeploy/internal/chains/evm"
	"github.com/pendergraft/posdeploy/internal/config"
	"github.com/pendergraft/posdeploy/internal/observability/metrics"
	"github.com/pendergraft/posdeploy/internal/orchestrator"
	"github.com/pendergraft/posdeploy/internal/server"
	"github.com/pendergraft/posdeploy/internal/verification"
)

// deployFlags holds flag values that override the loaded configuration
type deployFlags struct {
	network        string
	contract       string
	artifactsDir   string
	confirmTimeout time.Duration
	checkBytecode  bool
	promptKey      bool
	statusAddr     string
	output         string
}

func createDeployCmd() *cobra.Command {
	var f deployFlags

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the contract and verify its source",
		Long: `Deploy the compiled contract to the selected network.

The command waits for 1 confirmation and prints the address. When
ETHERSCAN_API_KEY is set it then waits for 10 confirmations and submits
the source for verification. Verification problems are reported but never
fail the command; deployment and confirmation problems do.

ENVIRONMENT:
  PRIVATE_KEY            deployer key (hex)
  PROVIDER_TESTNET_URL   goerli RPC endpoint
  PROVIDER_MAINNET_URL   mainnet RPC endpoint
  ETHERSCAN_API_KEY      enables verification

EXAMPLES:
  # Deploy Pos25 to goerli
  posdeploy deploy

  # Deploy to mainnet, give up if not confirmed within 10 minutes
  posdeploy deploy --network mainnet --confirm-timeout 10m

  # Enter the key interactively and print a JSON report
  posdeploy deploy --prompt-key --output json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDeployConfig(cmd, f)
			if err != nil {
				return err
			}
			return runDeploy(cmd.Context(), cfg, f.output, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&f.network, "network", "n", "", "target network: goerli or mainnet (default from config)")
	cmd.Flags().StringVar(&f.contract, "contract", "", "contract name (default Pos25)")
	cmd.Flags().StringVar(&f.artifactsDir, "artifacts", "", "project directory containing build output")
	cmd.Flags().DurationVar(&f.confirmTimeout, "confirm-timeout", 0, "fail if a confirmation wait exceeds this (0 waits forever)")
	cmd.Flags().BoolVar(&f.checkBytecode, "check-bytecode", true, "compare on-chain code with the artifact after confirmation")
	cmd.Flags().BoolVar(&f.promptKey, "prompt-key", false, "read the private key from stdin instead of PRIVATE_KEY")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "serve /healthz, /status and /metrics on this address during the run")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "report format: text, json, yaml")

	return cmd
}

// loadDeployConfig loads configuration and applies explicitly set flags on top
func loadDeployConfig(cmd *cobra.Command, f deployFlags) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("network") {
		cfg.Deploy.Network = f.network
	}
	if flags.Changed("contract") {
		cfg.Deploy.Contract = f.contract
	}
	if flags.Changed("artifacts") {
		cfg.Deploy.ArtifactsDir = f.artifactsDir
	}
	if flags.Changed("confirm-timeout") {
		cfg.Deploy.ConfirmTimeout = f.confirmTimeout
	}
	if flags.Changed("check-bytecode") {
		cfg.Deploy.CheckBytecode = f.checkBytecode
	}
	if flags.Changed("status-addr") {
		cfg.Status.Addr = f.statusAddr
	}

	if f.promptKey {
		key, err := promptSecret(cmd.ErrOrStderr(), os.Stdin, "Private key: ")
		if err != nil {
			return nil, err
		}
		cfg.Credentials.PrivateKey = key
	}

	if err := validateOutput(f.output); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfig loads the project file and environment, then the global log flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func runDeploy(ctx context.Context, cfg *config.Config, format string, stdout, stderr io.Writer) error {
	logger := setupLogger(cfg, stderr)
	metrics.Init(cfg.Metrics.Enabled, "posdeploy")

	resolver := config.NewResolver(cfg)
	profile, _ := resolver.Network(cfg.Deploy.Network)
	credential := resolver.Verification()
	logger.Debug("resolved network", "profile", profile)

	artifact, err := loadArtifact(cfg.Deploy.ArtifactsDir, cfg.Deploy.Contract)
	if err != nil {
		return err
	}
	checkCompilerPin(logger, cfg.Deploy.CompilerVersion, artifact)

	client, err := evm.Dial(ctx, profile.RPCURL, profile.ChainID, profile.SigningKey,
		evm.WithPollInterval(time.Duration(cfg.Deploy.PollInterval)*time.Second),
		evm.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", profile.Name, err)
	}
	defer client.Close()

	var verifier orchestrator.Verifier
	if credential.Present() {
		verifier = newVerifier(cfg, credential, logger)
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithOutput(consoleWriter(format, stdout, stderr)),
		orchestrator.WithConfirmTimeout(cfg.Deploy.ConfirmTimeout),
	}
	if cfg.Deploy.CheckBytecode {
		opts = append(opts, orchestrator.WithBytecodeCheck(client))
	}

	orch := orchestrator.New(client, verifier, orchestrator.Target{
		Network:    profile,
		Credential: credential,
		Artifact:   artifact,
	}, opts...)

	if cfg.Status.Addr != "" {
		statusCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if _, err := server.New(orch, logger, buildVersion).Serve(statusCtx, cfg.Status.Addr); err != nil {
			return err
		}
	}

	return runPipeline(ctx, orch, format, stdout)
}

// consoleWriter keeps stdout clean for machine-readable reports
func consoleWriter(format string, stdout, stderr io.Writer) io.Writer {
	if format == "text" {
		return stdout
	}
	return stderr
}

// runPipeline runs the orchestrator and prints its report
func runPipeline(ctx context.Context, orch *orchestrator.Orchestrator, format string, stdout io.Writer) error {
	rec, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	return printRecord(stdout, rec, format)
}

func newVerifier(cfg *config.Config, credential config.VerificationCredential, logger *slog.Logger) *verification.Client {
	return verification.New(cfg.Etherscan.APIURL, credential.APIKey,
		verification.WithPollInterval(time.Duration(cfg.Etherscan.PollInterval)*time.Second),
		verification.WithMaxPolls(cfg.Etherscan.MaxPolls),
		verification.WithRateLimit(cfg.Etherscan.RequestsPerSec),
		verification.WithLogger(logger),
	)
}
