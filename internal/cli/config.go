package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/posdeploy/internal/config"
)

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var network string
	var contract string
	var compilerVersion string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a posdeploy.toml configuration file in the current directory.

The file holds non-secret settings. Keys and API keys are only read
from the environment.

EXAMPLES:
  # Create config with defaults
  posdeploy config init

  # Target mainnet and pin the compiler
  posdeploy config init --network mainnet --compiler-version 0.8.19

  # Overwrite existing config
  posdeploy config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), config.ProjectFiles[0], network, contract, compilerVersion, force)
		},
	}

	cmd.Flags().StringVar(&network, "network", config.NetworkGoerli, "default network")
	cmd.Flags().StringVar(&contract, "contract", "Pos25", "contract name")
	cmd.Flags().StringVar(&compilerVersion, "compiler-version", "0.8.19", "pinned solc version")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the configuration sources and the effective values.
Secrets are masked.

EXAMPLES:
  posdeploy config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigInit(w io.Writer, configPath, network, contract, compilerVersion string, force bool) error {
	if !config.IsKnownNetwork(network) {
		return fmt.Errorf("%w: %q", config.ErrUnknownNetwork, network)
	}

	// Check if any config file already exists
	for _, name := range config.ProjectFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	content := fmt.Sprintf(`# posdeploy project configuration
# Secrets (PRIVATE_KEY, ETHERSCAN_API_KEY) are read from the environment only.

network = %q
contract = %q
compiler_version = %q

# Directory containing hardhat.config.* or foundry.toml
# artifacts_dir = "."

# Seconds between confirmation polls, and an optional bound in seconds on each wait
# poll_interval = 4
# confirm_timeout = 600

# Compare on-chain code with the artifact after the first confirmation
# check_bytecode = true

# Endpoint overrides for the built-in networks
# [networks.goerli]
# rpc_url = "https://goerli.example.com"
# explorer_url = "https://goerli.etherscan.io"

# [etherscan]
# api_url = "https://api.etherscan.io/v2/api"
# poll_interval = 5
# max_polls = 10
# requests_per_sec = 4
`, network, contract, compilerVersion)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. export %s=... and %s=...\n", config.EnvPrivateKey, config.EnvTestnetURL)
	fmt.Fprintf(w, "  2. optionally export %s=... to enable verification\n", config.EnvEtherscanAPIKey)
	fmt.Fprintln(w, "  3. run 'posdeploy deploy'")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	// 1. Command line flags
	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --network, --contract, --artifacts, --confirm-timeout, --config")
	fmt.Fprintln(w)

	// 2. Environment variables
	fmt.Fprintln(w, "2. Environment variables (process environment, then .env)")
	for _, name := range []string{config.EnvTestnetURL, config.EnvMainnetURL, config.EnvEtherscanAPIURL, "POSDEPLOY_NETWORK", "POSDEPLOY_CONTRACT"} {
		if v := os.Getenv(name); v != "" {
			display := v
			if name == config.EnvTestnetURL || name == config.EnvMainnetURL {
				display = maskURL(v)
			}
			fmt.Fprintf(w, "   %s=%s\n", name, display)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", name)
		}
	}
	for _, name := range []string{config.EnvPrivateKey, config.EnvEtherscanAPIKey} {
		fmt.Fprintf(w, "   %s=%s\n", name, maskSecret(os.Getenv(name)))
	}
	if _, err := os.Stat(config.DotEnvFile); err == nil {
		fmt.Fprintf(w, "   %s: found (process environment takes precedence)\n", config.DotEnvFile)
	} else {
		fmt.Fprintf(w, "   %s: (not found)\n", config.DotEnvFile)
	}
	fmt.Fprintln(w)

	// 3. Project config
	fmt.Fprintln(w, "3. Project config (posdeploy.toml or .posdeploy.toml)")
	project, path, err := config.LoadProject(cfgFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		fmt.Fprintf(w, "   Loaded from: %s\n", path)
		if project.Network != "" {
			fmt.Fprintf(w, "   network: %s\n", project.Network)
		}
		if project.Contract != "" {
			fmt.Fprintf(w, "   contract: %s\n", project.Contract)
		}
		if project.CompilerVersion != "" {
			fmt.Fprintf(w, "   compiler_version: %s\n", project.CompilerVersion)
		}
		for name := range project.Networks {
			fmt.Fprintf(w, "   [networks.%s]\n", name)
		}
	}
	fmt.Fprintln(w)

	// Effective config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Effective configuration:")
	fmt.Fprintf(w, "   Network:       %s\n", cfg.Deploy.Network)
	fmt.Fprintf(w, "   Contract:      %s\n", cfg.Deploy.Contract)
	fmt.Fprintf(w, "   Artifacts:     %s\n", cfg.Deploy.ArtifactsDir)
	if cfg.Deploy.CompilerVersion != "" {
		fmt.Fprintf(w, "   Compiler:      %s\n", cfg.Deploy.CompilerVersion)
	}
	fmt.Fprintf(w, "   Private key:   %s\n", maskSecret(cfg.Credentials.PrivateKey))
	fmt.Fprintf(w, "   Etherscan key: %s\n", maskSecret(cfg.Etherscan.APIKey))
	fmt.Fprintf(w, "   Etherscan API: %s\n", cfg.Etherscan.APIURL)
	if cfg.Deploy.ConfirmTimeout > 0 {
		fmt.Fprintf(w, "   Timeout:       %s per confirmation wait\n", cfg.Deploy.ConfirmTimeout)
	} else {
		fmt.Fprintln(w, "   Timeout:       none")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "\n⚠️  Not ready to deploy: %v\n", err)
	}

	return nil
}
