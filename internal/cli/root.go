// Package cli implements the posdeploy command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	buildVersion = "dev"
)

// Execute runs the CLI
func Execute(version string) error {
	buildVersion = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "posdeploy",
		Short: "Deploy and verify a smart contract",
		Long: `posdeploy deploys a compiled contract to goerli or mainnet, waits for
confirmations, and publishes its source to Etherscan when an API key is set.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: posdeploy.toml or .posdeploy.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT)")

	// Add subcommands
	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createNetworksCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}
