package cli

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/posdeploy/internal/config"
)

func createNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List supported networks",
		Long: `List the supported networks and whether each is ready to deploy.

EXAMPLES:
  posdeploy networks
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runNetworks(cfg, cmd.OutOrStdout())
		},
	}
}

func runNetworks(cfg *config.Config, w io.Writer) error {
	resolver := config.NewResolver(cfg)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHAIN ID\tRPC\tEXPLORER\tREADY")
	for _, name := range config.Networks() {
		profile, _ := resolver.Network(name)
		ready := "yes"
		if err := profile.Validate(); err != nil {
			ready = err.Error()
		}
		marker := ""
		if name == cfg.Deploy.Network {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%d\t%s\t%s\t%s\n", name, marker, profile.ChainID, maskURL(profile.RPCURL), profile.ExplorerURL, ready)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if resolver.Verification().Present() {
		fmt.Fprintln(w, "Verification: enabled")
	} else {
		fmt.Fprintf(w, "Verification: disabled (%s not set)\n", config.EnvEtherscanAPIKey)
	}
	return nil
}

// maskURL hides path and query, where RPC providers put project keys
func maskURL(raw string) string {
	if raw == "" {
		return "(not set)"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "****"
	}
	masked := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		masked += "/****"
	}
	return masked
}
