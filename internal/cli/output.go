package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/pendergraft/posdeploy/internal/orchestrator"
)

func validateOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	}
	return fmt.Errorf("invalid output format %q: must be text, json or yaml", format)
}

// printRecord writes the run report in the requested format
func printRecord(w io.Writer, rec *orchestrator.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", rec.RunID)
	fmt.Fprintf(tw, "Network:\t%s (chain %d)\n", rec.Network, rec.ChainID)
	fmt.Fprintf(tw, "Contract:\t%s\n", rec.Contract)
	fmt.Fprintf(tw, "Address:\t%s\n", rec.Address)
	fmt.Fprintf(tw, "Transaction:\t%s\n", rec.TxHash)
	if rec.ExplorerURL != "" {
		fmt.Fprintf(tw, "Explorer:\t%s\n", rec.ExplorerURL)
	}
	fmt.Fprintf(tw, "Confirmations:\t%d\n", rec.ConfirmationsObserved)
	if rec.BytecodeMatch != "" {
		fmt.Fprintf(tw, "Bytecode:\t%s match\n", rec.BytecodeMatch)
	}
	fmt.Fprintf(tw, "Verification:\t%s\n", rec.Verification)
	if rec.VerificationError != "" {
		fmt.Fprintf(tw, "Verification error:\t%s\n", rec.VerificationError)
	}
	return tw.Flush()
}
