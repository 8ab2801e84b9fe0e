/*
PURPOSE:
  Defines the 'providers' subcommand.
  Helps debug configuration before a chat or benchmark run.

REQUIREMENTS:
  User-specified:
  - List available providers.

  Implementation-discovered:
  - Useful validation step before full run: shows which keys are missing.

ARCHITECTURE INTEGRATION:
  - Uses: internal/config

ERROR HANDLING:
  - Missing keys are reported, not returned as errors.

IMPLEMENTATION RULES:
  - Simple output to stdout.
  - Never print key material.

USAGE:
  agent-bench providers
*/

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daryltucker/agent-bench/internal/config"
	"github.com/daryltucker/agent-bench/internal/model"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and whether their API key is set",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tPROVIDER\tMODEL\tENDPOINT\tKEY")
		for i, id := range model.Providers {
			s := appCfg.Providers[string(id)]
			key := "set"
			if _, err := appCfg.Provider(id); err != nil {
				key = "missing (" + config.APIKeyEnv(id) + ")"
				if s.APIKey != "" {
					key = err.Error()
				}
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, id, s.Model, s.BaseURL, key)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
