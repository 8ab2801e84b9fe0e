/*
PURPOSE:
  Defines the root Cobra command for the Agent Bench CLI.
  Handles global flags, configuration loading and logger setup.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Every subcommand needs the loaded config, so it is loaded once in
    PersistentPreRunE.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/agent-bench/main.go
  - Calls: Child commands (chat, bench, sessions, providers, config)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/agent-bench/main.go
  - internal/cli/deps.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/agent-bench/internal/config"
	"github.com/daryltucker/agent-bench/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	// appCfg is the configuration loaded before any subcommand runs.
	appCfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "agent-bench",
		Short: "Benchmark LLM providers on a tool-using conversation loop",
		Long: `Agent Bench drives chat-completion providers (OpenAI, Sambanova, Google Gemini,
Anthropic) through a conversation loop where the model may ask to run a shell
command or search the web. Sessions are stored in SQLite and can be reviewed
or exported. Use 'bench --help' for batch benchmark options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}
			output.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			appCfg = cfg
			return nil
		},
	}
)

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./agent-bench.yaml or ~/.config/agent-bench/agent-bench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
}
