/*
PURPOSE:
  Defines the 'bench' subcommand.
  Executes the prompt suite against the selected providers.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.
  - Optionally expose Prometheus metrics while the run is in progress.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Runner.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if prompts cannot be read or the engine run fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Runner.Run.

USAGE:
  agent-bench bench --providers gemini,openai -p prompts.txt

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/agent-bench/internal/config"
	"github.com/daryltucker/agent-bench/internal/engine"
	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
)

var (
	providersOverride []string
	outputOverride    string
	promptFile        string
	parallelOverride  bool
	metricsAddr       string
	benchNoTools      bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the benchmark suite",
	Long: `Runs every configured prompt against every selected provider.
Each provider gets its own session: prompts are sent in order, tool directives
are executed once per turn, and every turn is recorded.

Results are saved to CSV and JSON Lines, with automatic file versioning
(e.g., bench_results.csv.1) to prevent overwriting previous data.`,
	Example: `  # Run with defaults (uses agent-bench.yaml)
  agent-bench bench

  # Only Gemini and OpenAI, prompts from a file, results in ./benchmarks
  agent-bench bench --providers gemini,openai -p ./prompts.txt -o ./benchmarks

  # Run providers in parallel and expose metrics
  agent-bench bench --parallel --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg

		opts, err := benchOptions(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		metrics := engine.NewMetrics()
		if metricsAddr != "" {
			shutdown, err := serveMetrics(metricsAddr, metrics)
			if err != nil {
				return err
			}
			defer shutdown()
		}

		runner := &engine.Runner{
			Config:       cfg,
			Sender:       newProviderClient(cfg),
			Metrics:      metrics,
			Retry:        retryPolicy(cfg),
			SystemPrompt: cfg.Loop.SystemPrompt,
		}
		if cfg.Tools.Enabled && !benchNoTools {
			runner.Tools = toolFactory(cfg)
		}

		st, err := openStore(cfg)
		if err != nil {
			output.Logger.Warn().Err(err).Msg("Session store unavailable, sessions will not be saved")
		} else {
			defer st.Close()
			runner.Store = st
		}

		sum, err := runner.Run(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d turns (%d failed) written to %s and %s\n",
			sum.Turns, sum.Failed, sum.CSVPath, sum.JSONPath)
		if len(sum.Skipped) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "skipped providers: %v\n", sum.Skipped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringSliceVar(&providersOverride, "providers", nil, "Comma-separated list of providers (default: all with an API key)")
	benchCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results (CSV/JSONL)")
	benchCmd.Flags().StringVarP(&promptFile, "prompt-file", "p", "", "File with one prompt per line (overrides config)")
	benchCmd.Flags().BoolVar(&parallelOverride, "parallel", false, "Run providers in parallel")
	benchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	benchCmd.Flags().BoolVar(&benchNoTools, "no-tools", false, "Disable RUN_COMMAND and SEARCH tools")
}

// benchOptions merges config and flag overrides.
func benchOptions(cfg *config.Config) (engine.BenchOptions, error) {
	opts := engine.BenchOptions{
		Prompts:    cfg.Bench.Prompts,
		OutputDir:  cfg.Bench.OutputDir,
		OutputFile: cfg.Bench.OutputFile,
		Parallel:   cfg.Bench.Parallel || parallelOverride,
	}
	if outputOverride != "" {
		opts.OutputDir = outputOverride
	}

	if promptFile != "" {
		f, err := os.Open(promptFile)
		if err != nil {
			return opts, fmt.Errorf("failed to read prompt file: %w", err)
		}
		defer f.Close()
		prompts, err := engine.ReadPrompts(f)
		if err != nil {
			return opts, err
		}
		opts.Prompts = prompts
	}

	names := cfg.Bench.Providers
	if len(providersOverride) > 0 {
		names = providersOverride
	}
	if len(names) == 0 {
		// Every provider that has a key.
		for _, id := range model.Providers {
			if _, err := cfg.Provider(id); err == nil {
				opts.Providers = append(opts.Providers, id)
			}
		}
		if len(opts.Providers) == 0 {
			return opts, errors.New("no provider has an API key; set OPENAI_API_KEY, SAMBANOVA_API_KEY, GEMINI_API_KEY or ANTHROPIC_API_KEY")
		}
		return opts, nil
	}
	for _, n := range names {
		id, err := model.ParseProviderID(n)
		if err != nil {
			return opts, err
		}
		opts.Providers = append(opts.Providers, id)
	}
	return opts, nil
}

func serveMetrics(addr string, m *engine.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			output.Logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	output.Logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics on /metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
