/*
PURPOSE:
  High-level runner that orchestrates the benchmarking process.
  Loops through Providers -> Prompts and records every turn.

REQUIREMENTS:
  User-specified:
  - Run the prompt suite against every selected provider.
  - Log results to CSV/JSON.

  Implementation-discovered:
  - Each provider gets its own session and tool working directory.
  - Previous result files are never overwritten.
  - Providers may run in parallel; sessions never share state.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (bench)
  - Uses: internal/engine (Loop), internal/output

ERROR HANDLING:
  - Logs errors but continues (resilience).
  - A provider whose config is unusable is skipped.
  - A turn error is written as a row with the error column set.

IMPLEMENTATION RULES:
  - For each Provider: Start session.
  - For each Prompt: Turn, then write the record.

USAGE:
  r := &engine.Runner{Config: cfg, Sender: client, Store: st}
  summary, err := r.Run(ctx, opts)

RELATED FILES:
  - internal/engine/loop.go
  - internal/output/csv.go, internal/output/json.go
*/

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
	"github.com/daryltucker/agent-bench/internal/store"
)

// ToolFactory creates a tool runner for one session. The returned close
// function releases its resources.
type ToolFactory func() (ToolRunner, func() error, error)

// BenchOptions selects what a benchmark run covers.
type BenchOptions struct {
	Providers  []model.ProviderID
	Prompts    []string
	OutputDir  string
	OutputFile string
	Parallel   bool
}

// Summary reports where results went and how the run went.
type Summary struct {
	CSVPath   string
	JSONPath  string
	Turns     int
	Failed    int
	Skipped   []model.ProviderID
	Providers int
}

// Runner executes benchmark suites.
type Runner struct {
	Config       ProviderResolver
	Sender       Sender
	Store        store.Store
	Metrics      *Metrics
	Tools        ToolFactory
	Retry        RetryPolicy
	SystemPrompt string
}

type recordSink struct {
	csv  *output.CSVWriter
	json *output.JSONWriter

	mu      sync.Mutex
	failed  int
	skipped []model.ProviderID
}

func (s *recordSink) write(r model.TurnRecord) {
	if err := s.csv.Write(r); err != nil {
		output.Logger.Error().Err(err).Msg("Failed to write result to CSV")
	}
	if err := s.json.Write(r); err != nil {
		output.Logger.Error().Err(err).Msg("Failed to write result to JSON")
	}

	if r.Error != "" {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
	}
}

func (s *recordSink) skip(id model.ProviderID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, id)
}

// Run executes the full benchmark suite.
func (r *Runner) Run(ctx context.Context, opts BenchOptions) (Summary, error) {
	if len(opts.Providers) == 0 {
		return Summary{}, errors.New("no providers selected")
	}
	if len(opts.Prompts) == 0 {
		return Summary{}, errors.New("no prompts configured")
	}

	// Ensure output directory exists
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("failed to create output directory %s: %w", opts.OutputDir, err)
	}

	file := opts.OutputFile
	if file == "" {
		file = "bench_results.csv"
	}
	csvPath := output.NextAvailablePath(filepath.Join(opts.OutputDir, file))
	csvWriter, err := output.NewCSVWriter(csvPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}
	defer csvWriter.Close()

	base := strings.TrimSuffix(file, filepath.Ext(file))
	jsonPath := output.NextAvailablePath(filepath.Join(opts.OutputDir, base+".jsonl"))
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}
	defer jsonWriter.Close()

	sink := &recordSink{csv: csvWriter, json: jsonWriter}

	output.Logger.Info().
		Int("providers", len(opts.Providers)).
		Int("prompts", len(opts.Prompts)).
		Bool("parallel", opts.Parallel).
		Str("csv", csvPath).
		Msg("Starting benchmark")

	if opts.Parallel && len(opts.Providers) > 1 {
		p := pool.New().WithMaxGoroutines(len(opts.Providers))
		for _, id := range opts.Providers {
			p.Go(func() {
				r.runProvider(ctx, id, opts.Prompts, sink)
			})
		}
		p.Wait()
	} else {
		for _, id := range opts.Providers {
			if ctx.Err() != nil {
				break
			}
			r.runProvider(ctx, id, opts.Prompts, sink)
		}
	}

	sum := Summary{
		CSVPath:   csvPath,
		JSONPath:  jsonPath,
		Turns:     jsonWriter.Records(),
		Failed:    sink.failed,
		Skipped:   sink.skipped,
		Providers: len(opts.Providers),
	}
	output.Logger.Info().
		Int("turns", sum.Turns).
		Int("failed", sum.Failed).
		Int("skipped_providers", len(sum.Skipped)).
		Msg("Benchmark finished")
	return sum, ctx.Err()
}

func (r *Runner) runProvider(ctx context.Context, id model.ProviderID, prompts []string, sink *recordSink) {
	opts := Options{
		Sender:       r.Sender,
		Store:        r.Store,
		Metrics:      r.Metrics,
		Retry:        r.Retry,
		SystemPrompt: r.SystemPrompt,
	}
	if r.Tools != nil {
		tr, closeFn, err := r.Tools()
		if err != nil {
			output.Logger.Error().Err(err).Str("provider", string(id)).Msg("Failed to prepare tools, skipping provider")
			sink.skip(id)
			return
		}
		defer func() {
			if err := closeFn(); err != nil {
				output.Logger.Warn().Err(err).Msg("Failed to clean up tool directory")
			}
		}()
		opts.Tools = tr
	}

	loop := NewLoop(opts)
	sess, err := loop.Start(ctx, r.Config, id)
	if err != nil {
		output.Logger.Error().Err(err).Str("provider", string(id)).Msg("Skipping provider")
		sink.skip(id)
		return
	}

	for i, prompt := range prompts {
		if ctx.Err() != nil {
			return
		}
		output.Logger.Info().
			Str("provider", string(id)).
			Int("prompt", i+1).
			Msg("Running prompt")

		out, err := loop.Turn(ctx, sess, prompt)
		sink.write(out.Record())
		if err != nil {
			output.Logger.Error().Err(err).
				Str("provider", string(id)).
				Int("attempts", out.Attempts).
				Msg("Turn failed")
			if errors.Is(err, ErrSessionAborted) {
				return
			}
			continue
		}

		ev := output.Logger.Info().
			Str("provider", string(id)).
			Dur("duration", out.Duration)
		if out.Directive != nil {
			ev = ev.Str("tool", string(out.Directive.Kind))
		}
		ev.Msg("Turn complete")
	}
}

// ReadPrompts reads one prompt per line, skipping blank lines and lines
// starting with '#'.
func ReadPrompts(rd io.Reader) ([]string, error) {
	var prompts []string
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return prompts, nil
}
