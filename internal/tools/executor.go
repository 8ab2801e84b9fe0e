/*
PURPOSE:
  Executes the two benchmark tools requested by model directives:
  shell commands and web searches.

REQUIREMENTS:
  User-specified:
  - Bounded duration and bounded output for every tool call.
  - Failures are results, never errors: the model's reaction to a failed
    tool is itself a benchmark signal.

  Implementation-discovered:
  - `sh -c` children can outlive the shell and keep the output pipe open;
    the whole process group is killed and WaitDelay bounds Wait().

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Conversation Loop)
  - Uses: internal/model, internal/output

ERROR HANDLING:
  - Timeout, spawn failure, non-zero exit, HTTP failure all become
    ToolResult{Success: false}.

IMPLEMENTATION RULES:
  - KNOWN RISK: commands are arbitrary model output run by a real shell with
    the invoking user's privileges. The working directory and environment are
    isolated; nothing else is. Run benchmarks in a disposable environment.

USAGE:
  ex, err := tools.NewExecutor(tools.Config{...})
  defer ex.Close()
  res := ex.Execute(ctx, model.RunCommand("echo hi"))

RELATED FILES:
  - internal/tools/command.go
  - internal/tools/search.go
*/

package tools

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
)

const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultSearchTimeout  = 15 * time.Second
	DefaultOutputLimit    = 4096
	DefaultSearchURL      = "https://api.duckduckgo.com/"
	DefaultShell          = "/bin/sh"
	DefaultMaxSnippets    = 5
)

// Config holds executor settings. Zero values fall back to the defaults.
type Config struct {
	WorkDir        string
	Shell          string
	CommandTimeout time.Duration
	OutputLimit    int
	SearchURL      string
	SearchTimeout  time.Duration
	MaxSnippets    int
	HTTPClient     *http.Client

	// DisableSearch turns SEARCH directives into failed results.
	DisableSearch bool
}

// Executor runs directives. It is safe for sequential use by one loop;
// parallel benchmark sessions each get their own Executor.
type Executor struct {
	cfg     Config
	client  *http.Client
	tempDir string
}

// NewExecutor creates an executor. When no WorkDir is configured a private
// temporary directory is created and removed by Close.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = DefaultOutputLimit
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = DefaultMaxSnippets
	}

	e := &Executor{cfg: cfg, client: cfg.HTTPClient}
	if e.client == nil {
		e.client = &http.Client{Timeout: cfg.SearchTimeout}
	}

	if cfg.WorkDir == "" {
		dir, err := os.MkdirTemp("", "agent-bench-tools-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create tool working directory: %w", err)
		}
		e.cfg.WorkDir = dir
		e.tempDir = dir
	} else if err := os.MkdirAll(cfg.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create tool working directory %s: %w", cfg.WorkDir, err)
	}

	return e, nil
}

// WorkDir returns the directory commands run in.
func (e *Executor) WorkDir() string {
	return e.cfg.WorkDir
}

// Close removes the private working directory, if one was created.
func (e *Executor) Close() error {
	if e.tempDir == "" {
		return nil
	}
	return os.RemoveAll(e.tempDir)
}

// Execute runs the directive and always returns a well-formed result.
func (e *Executor) Execute(ctx context.Context, d model.ToolDirective) model.ToolResult {
	start := time.Now()

	var res model.ToolResult
	switch d.Kind {
	case model.ToolRunCommand:
		res = e.runCommand(ctx, d.Argument)
	case model.ToolSearch:
		if e.cfg.DisableSearch {
			res = model.ToolResult{Error: "web search is disabled for this session"}
			break
		}
		res = e.search(ctx, d.Argument)
	default:
		res = model.ToolResult{Error: fmt.Sprintf("unsupported tool %q", d.Kind)}
	}

	res.Kind = d.Kind
	res.Argument = d.Argument
	res.Duration = time.Since(start)

	output.Logger.Debug().
		Str("tool", string(d.Kind)).
		Bool("success", res.Success).
		Bool("truncated", res.Truncated).
		Dur("duration", res.Duration).
		Str("error", res.Error).
		Msg("Tool executed")

	return res
}
