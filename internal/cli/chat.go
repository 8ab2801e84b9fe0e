/*
PURPOSE:
  Defines the 'chat' subcommand.
  Interactive conversation with one provider through the tool loop.

REQUIREMENTS:
  User-specified:
  - Choose a provider (flag or numbered menu).
  - Type 'exit' or 'quit' to end the session.
  - Ctrl-C aborts the current turn only.

  Implementation-discovered:
  - Colors, banner and prompt echo only make sense on a terminal.
  - A stored session can be resumed with --resume.
  - Web search is confirmed per session on a terminal; RUN_COMMAND is not.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine (Loop)
  - Uses: internal/config, internal/store, internal/tools

ERROR HANDLING:
  - Config errors end the command.
  - Turn errors are printed and the user returns to the prompt.

USAGE:
  agent-bench chat --provider gemini
  agent-bench chat --resume 3f2a...

RELATED FILES:
  - internal/engine/loop.go
*/

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dimiro1/banner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/daryltucker/agent-bench/internal/engine"
	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
)

var (
	chatProvider string
	chatResume   string
	chatNoTools  bool
	chatNoSearch bool
)

const bannerTemplate = `{{ .Title "agent-bench" "" 0 }}
{{ .AnsiColor.BrightBlack }}Type 'exit' or 'quit' to end the session.{{ .AnsiColor.Default }}
`

var (
	youLabel       = color.New(color.FgBlue, color.Bold)
	assistantLabel = color.New(color.FgGreen, color.Bold)
	assistantText  = color.New(color.FgGreen)
	systemLabel    = color.New(color.FgMagenta, color.Bold)
	systemText     = color.New(color.FgMagenta)
	errorText      = color.New(color.FgRed)
	noticeText     = color.New(color.FgYellow, color.Bold)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session with a provider",
	Long: `Starts an interactive conversation with one provider. When tools are enabled
the model may answer with [RUN_COMMAND <cmd>] or [SEARCH: <query>]; the tool is
executed once and its output is sent back for a final answer.

Commands suggested by the model run in a real shell with your privileges,
inside the configured tool working directory.`,
	Example: `  # Pick a provider from the menu
  agent-bench chat

  # Chat with Gemini without tools
  agent-bench chat --provider gemini --no-tools

  # Allow commands but never web search
  agent-bench chat --provider openai --no-search

  # Continue a stored session
  agent-bench chat --resume 3f2a9c1e-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		interactive := isTerminal(os.Stdin) && isTerminal(os.Stdout)
		if !interactive {
			color.NoColor = true
		}

		st, err := openStore(cfg)
		if err != nil {
			output.Logger.Warn().Err(err).Msg("Session store unavailable, chat will not be saved")
		} else {
			defer st.Close()
		}

		opts := engine.Options{
			Sender:       newProviderClient(cfg),
			Metrics:      engine.NewMetrics(),
			Retry:        retryPolicy(cfg),
			SystemPrompt: cfg.Loop.SystemPrompt,
		}
		if st != nil {
			opts.Store = st
		}
		c := &chatter{in: in, out: out, interactive: interactive}

		if cfg.Tools.Enabled && !chatNoTools {
			tc := *cfg
			if chatNoSearch {
				tc.Tools.Search = false
			} else if tc.Tools.Search && interactive {
				if tc.Tools.Search, err = c.confirm("Enable web search? (y/n): "); err != nil {
					return err
				}
			}
			runner, closeTools, err := toolFactory(&tc)()
			if err != nil {
				return err
			}
			defer closeTools()
			opts.Tools = runner
		}

		opts.Hooks = c.hooks()
		loop := engine.NewLoop(opts)

		var sess *engine.Session
		if chatResume != "" {
			sess, err = loop.Resume(cmd.Context(), cfg, chatResume)
		} else {
			id, perr := c.chooseProvider(chatProvider)
			if perr != nil {
				return perr
			}
			sess, err = loop.Start(cmd.Context(), cfg, id)
		}
		if err != nil {
			return err
		}

		if interactive {
			banner.Init(out, true, true, bytes.NewBufferString(bannerTemplate))
		}
		return c.run(cmd.Context(), loop, sess)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "Provider name or menu number (openai, sambanova, gemini, anthropic)")
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume a stored session by id")
	chatCmd.Flags().BoolVar(&chatNoTools, "no-tools", false, "Disable RUN_COMMAND and SEARCH tools for this session")
	chatCmd.Flags().BoolVar(&chatNoSearch, "no-search", false, "Disable only the SEARCH tool for this session")
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// chatter owns the terminal side of a chat session.
type chatter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func (c *chatter) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *chatter) chooseProvider(flag string) (model.ProviderID, error) {
	if flag != "" {
		return model.ParseProviderID(flag)
	}

	noticeText.Fprintln(c.out, "Select an API Provider:")
	for i, id := range model.Providers {
		fmt.Fprintf(c.out, "%d. %s\n", i+1, id)
	}
	fmt.Fprint(c.out, "Enter your choice: ")

	choice, err := c.readLine()
	if err != nil {
		return "", fmt.Errorf("failed to read provider choice: %w", err)
	}
	return model.ParseProviderID(choice)
}

// confirm asks a yes/no question. Anything but y or yes is no.
func (c *chatter) confirm(question string) (bool, error) {
	fmt.Fprint(c.out, question)
	answer, err := c.readLine()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func (c *chatter) hooks() engine.Hooks {
	return engine.Hooks{
		OnTool: func(d model.ToolDirective) {
			switch d.Kind {
			case model.ToolRunCommand:
				fmt.Fprintf(c.out, "%s Running command: %s\n", systemLabel.Sprint("System:"), systemText.Sprint(d.Argument))
			case model.ToolSearch:
				fmt.Fprintf(c.out, "%s Searching the web for: %s\n", systemLabel.Sprint("System:"), systemText.Sprint(d.Argument))
			}
		},
		OnToolResult: func(r model.ToolResult) {
			if !r.Success {
				fmt.Fprintf(c.out, "%s %s\n", systemLabel.Sprint("System:"), errorText.Sprint(r.Error))
			}
			if r.Output != "" {
				fmt.Fprintln(c.out, systemText.Sprint(strings.TrimRight(r.Output, "\n")))
			}
		},
	}
}

// run reads prompts until exit, quit or end of input.
func (c *chatter) run(ctx context.Context, loop *engine.Loop, sess *engine.Session) error {
	noticeText.Fprintf(c.out, "Session %s with %s (%s). Type 'exit' to quit.\n\n",
		sess.ID, sess.Provider.ID, sess.Provider.Model)

	for {
		if c.interactive {
			fmt.Fprintf(c.out, "%s ", youLabel.Sprint("You:"))
		}
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		outcome, err := loop.Turn(turnCtx, sess, line)
		cancelled := turnCtx.Err() != nil && ctx.Err() == nil
		stop()

		switch {
		case errors.Is(err, engine.ErrSessionAborted):
			return err
		case err != nil && cancelled:
			fmt.Fprintln(c.out, errorText.Sprint("Turn cancelled."))
			continue
		case err != nil:
			fmt.Fprintf(c.out, "%s %s (%s)\n", assistantLabel.Sprint("Assistant:"), errorText.Sprint("API Error"), errorText.Sprint(err.Error()))
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Fprintf(c.out, "%s %s\n\n", assistantLabel.Sprint("Assistant:"), assistantText.Sprint(outcome.Reply()))
	}

	noticeText.Fprintln(c.out, "Session ended.")
	return nil
}
