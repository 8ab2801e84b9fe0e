package model

import (
	"fmt"
	"time"
)

// ToolKind names one of the two supported tools.
type ToolKind string

const (
	ToolRunCommand ToolKind = "run_command"
	ToolSearch     ToolKind = "search"
)

// ToolDirective is a tool invocation extracted from a reply.
type ToolDirective struct {
	Kind     ToolKind `json:"kind"`
	Argument string   `json:"argument"`
}

// RunCommand builds a shell command directive.
func RunCommand(command string) ToolDirective {
	return ToolDirective{Kind: ToolRunCommand, Argument: command}
}

// Search builds a web search directive.
func Search(query string) ToolDirective {
	return ToolDirective{Kind: ToolSearch, Argument: query}
}

func (d ToolDirective) String() string {
	switch d.Kind {
	case ToolRunCommand:
		return fmt.Sprintf("[RUN_COMMAND %s]", d.Argument)
	case ToolSearch:
		return fmt.Sprintf("[SEARCH: %s]", d.Argument)
	default:
		return fmt.Sprintf("[%s %s]", d.Kind, d.Argument)
	}
}

// ToolResult is the outcome of executing a directive. Failures are values.
type ToolResult struct {
	Kind      ToolKind      `json:"kind"`
	Argument  string        `json:"argument"`
	Output    string        `json:"output"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
}

// Content renders the result as the tool message fed back to the model.
func (r ToolResult) Content() string {
	output := r.Output
	if output == "" {
		output = "(no output)"
	}

	switch r.Kind {
	case ToolRunCommand:
		if r.Success {
			return "Command output:\n" + output
		}
		return fmt.Sprintf("Command failed (%s).\nCommand output:\n%s", r.Error, output)
	case ToolSearch:
		if r.Success {
			return fmt.Sprintf("Web search results for '%s':\n%s", r.Argument, output)
		}
		return fmt.Sprintf("Failed to perform web search for '%s': %s", r.Argument, r.Error)
	default:
		return fmt.Sprintf("Tool %q failed: %s", r.Kind, r.Error)
	}
}
