package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/daryltucker/agent-bench/internal/model"
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// children after the process group was killed.
const waitDelay = 500 * time.Millisecond

func (e *Executor) runCommand(ctx context.Context, command string) model.ToolResult {
	if command == "" {
		return model.ToolResult{Error: "empty command", ExitCode: -1}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.cfg.Shell, "-c", command)
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + e.cfg.WorkDir,
		"LANG=C.UTF-8",
	}
	cmd.WaitDelay = waitDelay
	isolateProcessGroup(cmd)

	out := newCappedBuffer(e.cfg.OutputLimit)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()

	res := model.ToolResult{
		Output:    out.String(),
		Truncated: out.Truncated(),
	}

	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.ExitCode = -1
		res.Error = fmt.Sprintf("command timed out after %s", e.cfg.CommandTimeout)
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Error = "command cancelled"
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Error = fmt.Sprintf("exit status %d", res.ExitCode)
		} else {
			res.ExitCode = -1
			res.Error = fmt.Sprintf("failed to run command: %v", err)
		}
	default:
		res.Success = true
	}

	return res
}
