// Package executor runs wrapped operations and applies oracle-suggested fix
// commands. Both run synchronously with combined output capture. Fix commands
// are executed exactly once and never rolled back; the pipeline records their
// outcome instead of providing transactional semantics.
package executor

import (
	"context"
	"os/exec"

	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/logger"
)

// RunResult captures one synchronous operation invocation.
type RunResult struct {
	Output   string
	ExitCode int
}

// Success reports whether the operation exited cleanly.
func (r RunResult) Success() bool {
	return r.ExitCode == 0
}

// startFailureExitCode stands in for operations that could not be started at
// all (missing executable, permission denied on the binary). 127 matches the
// shell convention for command-not-found.
const startFailureExitCode = 127

// RunOperation invokes the operation synchronously and captures its combined
// output and exit status. An operation that cannot be started is reported as
// a failure occurrence rather than an error, so the pipeline can diagnose it
// like any other non-zero exit.
func RunOperation(ctx context.Context, operation string, args []string) RunResult {
	log := logger.G(ctx).WithField("operation", operation)
	log.Debug("running operation")

	cmd := exec.CommandContext(ctx, operation, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return RunResult{Output: string(output), ExitCode: exitErr.ExitCode()}
		}
		log.WithError(err).Debug("operation could not be started")
		return RunResult{Output: err.Error(), ExitCode: startFailureExitCode}
	}

	return RunResult{Output: string(output)}
}

// ApplyFix executes a suggested fix command once through the shell and
// records its outcome. It does not retry and does not undo partial side
// effects of a fix that ran and still failed.
func ApplyFix(ctx context.Context, fixCommand string) errctx.FixOutcome {
	log := logger.G(ctx).WithField("fix", fixCommand)
	log.Info("applying suggested fix")

	cmd := exec.CommandContext(ctx, "bash", "-c", fixCommand)
	output, err := cmd.CombinedOutput()

	outcome := errctx.FixOutcome{
		Command: fixCommand,
		Output:  string(output),
		Success: err == nil,
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			outcome.Output = err.Error()
		}
		log.WithError(err).Warn("fix command failed")
	}
	return outcome
}
