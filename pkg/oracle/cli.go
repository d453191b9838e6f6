package oracle

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/logger"
	"github.com/pkg/errors"
)

// CLIBackend invokes a diagnostic CLI (claude-style) as a blocking subprocess
// in non-interactive print mode. The prompt is fed on stdin; stdout is the
// raw model response. The system prompt is prepended since not every CLI
// supports a separate system channel.
type CLIBackend struct {
	command string
	args    []string
	models  map[errctx.Tier]string
}

// NewCLIBackend builds the subprocess backend from the oracle configuration.
func NewCLIBackend(cfg config.OracleConfig) *CLIBackend {
	return &CLIBackend{
		command: cfg.CLI.Command,
		args:    cfg.CLI.Args,
		models: map[errctx.Tier]string{
			errctx.Tier1: cfg.Tier1.Model,
			errctx.Tier2: cfg.Tier2.Model,
		},
	}
}

// Invoke runs one blocking subprocess call with the caller's deadline. A
// deadline expiry or a failed invocation is reported as ErrUnavailable.
func (b *CLIBackend) Invoke(ctx context.Context, req Request) (*Response, error) {
	args := append([]string{}, b.args...)
	args = append(args, "-p", "--model", b.models[req.Tier], "--output-format", "text")

	log := logger.G(ctx).WithField("backend", "cli").WithField("command", b.command)
	log.Debug("invoking diagnostic CLI")

	cmd := exec.CommandContext(ctx, b.command, args...)
	cmd.Stdin = strings.NewReader(SystemPrompt(req.Tier) + "\n\n" + req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// don't let grandchildren holding the output pipes outlive the deadline
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(ErrUnavailable, "%s timed out after %s", b.command, time.Since(start).Round(time.Millisecond))
		}
		return nil, errors.Wrapf(ErrUnavailable, "%s failed: %v: %s", b.command, err, strings.TrimSpace(stderr.String()))
	}

	return &Response{Text: stdout.String()}, nil
}
