package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunOperationSuccess(t *testing.T) {
	result := RunOperation(context.Background(), "sh", []string{"-c", "echo pushed"})

	assert.True(t, result.Success())
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "pushed\n", result.Output)
}

func TestRunOperationFailureCapturesExitCodeAndOutput(t *testing.T) {
	result := RunOperation(context.Background(), "sh", []string{"-c", "echo 'fatal: rejected' >&2; exit 3"})

	assert.False(t, result.Success())
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "fatal: rejected")
}

func TestRunOperationMissingExecutable(t *testing.T) {
	result := RunOperation(context.Background(), "definitely-not-a-real-binary", nil)

	assert.False(t, result.Success())
	assert.Equal(t, startFailureExitCode, result.ExitCode)
	assert.NotEmpty(t, result.Output)
}

func TestApplyFixSuccess(t *testing.T) {
	outcome := ApplyFix(context.Background(), "echo fixed")

	assert.True(t, outcome.Success)
	assert.Equal(t, "echo fixed", outcome.Command)
	assert.Equal(t, "fixed\n", outcome.Output)
}

func TestApplyFixFailureKeepsOutput(t *testing.T) {
	outcome := ApplyFix(context.Background(), "echo 'still broken' >&2; exit 1")

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Output, "still broken")
}
