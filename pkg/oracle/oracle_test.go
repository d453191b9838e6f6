package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records the request it received and plays back a canned answer.
type fakeBackend struct {
	response string
	err      error
	lastReq  Request
}

func (f *fakeBackend) Invoke(_ context.Context, req Request) (*Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.response, Usage: &errctx.Usage{InputTokens: 100, OutputTokens: 20}}, nil
}

func failedPush() *errctx.ErrorContext {
	return errctx.New("git", []string{"push"}, 1, "fatal: rejected, branches diverged")
}

func TestTier1DiagnoseFixable(t *testing.T) {
	backend := &fakeBackend{
		response: `{"canFix": true, "errorType": "diverged", "diagnosis": "branches diverged", "fix": "git pull --rebase", "escalate": false}`,
	}
	oracle := NewTier1(backend, time.Second)
	assert.Equal(t, errctx.Tier1, oracle.Tier())

	attempt := oracle.Diagnose(context.Background(), failedPush())

	assert.Equal(t, errctx.Tier1, attempt.Tier)
	assert.True(t, attempt.CanFix)
	assert.False(t, attempt.Escalate)
	assert.Equal(t, "git pull --rebase", attempt.FixCommand)
	assert.Equal(t, errctx.ErrorTypeDiverged, attempt.ErrorType)
	assert.Nil(t, attempt.FixApplied)
	require.NotNil(t, attempt.Usage)
	assert.Equal(t, 100, attempt.Usage.InputTokens)
	assert.NotZero(t, attempt.Usage.Duration)
}

func TestDiagnoseMalformedResponseEscalates(t *testing.T) {
	backend := &fakeBackend{response: "I have no idea what happened here."}
	oracle := NewTier1(backend, time.Second)

	attempt := oracle.Diagnose(context.Background(), failedPush())

	assert.False(t, attempt.CanFix)
	assert.True(t, attempt.Escalate)
	assert.Empty(t, attempt.FixCommand)
	assert.Equal(t, errctx.ErrorTypeOther, attempt.ErrorType)
	assert.Contains(t, attempt.Diagnosis, "malformed")
}

func TestDiagnoseBackendUnavailableEscalates(t *testing.T) {
	backend := &fakeBackend{err: errors.Wrap(ErrUnavailable, "claude timed out")}
	oracle := NewTier2(backend, time.Second)

	attempt := oracle.Diagnose(context.Background(), failedPush())

	assert.Equal(t, errctx.Tier2, attempt.Tier)
	assert.False(t, attempt.CanFix)
	assert.True(t, attempt.Escalate)
	assert.Contains(t, attempt.Diagnosis, "unavailable")
}

func TestTier1PromptHasNoPriorAttempts(t *testing.T) {
	backend := &fakeBackend{
		response: `{"canFix": false, "errorType": "other", "diagnosis": "x", "escalate": true}`,
	}
	oracle := NewTier1(backend, time.Second)

	oracle.Diagnose(context.Background(), failedPush())

	assert.Contains(t, backend.lastReq.Prompt, "git push")
	assert.Contains(t, backend.lastReq.Prompt, "Exit code: 1")
	assert.NotContains(t, backend.lastReq.Prompt, "Prior tier-1 triage")
}

func TestTier2PromptEnrichedWithTier1Diagnosis(t *testing.T) {
	ec := failedPush()
	require.NoError(t, ec.AppendAttempt(errctx.RecoveryAttempt{
		Tier:      errctx.Tier1,
		Diagnosis: "unfamiliar authentication failure",
		ErrorType: errctx.ErrorTypeAuth,
		Escalate:  true,
		CreatedAt: time.Now().UTC(),
	}))

	backend := &fakeBackend{
		response: `{"canFix": false, "errorType": "auth", "diagnosis": "x", "escalate": true}`,
	}
	oracle := NewTier2(backend, time.Second)

	oracle.Diagnose(context.Background(), ec)

	assert.Equal(t, errctx.Tier2, backend.lastReq.Tier)
	assert.Contains(t, backend.lastReq.Prompt, "Prior tier-1 triage")
	assert.Contains(t, backend.lastReq.Prompt, "unfamiliar authentication failure")
	assert.Contains(t, backend.lastReq.Prompt, "errorType: auth")
	assert.Contains(t, backend.lastReq.Prompt, "researchFindings")
}

func TestTier2PromptIncludesFailedFixOutcome(t *testing.T) {
	ec := failedPush()
	require.NoError(t, ec.AppendAttempt(errctx.RecoveryAttempt{
		Tier:       errctx.Tier1,
		Diagnosis:  "diverged",
		ErrorType:  errctx.ErrorTypeDiverged,
		CanFix:     true,
		FixCommand: "git pull --rebase",
		FixApplied: &errctx.FixOutcome{
			Command: "git pull --rebase",
			Output:  "CONFLICT (content): merge conflict in main.go",
			Success: false,
		},
		CreatedAt: time.Now().UTC(),
	}))

	backend := &fakeBackend{
		response: `{"canFix": false, "errorType": "conflict", "diagnosis": "x", "escalate": true}`,
	}
	NewTier2(backend, time.Second).Diagnose(context.Background(), ec)

	assert.Contains(t, backend.lastReq.Prompt, "attempted fix: git pull --rebase")
	assert.Contains(t, backend.lastReq.Prompt, "CONFLICT")
}
