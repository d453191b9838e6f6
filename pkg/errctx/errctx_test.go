package errctx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tier1Attempt() RecoveryAttempt {
	return RecoveryAttempt{
		Tier:       Tier1,
		Diagnosis:  "remote and local branches diverged",
		ErrorType:  ErrorTypeDiverged,
		CanFix:     true,
		FixCommand: "git pull --rebase",
		CreatedAt:  time.Now().UTC(),
	}
}

func tier2Attempt() RecoveryAttempt {
	return RecoveryAttempt{
		Tier:             Tier2,
		Diagnosis:        "expired credential helper token",
		ErrorType:        ErrorTypeAuth,
		CanFix:           true,
		FixCommand:       "gh auth refresh",
		ResearchFindings: "matches a known gh token expiry report",
		Confidence:       ConfidenceHigh,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestNewTruncatesErrorOutput(t *testing.T) {
	long := strings.Repeat("x", MaxErrorOutput+500)
	ec := New("git", []string{"push"}, 1, long)

	assert.Less(t, len(ec.ErrorOutput), len(long))
	assert.Contains(t, ec.ErrorOutput, "[truncated 500 bytes]")
	assert.Equal(t, "git push", ec.CommandLine())
	assert.NotEmpty(t, ec.ID)
	assert.False(t, ec.CreatedAt.IsZero())
}

func TestTruncateShortOutputUntouched(t *testing.T) {
	assert.Equal(t, "fatal: oops", Truncate("fatal: oops"))
}

func TestAppendAttemptOrdering(t *testing.T) {
	ec := New("git", []string{"push"}, 1, "rejected")

	// tier2 before tier1 violates the escalation order
	err := ec.AppendAttempt(tier2Attempt())
	assert.Error(t, err)

	require.NoError(t, ec.AppendAttempt(tier1Attempt()))
	require.NoError(t, ec.AppendAttempt(tier2Attempt()))
	assert.Len(t, ec.RecoveryAttempts, 2)
	assert.Equal(t, Tier1, ec.RecoveryAttempts[0].Tier)
	assert.Equal(t, Tier2, ec.RecoveryAttempts[1].Tier)
}

func TestAppendAttemptOnePerTier(t *testing.T) {
	ec := New("git", []string{"push"}, 1, "rejected")

	require.NoError(t, ec.AppendAttempt(tier1Attempt()))
	err := ec.AppendAttempt(tier1Attempt())
	assert.ErrorContains(t, err, "already attempted")
}

func TestAppendAttemptAfterResolutionRejected(t *testing.T) {
	ec := New("git", []string{"push"}, 1, "rejected")

	resolved := tier1Attempt()
	resolved.FixApplied = &FixOutcome{Command: resolved.FixCommand, Output: "ok", Success: true}
	require.NoError(t, ec.AppendAttempt(resolved))
	assert.True(t, ec.Resolved())

	err := ec.AppendAttempt(tier2Attempt())
	assert.ErrorContains(t, err, "already resolved")
	assert.Len(t, ec.RecoveryAttempts, 1)
}

func TestAppendAttemptConsistencyRules(t *testing.T) {
	ec := New("git", []string{"push"}, 1, "rejected")

	missingFix := tier1Attempt()
	missingFix.FixCommand = ""
	assert.ErrorContains(t, ec.AppendAttempt(missingFix), "missing its fix command")

	escalated := tier1Attempt()
	escalated.CanFix = false
	escalated.FixCommand = ""
	escalated.Escalate = true
	escalated.FixApplied = &FixOutcome{Command: "true", Success: true}
	assert.ErrorContains(t, ec.AppendAttempt(escalated), "must not apply a fix")

	badType := tier1Attempt()
	badType.ErrorType = "cosmic-rays"
	assert.ErrorContains(t, ec.AppendAttempt(badType), "unknown error type")

	badTier := tier1Attempt()
	badTier.Tier = "tier9"
	assert.ErrorContains(t, ec.AppendAttempt(badTier), "unknown tier")
}

func TestLatestAndAttemptFor(t *testing.T) {
	ec := New("git", []string{"push"}, 1, "rejected")

	_, ok := ec.LatestAttempt()
	assert.False(t, ok)

	require.NoError(t, ec.AppendAttempt(tier1Attempt()))
	latest, ok := ec.LatestAttempt()
	require.True(t, ok)
	assert.Equal(t, Tier1, latest.Tier)

	_, ok = ec.AttemptFor(Tier2)
	assert.False(t, ok)
	got, ok := ec.AttemptFor(Tier1)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeDiverged, got.ErrorType)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, Tier1.IsValid())
	assert.True(t, Tier2.IsValid())
	assert.False(t, Tier("tier3").IsValid())

	for _, et := range ErrorTypes {
		assert.True(t, et.IsValid())
	}
	assert.False(t, ErrorType("unknown").IsValid())

	assert.True(t, ConfidenceMedium.IsValid())
	assert.False(t, Confidence("certain").IsValid())
}
