// Package errctx defines the persistent record of one operation failure and
// every recovery attempt made against it. An ErrorContext is created exactly
// once, when a wrapped operation first fails, and is only ever mutated by
// appending recovery attempts. It survives the pipeline as an audit record.
package errctx

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxErrorOutput caps the captured error output before it is shown to any
// diagnostic oracle or persisted.
const MaxErrorOutput = 8 * 1024

// Tier identifies one stage of the escalation sequence.
type Tier string

const (
	// Tier1 is the fast, cheap oracle with no research capability.
	Tier1 Tier = "tier1"
	// Tier2 is the slower, research-augmented oracle.
	Tier2 Tier = "tier2"
)

// Tiers lists all tiers in escalation order.
var Tiers = []Tier{Tier1, Tier2}

// IsValid reports whether the tier is a known tier.
func (t Tier) IsValid() bool {
	return t == Tier1 || t == Tier2
}

// ErrorType classifies the diagnosed failure.
type ErrorType string

const (
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeDiverged   ErrorType = "diverged"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeSyntax     ErrorType = "syntax"
	ErrorTypeOther      ErrorType = "other"
)

// ErrorTypes lists the closed set of valid error classifications.
var ErrorTypes = []ErrorType{
	ErrorTypeAuth,
	ErrorTypeNetwork,
	ErrorTypeConflict,
	ErrorTypeDiverged,
	ErrorTypePermission,
	ErrorTypeSyntax,
	ErrorTypeOther,
}

// IsValid reports whether the error type belongs to the closed enum.
func (e ErrorType) IsValid() bool {
	for _, known := range ErrorTypes {
		if e == known {
			return true
		}
	}
	return false
}

// Confidence expresses how certain the research-augmented oracle is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IsValid reports whether the confidence level is known.
func (c Confidence) IsValid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// FixOutcome records the single execution of an oracle-suggested fix command.
type FixOutcome struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

// Usage captures the cost of one oracle invocation.
type Usage struct {
	InputTokens  int           `json:"inputTokens,omitempty"`
	OutputTokens int           `json:"outputTokens,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// RecoveryAttempt is one tier's diagnosis and, optionally, its fix outcome.
type RecoveryAttempt struct {
	Tier             Tier        `json:"tier"`
	Diagnosis        string      `json:"diagnosis"`
	ErrorType        ErrorType   `json:"errorType"`
	CanFix           bool        `json:"canFix"`
	Escalate         bool        `json:"escalate"`
	FixCommand       string      `json:"fixCommand,omitempty"`
	FixApplied       *FixOutcome `json:"fixApplied,omitempty"`
	ResearchFindings string      `json:"researchFindings,omitempty"`
	Confidence       Confidence  `json:"confidence,omitempty"`
	Usage            *Usage      `json:"usage,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Succeeded reports whether this attempt applied a fix that exited cleanly.
func (a RecoveryAttempt) Succeeded() bool {
	return a.FixApplied != nil && a.FixApplied.Success
}

// ErrorContext is the persistent record of one failed operation invocation.
type ErrorContext struct {
	ID               string            `json:"id"`
	Operation        string            `json:"operation"`
	Args             []string          `json:"args,omitempty"`
	ExitCode         int               `json:"exitCode"`
	ErrorOutput      string            `json:"errorOutput"`
	CreatedAt        time.Time         `json:"createdAt"`
	RecoveryAttempts []RecoveryAttempt `json:"recoveryAttempts"`
}

// New creates an ErrorContext for a failed invocation. The captured output is
// truncated to MaxErrorOutput before it is stored.
func New(operation string, args []string, exitCode int, output string) *ErrorContext {
	return &ErrorContext{
		ID:          uuid.NewString(),
		Operation:   operation,
		Args:        args,
		ExitCode:    exitCode,
		ErrorOutput: Truncate(output),
		CreatedAt:   time.Now().UTC(),
	}
}

// Truncate bounds diagnostic text to MaxErrorOutput bytes. The head of the
// output is kept; a marker notes how much was dropped.
func Truncate(output string) string {
	if len(output) <= MaxErrorOutput {
		return output
	}
	return output[:MaxErrorOutput] + fmt.Sprintf("\n[truncated %d bytes]", len(output)-MaxErrorOutput)
}

// CommandLine renders the failed invocation as a single shell-style string.
func (c *ErrorContext) CommandLine() string {
	if len(c.Args) == 0 {
		return c.Operation
	}
	return c.Operation + " " + strings.Join(c.Args, " ")
}

// Resolved reports whether any recorded attempt applied a successful fix.
func (c *ErrorContext) Resolved() bool {
	for _, a := range c.RecoveryAttempts {
		if a.Succeeded() {
			return true
		}
	}
	return false
}

// AttemptFor returns the recorded attempt for the given tier, if any.
func (c *ErrorContext) AttemptFor(tier Tier) (RecoveryAttempt, bool) {
	for _, a := range c.RecoveryAttempts {
		if a.Tier == tier {
			return a, true
		}
	}
	return RecoveryAttempt{}, false
}

// LatestAttempt returns the most recently appended attempt, if any.
func (c *ErrorContext) LatestAttempt() (RecoveryAttempt, bool) {
	if len(c.RecoveryAttempts) == 0 {
		return RecoveryAttempt{}, false
	}
	return c.RecoveryAttempts[len(c.RecoveryAttempts)-1], true
}

// AppendAttempt appends one recovery attempt, enforcing the record invariants:
// attempts are tier-ascending and one-per-tier, nothing is appended after a
// successful fix, canFix requires a fix command, and an escalating attempt
// must not have applied a fix.
func (c *ErrorContext) AppendAttempt(attempt RecoveryAttempt) error {
	if !attempt.Tier.IsValid() {
		return errors.Errorf("unknown tier %q", attempt.Tier)
	}
	if c.Resolved() {
		return errors.New("error context already resolved, no further attempts accepted")
	}
	if _, exists := c.AttemptFor(attempt.Tier); exists {
		return errors.Errorf("tier %s already attempted", attempt.Tier)
	}
	if attempt.Tier == Tier2 {
		if _, exists := c.AttemptFor(Tier1); !exists {
			return errors.New("tier2 attempt recorded before tier1")
		}
	}
	if attempt.CanFix && attempt.FixCommand == "" {
		return errors.New("canFix attempt is missing its fix command")
	}
	if attempt.Escalate && attempt.FixApplied != nil {
		return errors.New("escalating attempt must not apply a fix")
	}
	if !attempt.ErrorType.IsValid() {
		return errors.Errorf("unknown error type %q", attempt.ErrorType)
	}

	c.RecoveryAttempts = append(c.RecoveryAttempts, attempt)
	return nil
}
