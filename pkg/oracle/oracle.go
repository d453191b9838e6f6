// Package oracle implements the tiered diagnostic oracles of the recovery
// pipeline. An oracle inspects a persisted error context and returns a
// structured recovery decision; tiers differ in cost, latency budget, and
// research capability. Tier prompts cascade: the research tier sees the fast
// tier's diagnosis, never the other way around.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/logger"
)

// DiagnosticOracle is the decision-making capability of one tier. Diagnose
// never fails: backend unavailability and malformed responses are folded into
// an escalate-with-no-fix attempt so that nothing is thrown at the driver.
type DiagnosticOracle interface {
	Tier() errctx.Tier
	Diagnose(ctx context.Context, ec *errctx.ErrorContext) errctx.RecoveryAttempt
}

type tierOracle struct {
	tier    errctx.Tier
	backend Backend
	timeout time.Duration
}

// NewTier1 creates the fast, cheap oracle with no research capability.
func NewTier1(backend Backend, timeout time.Duration) DiagnosticOracle {
	return &tierOracle{tier: errctx.Tier1, backend: backend, timeout: timeout}
}

// NewTier2 creates the research-augmented oracle. It is allowed a longer
// timeout so the backend can consult external sources before answering.
func NewTier2(backend Backend, timeout time.Duration) DiagnosticOracle {
	return &tierOracle{tier: errctx.Tier2, backend: backend, timeout: timeout}
}

func (o *tierOracle) Tier() errctx.Tier {
	return o.tier
}

func (o *tierOracle) Diagnose(ctx context.Context, ec *errctx.ErrorContext) errctx.RecoveryAttempt {
	log := logger.G(ctx).WithField("tier", o.tier)

	prompt := BuildPrompt(o.tier, ec)

	invokeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.backend.Invoke(invokeCtx, Request{Tier: o.tier, Prompt: prompt})
	elapsed := time.Since(start)

	if err != nil {
		// timeout or invocation failure: the tier is unavailable, not
		// diagnosed-and-failed, and no fix attempt is consumed
		log.WithError(err).WithField("duration", elapsed).Warn("diagnostic backend unavailable")
		return o.fallbackAttempt(fmt.Sprintf("%s oracle unavailable: %v", o.tier, err), elapsed)
	}

	decision, err := ParseDecision(resp.Text, o.tier)
	if err != nil {
		log.WithError(err).Warn("oracle response failed schema validation")
		return o.fallbackAttempt(fmt.Sprintf("%s oracle returned a malformed decision: %v", o.tier, err), elapsed)
	}

	attempt := errctx.RecoveryAttempt{
		Tier:             o.tier,
		Diagnosis:        decision.Diagnosis,
		ErrorType:        decision.ErrorType,
		CanFix:           decision.CanFix,
		Escalate:         decision.Escalate,
		FixCommand:       decision.Fix,
		ResearchFindings: decision.ResearchFindings,
		Confidence:       decision.Confidence,
		Usage:            usageWithDuration(resp.Usage, elapsed),
		CreatedAt:        time.Now().UTC(),
	}

	log.WithFields(map[string]any{
		"errorType": attempt.ErrorType,
		"canFix":    attempt.CanFix,
		"escalate":  attempt.Escalate,
		"duration":  elapsed,
	}).Info("diagnosis complete")

	return attempt
}

// fallbackAttempt records an unavailable or malformed tier outcome. The
// failure is still written into the context: nothing is silently discarded.
func (o *tierOracle) fallbackAttempt(diagnosis string, elapsed time.Duration) errctx.RecoveryAttempt {
	return errctx.RecoveryAttempt{
		Tier:      o.tier,
		Diagnosis: diagnosis,
		ErrorType: errctx.ErrorTypeOther,
		CanFix:    false,
		Escalate:  true,
		Usage:     usageWithDuration(nil, elapsed),
		CreatedAt: time.Now().UTC(),
	}
}

func usageWithDuration(usage *errctx.Usage, elapsed time.Duration) *errctx.Usage {
	if usage == nil {
		usage = &errctx.Usage{}
	}
	usage.Duration = elapsed
	return usage
}
