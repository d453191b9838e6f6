package oracle

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/rescue/pkg/errctx"
)

const tier1SystemPrompt = `You are a fast triage assistant for failed shell operations.
You diagnose the failure from the captured output alone, without running commands or researching.
When a single narrowly-scoped shell command would fix the failure, propose it; otherwise escalate.
Respond with exactly one JSON object conforming to the provided schema. No markdown, no prose.`

const tier2SystemPrompt = `You are a senior diagnostic assistant for failed shell operations.
A faster assistant has already triaged this failure and declined to fix it; its reasoning is included.
You may consult external sources (web search) to identify known failure modes before deciding.
When a single narrowly-scoped shell command would fix the failure, propose it; otherwise escalate to a human.
Respond with exactly one JSON object conforming to the provided schema. No markdown, no prose.`

// SystemPrompt returns the system prompt for the given tier.
func SystemPrompt(tier errctx.Tier) string {
	if tier == errctx.Tier2 {
		return tier2SystemPrompt
	}
	return tier1SystemPrompt
}

// BuildPrompt renders the bounded user prompt for a tier. The tier-2 prompt
// is enriched with the tier-1 diagnosis and classification; earlier tiers
// never see later tiers' reasoning.
func BuildPrompt(tier errctx.Tier, ec *errctx.ErrorContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A wrapped operation failed.\n\n")
	fmt.Fprintf(&b, "Command: %s\n", ec.CommandLine())
	fmt.Fprintf(&b, "Exit code: %d\n\n", ec.ExitCode)
	fmt.Fprintf(&b, "Captured output:\n%s\n", errctx.Truncate(ec.ErrorOutput))

	if tier == errctx.Tier2 {
		if prior, ok := ec.AttemptFor(errctx.Tier1); ok {
			fmt.Fprintf(&b, "\nPrior tier-1 triage:\n")
			fmt.Fprintf(&b, "  errorType: %s\n", prior.ErrorType)
			fmt.Fprintf(&b, "  diagnosis: %s\n", prior.Diagnosis)
			if prior.FixApplied != nil {
				fmt.Fprintf(&b, "  attempted fix: %s\n", prior.FixApplied.Command)
				fmt.Fprintf(&b, "  fix output:\n%s\n", errctx.Truncate(prior.FixApplied.Output))
			}
		}
	}

	fmt.Fprintf(&b, "\nRespond with a single JSON object matching this schema:\n%s\n", SchemaJSON(tier))

	return b.String()
}
