package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/avast/retry-go/v4"
	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/logger"
	"github.com/pkg/errors"
)

// modelPricing holds per-token pricing used for attempt cost accounting.
type modelPricing struct {
	input  float64
	output float64
}

var modelPricingMap = map[string]modelPricing{
	"claude-3-5-haiku":  {input: 0.0000008, output: 0.000004},
	"claude-3-haiku":    {input: 0.00000025, output: 0.00000125},
	"claude-3-7-sonnet": {input: 0.000003, output: 0.000015},
	"claude-3-5-sonnet": {input: 0.000003, output: 0.000015},
	"claude-3-opus":     {input: 0.000015, output: 0.000075},
}

func pricingFor(model string) modelPricing {
	lower := strings.ToLower(model)
	for family, pricing := range modelPricingMap {
		if strings.Contains(lower, family) {
			return pricing
		}
	}
	// default to sonnet-class pricing when the family is unknown
	return modelPricingMap["claude-3-7-sonnet"]
}

// AnthropicBackend answers diagnosis requests with the Anthropic API
// directly: the fast tier uses a cheap model with no tools, the research
// tier a stronger model with the hosted web-search tool.
type AnthropicBackend struct {
	client anthropic.Client
	cfg    config.OracleConfig
}

// NewAnthropicBackend creates the API backend. Credentials come from the
// standard ANTHROPIC_API_KEY environment variable.
func NewAnthropicBackend(cfg config.OracleConfig) *AnthropicBackend {
	return &AnthropicBackend{
		client: anthropic.NewClient(),
		cfg:    cfg,
	}
}

func (b *AnthropicBackend) tierConfig(tier errctx.Tier) config.TierConfig {
	if tier == errctx.Tier2 {
		return b.cfg.Tier2
	}
	return b.cfg.Tier1
}

// Invoke sends one diagnosis request. API-level transient failures are
// retried within the caller's deadline; the recovery pipeline itself never
// re-runs a tier.
func (b *AnthropicBackend) Invoke(ctx context.Context, req Request) (*Response, error) {
	tierCfg := b.tierConfig(req.Tier)
	log := logger.G(ctx).WithField("backend", "anthropic").WithField("model", tierCfg.Model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(tierCfg.Model),
		MaxTokens: int64(tierCfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt(req.Tier)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.Tier == errctx.Tier2 {
		params.Tools = []anthropic.ToolUnionParam{
			{
				OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
					MaxUses: anthropic.Int(int64(b.cfg.MaxSearches)),
				},
			},
		}
	}

	var response *anthropic.Message
	err := retry.Do(
		func() error {
			var apiErr error
			response, apiErr = b.client.Messages.New(ctx, params)
			return apiErr
		},
		retry.RetryIf(isRetryableAPIError),
		retry.Attempts(uint(b.cfg.Retry.Attempts)),
		retry.Delay(time.Duration(b.cfg.Retry.InitialDelay)*time.Millisecond),
		retry.MaxDelay(time.Duration(b.cfg.Retry.MaxDelay)*time.Millisecond),
		retry.DelayType(delayType(b.cfg.Retry.BackoffType)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("retrying Anthropic API call")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "anthropic api call failed: %v", err)
	}

	var texts []string
	for _, block := range response.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			texts = append(texts, variant.Text)
		}
	}

	pricing := pricingFor(tierCfg.Model)
	usage := &errctx.Usage{
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
		Cost: float64(response.Usage.InputTokens)*pricing.input +
			float64(response.Usage.OutputTokens)*pricing.output,
	}

	return &Response{Text: strings.Join(texts, "\n"), Usage: usage}, nil
}

func isRetryableAPIError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// transport-level errors are worth one more try; context expiry aborts
	// the retry loop via retry.Context
	return true
}

func delayType(backoffType string) retry.DelayTypeFunc {
	if backoffType == "fixed" {
		return retry.FixedDelay
	}
	return retry.BackOffDelay
}
