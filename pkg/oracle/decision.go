package oracle

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/pkg/errors"
)

// Decision is the validated recovery decision extracted from an oracle
// response. The response must be a single JSON object; anything that does not
// conform is treated by the caller as "escalate, no fix", never as a crash.
type Decision struct {
	CanFix           bool
	ErrorType        errctx.ErrorType
	Diagnosis        string
	Fix              string
	Escalate         bool
	ResearchFindings string
	Confidence       errctx.Confidence
}

// rawDecision mirrors the wire schema with pointer fields so that missing
// required keys are distinguishable from zero values.
type rawDecision struct {
	CanFix           *bool   `json:"canFix"`
	ErrorType        *string `json:"errorType"`
	Diagnosis        *string `json:"diagnosis"`
	Fix              string  `json:"fix"`
	Escalate         *bool   `json:"escalate"`
	ResearchFindings string  `json:"researchFindings"`
	Confidence       string  `json:"confidence"`
}

// tier1Response defines the strict response schema demanded from the fast
// triage oracle. The schema JSON is embedded verbatim in the prompt.
type tier1Response struct {
	CanFix    bool   `json:"canFix" jsonschema:"description=Whether a single fix command is viable"`
	ErrorType string `json:"errorType" jsonschema:"enum=auth,enum=network,enum=conflict,enum=diverged,enum=permission,enum=syntax,enum=other"`
	Diagnosis string `json:"diagnosis" jsonschema:"description=One or two sentences explaining the failure"`
	Fix       string `json:"fix,omitempty" jsonschema:"description=A single shell command that fixes the failure. Required when canFix is true"`
	Escalate  bool   `json:"escalate" jsonschema:"description=Set to true to decline and hand the failure to the next tier"`
}

// tier2Response extends the tier-1 schema with research output.
type tier2Response struct {
	CanFix           bool   `json:"canFix" jsonschema:"description=Whether a single fix command is viable"`
	ErrorType        string `json:"errorType" jsonschema:"enum=auth,enum=network,enum=conflict,enum=diverged,enum=permission,enum=syntax,enum=other"`
	Diagnosis        string `json:"diagnosis" jsonschema:"description=One or two sentences explaining the failure"`
	Fix              string `json:"fix,omitempty" jsonschema:"description=A single shell command that fixes the failure. Required when canFix is true"`
	Escalate         bool   `json:"escalate" jsonschema:"description=Set to true to decline and request human escalation"`
	ResearchFindings string `json:"researchFindings,omitempty" jsonschema:"description=Summary of any external research that informed the diagnosis"`
	Confidence       string `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// SchemaJSON renders the response schema for the given tier as compact JSON
// for embedding into the prompt.
func SchemaJSON(tier errctx.Tier) string {
	var schema *jsonschema.Schema
	if tier == errctx.Tier2 {
		schema = generateSchema[tier2Response]()
	} else {
		schema = generateSchema[tier1Response]()
	}
	data, err := json.Marshal(schema)
	if err != nil {
		// the schema is generated from static structs; this cannot fail at runtime
		panic(err)
	}
	return string(data)
}

// stripFormatting removes fenced code blocks and surrounding prose so that
// only the JSON object remains. Models occasionally wrap the object despite
// being told not to.
func stripFormatting(raw string) string {
	s := strings.TrimSpace(raw)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// ParseDecision parses and validates an oracle response against the strict
// schema for the given tier. Any non-conforming response returns an error;
// callers convert that into an escalate-with-no-fix attempt.
func ParseDecision(response string, tier errctx.Tier) (Decision, error) {
	var dec Decision

	payload := stripFormatting(response)
	if payload == "" {
		return dec, errors.New("empty oracle response")
	}

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.DisallowUnknownFields()

	var raw rawDecision
	if err := decoder.Decode(&raw); err != nil {
		return dec, errors.Wrap(err, "oracle response is not a valid schema object")
	}

	switch {
	case raw.CanFix == nil:
		return dec, errors.New("oracle response is missing canFix")
	case raw.Escalate == nil:
		return dec, errors.New("oracle response is missing escalate")
	case raw.ErrorType == nil:
		return dec, errors.New("oracle response is missing errorType")
	case raw.Diagnosis == nil:
		return dec, errors.New("oracle response is missing diagnosis")
	}

	errorType := errctx.ErrorType(*raw.ErrorType)
	if !errorType.IsValid() {
		return dec, errors.Errorf("oracle response has unknown errorType %q", *raw.ErrorType)
	}

	if *raw.CanFix && strings.TrimSpace(raw.Fix) == "" {
		return dec, errors.New("oracle response claims canFix without a fix command")
	}
	if *raw.CanFix && *raw.Escalate {
		return dec, errors.New("oracle response both fixes and escalates")
	}

	confidence := errctx.Confidence(raw.Confidence)
	if raw.Confidence != "" && !confidence.IsValid() {
		return dec, errors.Errorf("oracle response has unknown confidence %q", raw.Confidence)
	}
	if tier == errctx.Tier2 && raw.Confidence == "" {
		confidence = errctx.ConfidenceLow
	}

	dec = Decision{
		CanFix:           *raw.CanFix,
		ErrorType:        errorType,
		Diagnosis:        *raw.Diagnosis,
		Fix:              strings.TrimSpace(raw.Fix),
		Escalate:         *raw.Escalate,
		ResearchFindings: raw.ResearchFindings,
		Confidence:       confidence,
	}
	if tier != errctx.Tier2 {
		// research fields only exist on the research-augmented tier
		dec.ResearchFindings = ""
		dec.Confidence = ""
	}
	return dec, nil
}
