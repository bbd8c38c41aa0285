// Package extractor turns raw customer utterances into structured
// extraction results. The model path runs an LLM graph with strict
// JSON output; a regex rule layer backs it up so an oracle failure
// degrades to a deterministic result instead of an error.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

type Extractor struct {
	runner compose.Runnable[map[string]any, extractorLLMOutput]
}

// New compiles the model-backed extractor. chatModel may be nil, in
// which case only the rule layer runs.
func New(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Extractor, error) {
	if chatModel == nil {
		return &Extractor{}, nil
	}
	runner, err := compileExtractorGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile extractor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Extractor{runner: runner}, nil
}

// NewRuleBased returns an extractor that only uses the regex layer.
func NewRuleBased() *Extractor {
	return &Extractor{}
}

// Extract never surfaces an oracle failure as an error; the worst case
// is a zero-confidence UNKNOWN result. The error return covers context
// cancellation and empty input only.
func (e *Extractor) Extract(ctx context.Context, text string, tc contractx.TurnContext) (contractx.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: text is required", contractx.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return contractx.ExtractionResult{}, err
	}

	ruled := extractByRules(text, tc)
	if e.runner == nil {
		return ruled, nil
	}

	payload := map[string]any{
		"message":              text,
		"last_intent":          tc.LastIntent,
		"recent_pro":           tc.RecentPRO,
		"outstanding_question": tc.OutstandingQuestion,
		"candidate_count":      tc.CandidateCount,
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return contractx.ExtractionResult{}, fmt.Errorf("%w: marshal extractor payload: %v", contractx.ErrValidation, err)
	}

	out, err := e.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		if ctx.Err() != nil {
			return contractx.ExtractionResult{}, ctx.Err()
		}
		log.Warn().Err(err).Msg("extractor model invoke failed, using rule layer")
		return ruled, nil
	}

	return merge(fromLLMOutput(out), ruled), nil
}

func fromLLMOutput(out extractorLLMOutput) contractx.ExtractionResult {
	res := contractx.ExtractionResult{
		Intent:      parseIntent(out.Intent),
		Confidence:  clamp01(out.Confidence),
		PRO:         field(out.PRO),
		Origin:      field(out.Origin),
		Destination: field(out.Destination),
		Carrier:     field(out.Carrier),
		DateFrom:    field(out.DateFrom),
		DateTo:      field(out.DateTo),
		Preference:  field(out.Preference),
		Ordinal:     out.Ordinal,
		Urgent:      out.Urgent,
	}
	if res.Intent == contractx.IntentUnknown && out.Intent != string(contractx.IntentUnknown) {
		// the model named an intent outside the schema
		res.Confidence = 0
	}
	return res
}

// merge prefers the model result and backfills from the rule layer:
// anchored regex hits are more trustworthy than a model transcription
// for identifiers, and urgency is sticky.
func merge(model, ruled contractx.ExtractionResult) contractx.ExtractionResult {
	out := model

	if ruled.PRO.Present() && ruled.PRO.Confidence > out.PRO.Confidence {
		out.PRO = ruled.PRO
	}
	if !out.Origin.Present() {
		out.Origin = ruled.Origin
	}
	if !out.Destination.Present() {
		out.Destination = ruled.Destination
	}
	if !out.DateFrom.Present() {
		out.DateFrom = ruled.DateFrom
	}
	if !out.DateTo.Present() {
		out.DateTo = ruled.DateTo
	}
	if !out.Preference.Present() {
		out.Preference = ruled.Preference
	}
	if out.Ordinal == 0 {
		out.Ordinal = ruled.Ordinal
	}
	out.Urgent = out.Urgent || ruled.Urgent

	if out.Intent == contractx.IntentUnknown && ruled.Intent != contractx.IntentUnknown {
		out.Intent = ruled.Intent
		out.Confidence = ruled.Confidence
	}
	return out
}

func parseIntent(s string) contractx.Intent {
	switch contractx.Intent(strings.TrimSpace(strings.ToLower(s))) {
	case contractx.IntentTrack:
		return contractx.IntentTrack
	case contractx.IntentReportDelay:
		return contractx.IntentReportDelay
	case contractx.IntentDisambiguate:
		return contractx.IntentDisambiguate
	case contractx.IntentPreference:
		return contractx.IntentPreference
	default:
		return contractx.IntentUnknown
	}
}

func field(f llmField) contractx.Field {
	return contractx.Field{Value: strings.TrimSpace(f.Value), Confidence: clamp01(f.Confidence)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
