// Package analysis defines the narrative analyzer boundary: given a raw
// message, the matched template and the extracted fields, an external LLM
// returns a structured finding list. The provider is optional; every failure
// path degrades to a sentinel analysis rather than an error.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"mtmatch/internal/core"
)

// Analyzer produces a structured analysis of a matched message.
type Analyzer interface {
	Analyze(ctx context.Context, raw, templateContent string, extractedFields map[string]string) (*core.StructuredAnalysis, error)
}

// Sentinel returns the fallback analysis used when the provider is
// unavailable. Callers must not treat its empty finding list as absence of
// risk.
func Sentinel(note string) *core.StructuredAnalysis {
	if note == "" {
		note = "narrative analyzer unavailable; no automated field review performed"
	}
	return &core.StructuredAnalysis{
		TransactionSummary: "Automated narrative analysis was not available for this transaction.",
		OverallRisk:        core.RiskMedium,
		Recommendation:     "Review the transaction manually.",
		Notes:              note,
		Sentinel:           true,
	}
}

const analysisPrompt = `You are reviewing a SWIFT trade-finance message against the recurring template it matched.

Raw message:
---
%s
---

Matched template:
---
%s
---

Extracted fields (tag: value):
%s

Respond with JSON only, no prose, matching this schema:
{
  "transactionSummary": string,
  "fieldFindings": [{"tag": string, "name": string, "severity": "CRITICAL"|"WARNING"|"INFO"|"ACCEPTABLE", "description": string, "actualValue": string, "expectedValue": string, "businessImpact": string, "recommendation": string}],
  "overallRisk": "LOW"|"MEDIUM"|"HIGH",
  "recommendation": string,
  "notes": string
}`

// GeminiAnalyzer asks Gemini for the structured finding list.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer wraps a genai client. model defaults to a flash-tier
// model suitable for structured review.
func NewGeminiAnalyzer(client *genai.Client, model string) *GeminiAnalyzer {
	if model == "" {
		model = "gemini-flash-latest"
	}
	return &GeminiAnalyzer{client: client, model: model}
}

// Analyze prompts the model and parses its JSON reply. Any failure returns an
// error; the caller substitutes the sentinel.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, raw, templateContent string, extractedFields map[string]string) (*core.StructuredAnalysis, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no analyzer client configured")
	}

	var fields strings.Builder
	for tag, value := range extractedFields {
		fmt.Fprintf(&fields, "%s: %s\n", tag, value)
	}

	prompt := fmt.Sprintf(analysisPrompt, raw, templateContent, fields.String())
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate analysis: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	return parseAnalysis(text)
}

// parseAnalysis tolerates markdown fences around the JSON body.
func parseAnalysis(text string) (*core.StructuredAnalysis, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	var out core.StructuredAnalysis
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	switch out.OverallRisk {
	case core.RiskLow, core.RiskMedium, core.RiskHigh:
	default:
		out.OverallRisk = core.RiskMedium
	}
	return &out, nil
}
