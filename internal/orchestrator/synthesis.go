package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// synthesisOutcome is Stage S's result for one pass.
type synthesisOutcome struct {
	Markdown         string
	NeedsMoreResearch bool
	Gaps             []string
	Usage            llmgateway.Usage
}

var insufficientCoverageRe = regexp.MustCompile(`(?is)<needs_more_research>\s*(.*?)\s*</needs_more_research>`)

const synthesisSystemPrompt = `You are a research synthesizer. Given the original query and a set of sub-query findings (some may have failed), produce a comprehensive final report in markdown. If you believe coverage is insufficient to fully answer the query, include a <needs_more_research>comma-separated list of gaps</needs_more_research> tag; omit it entirely if coverage is sufficient.`

// synthesize invokes the planner model to compose a final report from the
// sub-query results, streaming token deltas as synthesis_token progress
// events (§4.6 Stage S).
func (o *Orchestrator) synthesize(ctx context.Context, jobID, query string, pref CostPreference, results []subQueryResult, textDocs []string, structuredData string, progress jobengine.ProgressFunc) (*synthesisOutcome, error) {
	model, err := o.modelFor(ctx, pref, "")
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeDegraded, err, "synthesis model selection failed")
	}

	progress(ctx, models.JobEventSynthesisStart, map[string]any{"model": model})

	findings := formatFindings(results)
	contextWindow := o.contextWindowFor(ctx, model)
	maxTokens := budgetPolicy{minMaxTokens: o.minMaxTokens}.maxTokensFor("synthesis", len(results), len(textDocs), contextWindow)
	available := contextWindow - maxTokens - o.tokens.count(findings) - o.tokens.count(query)
	kept, dropped := truncateDocsToFit(o.tokens, query+findings, textDocs, available)

	var body strings.Builder
	body.WriteString("Original query: ")
	body.WriteString(query)
	body.WriteString("\n\nSub-query findings:\n")
	body.WriteString(findings)
	if structuredData != "" {
		body.WriteString("\n\nStructured data:\n")
		body.WriteString(structuredData)
	}
	for i, d := range kept {
		fmt.Fprintf(&body, "\n\nAttached document %d:\n%s", i+1, d)
	}

	messages := []llmgateway.Message{
		{Role: llmgateway.RoleSystem, Text: synthesisSystemPrompt},
		{Role: llmgateway.RoleUser, Text: body.String()},
	}

	var streamed strings.Builder
	onDelta := func(d llmgateway.Delta) {
		if d.Text == "" {
			return
		}
		streamed.WriteString(d.Text)
		progress(ctx, models.JobEventSynthesisToken, map[string]any{"text": d.Text})
	}

	result, err := o.gateway.ChatCompletion(ctx, model, messages, llmgateway.Options{
		MaxTokens: maxTokens,
		Stream:    true,
	}, onDelta)
	if err != nil {
		progress(ctx, models.JobEventSynthesisError, map[string]any{"error": err.Error()})
		return nil, apierr.Wrap(apierr.CodeUpstreamError, err, "synthesis failed")
	}
	o.recordUsage(ctx, model, jobID, result.Usage)

	text := result.Text
	if text == "" {
		text = streamed.String()
	}

	outcome := &synthesisOutcome{Markdown: text, Usage: result.Usage}
	if m := insufficientCoverageRe.FindStringSubmatch(text); m != nil {
		outcome.NeedsMoreResearch = true
		for _, gap := range strings.Split(m[1], ",") {
			if g := strings.TrimSpace(gap); g != "" {
				outcome.Gaps = append(outcome.Gaps, g)
			}
		}
		outcome.Markdown = strings.TrimSpace(insufficientCoverageRe.ReplaceAllString(text, ""))
	}
	if dropped > 0 {
		progress(ctx, models.JobEventDegraded, map[string]any{"reason": "documents_truncated", "dropped": dropped})
	}
	return outcome, nil
}

func formatFindings(results []subQueryResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. Sub-query: %s\n", i+1, r.SubQuery)
		if r.Err != nil {
			fmt.Fprintf(&b, "   FAILED: %s\n", r.Err.Error())
			continue
		}
		fmt.Fprintf(&b, "   Result (%s): %s\n", r.Model, r.Text)
	}
	return b.String()
}

// failedSubQueries returns the distinct sub-query texts for which every
// ensemble member failed.
func failedSubQueries(results []subQueryResult) []string {
	succeeded := make(map[string]bool)
	attempted := make(map[string]bool)
	for _, r := range results {
		attempted[r.SubQuery] = true
		if r.Err == nil {
			succeeded[r.SubQuery] = true
		}
	}
	var failed []string
	for sq := range attempted {
		if !succeeded[sq] {
			failed = append(failed, sq)
		}
	}
	sort.Strings(failed)
	return failed
}
