package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
)

// subQueryPlan is a single planned sub-query, optionally tagged with a
// domain hint the planner assigns for model routing in Stage R.
type subQueryPlan struct {
	Text   string
	Domain string
}

var agentTagRe = regexp.MustCompile(`(?is)<agent_(\d+)(?:\s+domain="([a-z0-9_-]+)")?>\s*(.*?)\s*</agent_(\d+)>`)

const planSystemPrompt = `You are a research planner. Decompose the user's query into 3 to 8 independent sub-queries that, taken together, cover the query comprehensively. Respond with ONLY tagged XML in this exact form, nothing else:

<agent_1>first sub-query</agent_1>
<agent_2>second sub-query</agent_2>
...

Optionally add a domain attribute to route a sub-query to a domain-specialized model, e.g. <agent_1 domain="code">...</agent_1>. Do not include any prose before or after the tags.`

const planStrictSystemPrompt = `You are a research planner. Your previous response could not be parsed. Respond with STRICTLY and ONLY the tagged XML below -- no markdown fences, no prose, no explanation:

<agent_1>first sub-query</agent_1>
<agent_2>second sub-query</agent_2>

Produce between 3 and 8 <agent_N> tags covering the query below comprehensively.`

// plan invokes the planning model and parses its tagged-XML response into
// 3-8 sub-queries (§4.6 Stage P). On parse failure it retries once with a
// stricter prompt; two consecutive failures abort with PlanningFailed.
func (o *Orchestrator) plan(ctx context.Context, jobID, query string, pref CostPreference) ([]subQueryPlan, string, error) {
	model, err := o.modelFor(ctx, pref, "")
	if err != nil {
		return nil, "", apierr.Wrap(apierr.CodeDegraded, err, "planning model selection failed")
	}

	sys := planSystemPrompt
	for attempt := 1; attempt <= 2; attempt++ {
		messages := []llmgateway.Message{
			{Role: llmgateway.RoleSystem, Text: sys},
			{Role: llmgateway.RoleUser, Text: query},
		}
		result, err := o.gateway.ChatCompletion(ctx, model, messages, llmgateway.Options{MaxTokens: 1024, Temperature: 0.3}, nil)
		if err != nil {
			if attempt == 2 {
				return nil, model, apierr.Wrap(apierr.CodeUpstreamError, err, "PlanningFailed").WithDetail("reason", "model call failed")
			}
			select {
			case <-time.After(sleepBackoff(attempt)):
			case <-ctx.Done():
				return nil, model, ctx.Err()
			}
			sys = planStrictSystemPrompt
			continue
		}
		o.recordUsage(ctx, model, jobID, result.Usage)

		subQueries, perr := parsePlan(result.Text)
		if perr == nil {
			return subQueries, model, nil
		}
		if attempt == 2 {
			return nil, model, apierr.Wrap(apierr.CodeInvalidParams, perr, "PlanningFailed").WithDetail("reason", "unparseable planner output")
		}
		sys = planStrictSystemPrompt
	}
	return nil, model, apierr.New(apierr.CodeInternal, "PlanningFailed")
}

// parsePlan is the strict extractor: it rejects free-form text, requiring
// at least 3 and at most 8 well-formed <agent_N> tags.
func parsePlan(text string) ([]subQueryPlan, error) {
	matches := agentTagRe.FindAllStringSubmatch(text, -1)
	if len(matches) < 3 || len(matches) > 8 {
		return nil, fmt.Errorf("expected 3-8 <agent_N> tags, found %d", len(matches))
	}
	subQueries := make([]subQueryPlan, 0, len(matches))
	for _, m := range matches {
		if m[1] != m[4] {
			return nil, fmt.Errorf("mismatched closing tag for agent_%s", m[1])
		}
		sq := strings.TrimSpace(m[3])
		if sq == "" {
			return nil, fmt.Errorf("empty sub-query in tag agent_%s", m[1])
		}
		subQueries = append(subQueries, subQueryPlan{Text: sq, Domain: m[2]})
	}
	return subQueries, nil
}
