package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// Run implements jobengine.Handler: it drives the full plan -> research ->
// synthesize pipeline, with iterative refinement, for a single research
// job (§4.6).
func (o *Orchestrator) Run(ctx context.Context, job *models.Job, progress jobengine.ProgressFunc) (string, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.ParamsJSON), &input); err != nil {
		return "", apierr.Wrap(apierr.CodeInvalidParams, err, "invalid research job params")
	}
	if input.Query == "" {
		return "", apierr.New(apierr.CodeInvalidParams, "query is required")
	}
	pref := input.CostPreference
	if pref == "" {
		pref = CostLow
	}
	maxIterations := o.clampIterations(input.MaxIterations)
	ensembleSize := o.clampEnsemble(input.EnsembleSize)

	allResults := make([]subQueryResult, 0)
	gaps := input.Query
	iteration := 0
	var lastOutcome *synthesisOutcome
	var usedModels = map[string]bool{}

	for {
		iteration++
		subQueries, planModel, err := o.plan(ctx, job.ID, gaps, pref)
		if err != nil {
			return "", err
		}
		usedModels[planModel] = true
		progress(ctx, models.JobEventPlanComplete, map[string]any{"sub_query_count": len(subQueries), "iteration": iteration})

		passResults := o.research(ctx, job.ID, subQueries, pref, ensembleSize, input.Images, progress)
		allResults = append(allResults, passResults...)
		for _, r := range passResults {
			if r.Err == nil {
				usedModels[r.Model] = true
			}
		}

		if !anySucceeded(passResults) && iteration == 1 {
			return "", apierr.New(apierr.CodeUpstreamError, "all sub-queries failed; synthesis skipped")
		}

		outcome, err := o.synthesize(ctx, job.ID, input.Query, pref, allResults, input.TextDocuments, input.StructuredData, progress)
		if err != nil {
			return "", err
		}
		lastOutcome = outcome

		if !outcome.NeedsMoreResearch || iteration >= maxIterations {
			break
		}
		gaps = input.Query + "\n\nFocus additional research on these gaps: " + joinGaps(outcome.Gaps)
	}

	failed := failedSubQueries(allResults)
	confidence := confidenceScore(allResults, failed)

	report := &models.Report{
		Query:    input.Query,
		OutputMD: lastOutcome.Markdown,
		Sources:  collectSources(allResults, input.IncludeSources),
		Metadata: models.ReportMetadata{
			Plan:             subQueryTexts(allResults),
			Iterations:       iteration,
			EnsembleModels:   modelKeys(usedModels),
			TokensInput:      sumTokens(allResults, true),
			TokensOutput:     sumTokens(allResults, false),
			Confidence:       confidence,
			FailedSubQueries: failed,
		},
		CreatedAt: time.Now(),
	}
	if o.embedder != nil {
		if vec, err := o.embedder.Embed(ctx, input.Query+"\n\n"+lastOutcome.Markdown); err == nil {
			report.Embedding = vec
		}
	}

	reportID, err := o.reports.UpsertReport(ctx, report)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeStorageUnavailable, err, "failed to persist report")
	}
	progress(ctx, models.JobEventReportSaved, map[string]any{"report_id": reportID})

	if o.index != nil {
		_ = o.index.IndexDocuments(ctx, []*models.IndexDocument{{
			ID:     ulid.Make().String(),
			Origin: models.DocOriginReport,
			Title:  input.Query,
			Body:   lastOutcome.Markdown,
		}})
	}

	out := Output{
		ReportID:         reportID,
		Query:            input.Query,
		OutputMD:         lastOutcome.Markdown,
		Sources:          report.Sources,
		Iterations:       iteration,
		Confidence:       confidence,
		FailedSubQueries: failed,
	}
	resultJSON, err := json.Marshal(out)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeInternal, err, "failed to marshal research result")
	}
	return string(resultJSON), nil
}

func anySucceeded(results []subQueryResult) bool {
	for _, r := range results {
		if r.Err == nil {
			return true
		}
	}
	return false
}

func joinGaps(gaps []string) string {
	out := ""
	for i, g := range gaps {
		if i > 0 {
			out += "; "
		}
		out += g
	}
	return out
}

func subQueryTexts(results []subQueryResult) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if !seen[r.SubQuery] {
			seen[r.SubQuery] = true
			out = append(out, r.SubQuery)
		}
	}
	return out
}

func modelKeys(m map[string]bool) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func collectSources(results []subQueryResult, include bool) []string {
	if !include {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if r.Err != nil || r.Model == "" {
			continue
		}
		if !seen[r.Model] {
			seen[r.Model] = true
			out = append(out, r.Model)
		}
	}
	return out
}

func sumTokens(results []subQueryResult, input bool) int {
	total := 0
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if input {
			total += r.Usage.PromptTokens
		} else {
			total += r.Usage.CompletionTokens
		}
	}
	return total
}

// confidenceScore is a simple ratio of successful distinct sub-queries to
// total distinct sub-queries attempted across all iterations.
func confidenceScore(results []subQueryResult, failed []string) float64 {
	total := subQueryTexts(results)
	if len(total) == 0 {
		return 0
	}
	return 1 - float64(len(failed))/float64(len(total))
}
