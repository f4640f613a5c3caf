package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// research runs Stage R: for each sub-query, an ensemble of ensembleSize
// model calls, all bounded by a single semaphore of width o.parallelism
// across the whole sub-query x ensemble fan-out (§4.6 Stage R).
func (o *Orchestrator) research(ctx context.Context, jobID string, subQueries []subQueryPlan, pref CostPreference, ensembleSize int, images []ImageInput, progress jobengine.ProgressFunc) []subQueryResult {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	var mu sync.Mutex
	results := make([]subQueryResult, 0, len(subQueries)*ensembleSize)

	visionModel := ""
	needsVision := len(images) > 0
	if needsVision {
		if m, err := o.gateway.SelectVisionModel(ctx, o.visionAllowlist); err == nil {
			visionModel = m
		} else {
			progress(ctx, models.JobEventDegraded, map[string]any{"reason": "no_vision_model"})
		}
	}

	for _, sq := range subQueries {
		sq := sq
		progress(ctx, models.JobEventAgentStarted, map[string]any{"sub_query": sq.Text, "domain": sq.Domain})

		for member := 0; member < ensembleSize; member++ {
			member := member
			g.Go(func() error {
				res := o.runEnsembleMember(gCtx, jobID, sq, pref, member, visionModel, needsVision, images)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()

				if res.Err != nil {
					progress(ctx, models.JobEventAgentCompleted, map[string]any{"sub_query": sq.Text, "status": "failure", "error": res.Err.Error()})
				} else {
					progress(ctx, models.JobEventAgentCompleted, map[string]any{"sub_query": sq.Text, "status": "success", "model": res.Model})
					progress(ctx, models.JobEventAgentUsage, map[string]any{
						"sub_query":         sq.Text,
						"model":             res.Model,
						"prompt_tokens":     res.Usage.PromptTokens,
						"completion_tokens": res.Usage.CompletionTokens,
					})
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) runEnsembleMember(ctx context.Context, jobID string, sq subQueryPlan, pref CostPreference, member int, visionModel string, needsVision bool, images []ImageInput) subQueryResult {
	model := visionModel
	var err error
	if model == "" {
		model, err = o.modelFor(ctx, pref, sq.Domain)
		if err != nil {
			return subQueryResult{SubQuery: sq.Text, Domain: sq.Domain, Err: err}
		}
	}

	msg := llmgateway.Message{
		Role: llmgateway.RoleUser,
		Text: sq.Text,
	}
	// Images are only attached when a vision-capable model was actually
	// resolved; otherwise they're stripped and reasoning continues text-only.
	if needsVision && visionModel != "" {
		for _, img := range images {
			msg.Images = append(msg.Images, llmgateway.ImagePart{MediaType: img.MediaType, Data: img.Data})
		}
	}

	// Ensemble diversity comes from temperature spread across members
	// rather than distinct models, since the static catalog carries one
	// model per cost tier.
	temperature := 0.2 + 0.2*float64(member%4)
	maxTokens := budgetPolicy{minMaxTokens: o.minMaxTokens}.maxTokensFor("research", 1, 0, o.contextWindowFor(ctx, model))

	result, cerr := o.gateway.ChatCompletion(ctx, model, []llmgateway.Message{msg}, llmgateway.Options{
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, nil)
	if cerr != nil {
		return subQueryResult{SubQuery: sq.Text, Domain: sq.Domain, Model: model, Err: fmt.Errorf("ensemble member %d: %w", member, cerr)}
	}
	o.recordUsage(ctx, model, jobID, result.Usage)
	return subQueryResult{SubQuery: sq.Text, Domain: sq.Domain, Model: model, Text: result.Text, Usage: result.Usage}
}
