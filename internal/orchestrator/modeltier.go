package orchestrator

import (
	"context"
	"sort"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
)

// tierModels returns the catalog partitioned into three price terciles
// (cheapest first), used to resolve a CostPreference to a concrete model
// pool. A catalog of fewer than 3 models collapses the terciles so every
// tier still resolves to something.
func tierModels(catalog []llmgateway.ModelDescriptor) (veryLow, low, high []llmgateway.ModelDescriptor) {
	sorted := append([]llmgateway.ModelDescriptor(nil), catalog...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InputPricePerMTok < sorted[j].InputPricePerMTok })

	n := len(sorted)
	switch {
	case n == 0:
		return nil, nil, nil
	case n == 1:
		return sorted, sorted, sorted
	case n == 2:
		return sorted[:1], sorted[:1], sorted[1:]
	default:
		third := n / 3
		if third == 0 {
			third = 1
		}
		return sorted[:third], sorted[third : n-third], sorted[n-third:]
	}
}

// selectModel resolves a (costPreference, domain) pair to a single model
// ID, preferring a domain match within the tier and falling back to the
// cheapest tier member if none is tagged for the domain.
func selectModel(catalog []llmgateway.ModelDescriptor, pref CostPreference, domain string) (string, error) {
	veryLow, low, high := tierModels(catalog)
	var pool []llmgateway.ModelDescriptor
	switch pref {
	case CostHigh:
		pool = high
	case CostVeryLow:
		pool = veryLow
	default:
		pool = low
	}
	if len(pool) == 0 {
		return "", apierr.New(apierr.CodeDegraded, "no model available for requested cost preference")
	}
	for _, m := range pool {
		if m.SupportsDomain(domain) {
			return m.ID, nil
		}
	}
	return pool[0].ID, nil
}

func (o *Orchestrator) modelFor(ctx context.Context, pref CostPreference, domain string) (string, error) {
	catalog, err := o.gateway.ListModels(ctx, false)
	if err != nil {
		return "", err
	}
	return selectModel(catalog, pref, domain)
}

// contextWindowFor looks up a model's context window from the catalog,
// falling back to a conservative default if the model isn't found (a
// fake/test gateway, or a catalog refresh race).
func (o *Orchestrator) contextWindowFor(ctx context.Context, model string) int {
	catalog, err := o.gateway.ListModels(ctx, false)
	if err != nil {
		return 100000
	}
	for _, m := range catalog {
		if m.ID == model && m.ContextWindow > 0 {
			return m.ContextWindow
		}
	}
	return 100000
}
