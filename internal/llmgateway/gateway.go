package llmgateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
	"github.com/wheattoast11/deepresearch-mcp/internal/config"
)

// gateway is the concrete Gateway implementation: one Anthropic backend
// today, a per-model circuit breaker (gobreaker), a TTL-cached static model
// catalog, and the retry policy from backoff.go.
type gateway struct {
	backend *anthropicBackend
	retry   retryPolicy
	logger  *slog.Logger

	visionAllowlist []string

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	catalogMu      sync.Mutex
	catalog        []ModelDescriptor
	catalogAt      time.Time
	catalogTTL     time.Duration
}

// NewGateway wires a Gateway from configuration, grounded on the teacher's
// NewRegistry(cfg, logger) constructor shape.
func NewGateway(cfg *config.Config, logger *slog.Logger) Gateway {
	return &gateway{
		backend:         newAnthropicBackend(cfg.ServiceAnthropicKey),
		retry:           defaultRetryPolicy(),
		logger:          logger,
		visionAllowlist: cfg.VisionModelAllowlist,
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
		catalogTTL:      cfg.ModelCatalogTTL,
	}
}

func (g *gateway) breakerFor(model string) *gobreaker.CircuitBreaker {
	g.breakersMu.Lock()
	defer g.breakersMu.Unlock()
	if cb, ok := g.breakers[model]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if g.logger != nil {
				g.logger.Warn("llm gateway circuit breaker state change", "model", name, "from", from.String(), "to", to.String())
			}
		},
	})
	g.breakers[model] = cb
	return cb
}

func (g *gateway) ChatCompletion(ctx context.Context, model string, messages []Message, opts Options, onDelta func(Delta)) (*ChatResult, error) {
	cb := g.breakerFor(model)

	// Streaming calls emit deltas to the caller as they arrive, so a retry
	// after partial output would double-emit; they get a single attempt
	// through the breaker instead of the full retry policy.
	if opts.Stream {
		raw, cbErr := cb.Execute(func() (any, error) {
			return g.backend.stream(ctx, model, messages, opts, onDelta)
		})
		if cbErr != nil {
			return nil, apierr.Wrap(apierr.CodeUpstreamError, cbErr, "streaming chat completion failed").WithDetail("model", model)
		}
		return raw.(*ChatResult), nil
	}

	var result *ChatResult
	err := g.retry.do(ctx, func(attempt int) classification {
		raw, cbErr := cb.Execute(func() (any, error) {
			return g.backend.complete(ctx, model, messages, opts)
		})
		if cbErr != nil {
			if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
				return classification{err: ErrCircuitOpen, retryable: false}
			}
			return anthropicClassification(cbErr)
		}
		result = raw.(*ChatResult)
		return classification{}
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeUpstreamError, err, "chat completion failed").WithDetail("model", model)
	}
	return result, nil
}

// staticCatalog is the compiled-in model catalog that ListModels always
// serves; no live catalog endpoint is queried and the entries do not come
// from configuration, so a refresh reloads this same list.
func staticCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{ID: "claude-opus-4-1-20250805", Provider: "anthropic", Modalities: []Modality{ModalityText, ModalityImage}, ContextWindow: 200000, InputPricePerMTok: 15, OutputPricePerMTok: 75, Domains: []string{"general", "research", "code"}},
		{ID: "claude-sonnet-4-5-20250929", Provider: "anthropic", Modalities: []Modality{ModalityText, ModalityImage}, ContextWindow: 200000, InputPricePerMTok: 3, OutputPricePerMTok: 15, Domains: []string{"general", "code"}},
		{ID: "claude-3-5-haiku-20241022", Provider: "anthropic", Modalities: []Modality{ModalityText}, ContextWindow: 200000, InputPricePerMTok: 0.8, OutputPricePerMTok: 4, Domains: []string{"general"}},
	}
}

func (g *gateway) ListModels(ctx context.Context, refresh bool) ([]ModelDescriptor, error) {
	g.catalogMu.Lock()
	defer g.catalogMu.Unlock()

	fresh := g.catalogTTL > 0 && time.Since(g.catalogAt) < g.catalogTTL
	if !refresh && fresh && g.catalog != nil {
		return g.catalog, nil
	}

	g.catalog = staticCatalog()
	g.catalogAt = time.Now()
	return g.catalog, nil
}

// SelectVisionModel implements §4.3: first available from preferred, else
// the lowest-priced model whose modalities include image.
func (g *gateway) SelectVisionModel(ctx context.Context, preferred []string) (string, error) {
	models, err := g.ListModels(ctx, false)
	if err != nil {
		return "", err
	}
	byID := make(map[string]ModelDescriptor, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	for _, id := range preferred {
		if m, ok := byID[id]; ok && m.SupportsImage() {
			return m.ID, nil
		}
	}
	for _, id := range g.visionAllowlist {
		if m, ok := byID[id]; ok && m.SupportsImage() {
			return m.ID, nil
		}
	}

	var candidates []ModelDescriptor
	for _, m := range models {
		if m.SupportsImage() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", apierr.New(apierr.CodeDegraded, "no vision-capable model available")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].InputPricePerMTok < candidates[j].InputPricePerMTok })
	return candidates[0].ID, nil
}
