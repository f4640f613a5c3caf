// Package embedding is the Embedding Provider (C2): it turns text into
// fixed-dimension dense vectors for the hybrid index's vector path and for
// report similarity search, and reports readiness so callers can degrade to
// a BM25-only path while the provider is still warming up.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Provider produces embeddings for text, reporting readiness separately from
// the embedding call itself so callers can probe state without paying for a
// vector computation (§4.2).
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Ready() bool
	Dimension() int
}

// ErrNotReady is returned by Embed/EmbedBatch while the provider is still
// initializing. Callers MUST treat this as a degrade signal, not a failure:
// the hybrid index falls back to its BM25-only path and the orchestrator
// skips semantic report-similarity lookups.
var ErrNotReady = newNotReadyError()

type notReadyError struct{}

func newNotReadyError() error { return &notReadyError{} }

func (*notReadyError) Error() string { return "embedding: provider not ready" }

// localProvider is a deterministic, dependency-free fallback embedder. It
// hashes n-grams of the input into a fixed-width vector and L2-normalizes
// the result, so cosine similarity reduces to inner product per §4.2's
// unit-norm recommendation. It has no real semantic content — it exists so
// the hybrid index and report-similarity paths always have something to
// call even when no external embedding runtime is configured, and so the
// provider's readiness transition (cold -> ready) is itself observable and
// testable without a live model dependency.
type localProvider struct {
	dimension int
	ready     atomic.Bool
}

// NewLocalProvider constructs a deterministic local embedder of the given
// dimension. It reports Ready() immediately; NewWarmingLocalProvider is the
// variant that starts not-ready.
func NewLocalProvider(dimension int) Provider {
	p := &localProvider{dimension: dimension}
	p.ready.Store(true)
	return p
}

// NewWarmingLocalProvider constructs a local embedder that reports NotReady
// until the returned function is called, modeling the asynchronous initialization
// window §4.2 describes (seconds to tens of seconds for a real runtime).
func NewWarmingLocalProvider(dimension int) (*localProvider, func()) {
	p := &localProvider{dimension: dimension}
	return p, func() { p.ready.Store(true) }
}

func (p *localProvider) Ready() bool    { return p.ready.Load() }
func (p *localProvider) Dimension() int { return p.dimension }

func (p *localProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	return hashEmbed(text, p.dimension), nil
}

func (p *localProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, p.dimension)
	}
	return out, nil
}

// hashEmbed deterministically maps text to a unit-norm vector by hashing
// overlapping trigrams into buckets and accumulating signed counts, the
// same "feature hashing" trick used by several of the pack's local-fallback
// embedders. Identical input always yields an identical vector.
func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	if dim == 0 || text == "" {
		return vec
	}
	runes := []rune(text)
	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	if n == 0 {
		return vec
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		sum := sha256.Sum256([]byte(gram))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(dim)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
