package orchestrator

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates prompt token counts with tiktoken's cl100k_base
// encoding, a close approximation for Claude-family models, falling back
// to a char/4 heuristic if the encoder can't be loaded (no network access
// to fetch its vocabulary file, for instance).
type tokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenCounter{encoder: nil}
	}
	return &tokenCounter{encoder: enc}
}

func (tc *tokenCounter) count(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

func (tc *tokenCounter) countAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += tc.count(t)
	}
	return total
}

// budgetPolicy maps (stage, sub-query count, document count) to a
// maxTokens ceiling per call (§4.6 "Token budgeting"), bounded below by
// minMaxTokens and above by the model's own context window.
type budgetPolicy struct {
	minMaxTokens int
}

// maxTokensFor returns the per-call output token ceiling for a stage.
// Synthesis gets a larger allotment than a single research sub-query,
// scaled down as the sub-query/document fan-out grows so that the
// aggregate estimated input for the stage stays within contextWindow.
func (p budgetPolicy) maxTokensFor(stage string, subQueryCount, docCount, contextWindow int) int {
	base := 1024
	if stage == "synthesis" {
		base = 4096
	}
	// Every extra sub-query or document competes for the same context
	// window budget; shrink the per-call output allotment as fan-out grows,
	// never below the configured floor.
	fanOut := 1 + subQueryCount/4 + docCount/4
	maxTokens := base / fanOut
	if maxTokens < p.minMaxTokens {
		maxTokens = p.minMaxTokens
	}
	ceiling := contextWindow / 4
	if ceiling > 0 && maxTokens > ceiling {
		maxTokens = ceiling
	}
	return maxTokens
}

// truncateDocsToFit drops the lowest-salience (last) documents first
// until the estimated total input fits within availableTokens, per
// §4.6's "reduce the number of attached documents (lowest-salience
// first) before reducing instructions." Returns the documents kept and
// how many were dropped.
func truncateDocsToFit(tc *tokenCounter, instructions string, docs []string, availableTokens int) (kept []string, dropped int) {
	instructionTokens := tc.count(instructions)
	budget := availableTokens - instructionTokens
	if budget < 0 {
		budget = 0
	}
	used := 0
	for _, d := range docs {
		t := tc.count(d)
		if used+t > budget {
			dropped = len(docs) - len(kept)
			break
		}
		used += t
		kept = append(kept, d)
	}
	return kept, dropped
}
