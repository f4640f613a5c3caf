package hybridindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

type candidate struct {
	doc      *models.IndexDocument
	bm25     float64
	vector   float64
	hasVec   bool
}

// Search implements §4.4's retrieval pipeline: BM25 over the inverted
// index, vector cosine fusion (skipped and annotated degraded=true if the
// vector path fails), optional LLM rerank over the top 2k, deterministic
// tie-breaking.
func (idx *Index) Search(ctx context.Context, query string, k int, scope Scope) (*SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	queryTerms := tokenize(query, idx.cfg.Stopwords)
	if len(queryTerms) == 0 {
		return &SearchResult{}, nil
	}

	postings, err := idx.repo.Postings(ctx, queryTerms)
	if err != nil {
		return nil, err
	}
	docIDs := map[string]bool{}
	for _, byDoc := range postings {
		for id := range byDoc {
			docIDs[id] = true
		}
	}
	if len(docIDs) == 0 {
		return &SearchResult{}, nil
	}

	totalDocs, err := idx.repo.DocumentCount(ctx)
	if err != nil {
		return nil, err
	}
	avgDocLen, err := idx.repo.AverageDocLength(ctx)
	if err != nil {
		return nil, err
	}
	docFreq := make(map[string]int, len(queryTerms))
	for _, term := range queryTerms {
		docFreq[term] = len(postings[term])
	}

	var queryVec []float32
	degraded := false
	if idx.embedder != nil && idx.embedder.Ready() {
		v, embedErr := idx.embedder.Embed(ctx, query)
		if embedErr != nil {
			degraded = true
		} else {
			queryVec = v
		}
	} else {
		degraded = true
	}

	candidates := make([]*candidate, 0, len(docIDs))
	for id := range docIDs {
		doc, err := idx.repo.GetIndexDocument(ctx, id)
		if err != nil || doc == nil {
			continue
		}
		if scope.Origin != "" && doc.Origin != scope.Origin {
			continue
		}
		docTermFreq := make(map[string]int, len(queryTerms))
		for _, term := range queryTerms {
			if byDoc, ok := postings[term]; ok {
				docTermFreq[term] = byDoc[id]
			}
		}
		bm25 := bm25Score(queryTerms, docTermFreq, float64(doc.TokenCount), docFreq, totalDocs, avgDocLen, idx.cfg.K1, idx.cfg.B)

		c := &candidate{doc: doc, bm25: bm25}
		if !degraded && len(queryVec) > 0 && len(doc.Embedding) > 0 {
			c.vector = cosineSimilarity(queryVec, doc.Embedding)
			c.hasVec = true
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return &SearchResult{Degraded: degraded}, nil
	}

	bm25Vals := make([]float64, len(candidates))
	vecVals := make([]float64, len(candidates))
	for i, c := range candidates {
		bm25Vals[i] = c.bm25
		if c.hasVec {
			vecVals[i] = c.vector
		}
	}
	normBM25 := minMaxNormalize(bm25Vals)
	normVec := minMaxNormalize(vecVals)

	wBM25, wVec := idx.cfg.FusionWeightBM25, idx.cfg.FusionWeightVector
	if degraded {
		wVec = 0
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		fused := wBM25*normBM25[i] + wVec*normVec[i]
		results[i] = Result{
			Document: *c.doc,
			Score: ScoreBreakdown{
				BM25:   c.bm25,
				Vector: c.vector,
				Fused:  fused,
			},
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return lessResult(results[j], results[i]) // descending: j < i means i ranks first
	})

	reranked := false
	if idx.cfg.RerankEnabled && idx.llm != nil {
		window := 2 * k
		if window > len(results) {
			window = len(results)
		}
		if rerankedSlice, ok := idx.rerank(ctx, query, results[:window]); ok {
			copy(results[:window], rerankedSlice)
			reranked = true
		}
	}

	if k < len(results) {
		results = results[:k]
	}
	return &SearchResult{Results: results, Degraded: degraded, Reranked: reranked}, nil
}

// lessResult reports whether a ranks below b: the higher fused score wins,
// and equal fused scores use the deterministic tie-break of higher BM25,
// then newer document, then smaller id.
func lessResult(a, b Result) bool {
	if a.Score.Fused != b.Score.Fused {
		return a.Score.Fused < b.Score.Fused
	}
	if a.Score.BM25 != b.Score.BM25 {
		return a.Score.BM25 < b.Score.BM25
	}
	if !a.Document.CreatedAt.Equal(b.Document.CreatedAt) {
		return a.Document.CreatedAt.Before(b.Document.CreatedAt)
	}
	return a.Document.ID > b.Document.ID
}

// rerank asks the configured LLM to score the fused top-window candidates
// for relevance to query, grounded on the pack's "rank candidates 0-10,
// parse a JSON array of {index, score}, fall back to the prior ordering on
// any failure" reranking pattern. Returns ok=false (falling back to the
// fused ordering, never erroring the whole search) on any LLM or parse
// failure.
func (idx *Index) rerank(ctx context.Context, query string, window []Result) ([]Result, bool) {
	var sb strings.Builder
	for i, r := range window {
		preview := r.Document.Body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		fmt.Fprintf(&sb, "%d. %s: %s\n", i, r.Document.Title, preview)
	}
	prompt := fmt.Sprintf(`Given the search query: %q

Rank the following documents by relevance (0-10, 10 most relevant).

Documents:
%s
Respond with a JSON array only: [{"index": 0, "score": 8}, ...], ordered by score descending.`, query, sb.String())

	result, err := idx.llm.ChatCompletion(ctx, idx.rerankModel, []llmgateway.Message{
		{Role: llmgateway.RoleUser, Text: prompt},
	}, llmgateway.Options{MaxTokens: 1024}, nil)
	if err != nil {
		return nil, false
	}

	type rankScore struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	var scores []rankScore
	if err := json.Unmarshal([]byte(extractJSONArray(result.Text)), &scores); err != nil {
		return nil, false
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	reordered := make([]Result, 0, len(window))
	seen := make(map[int]bool, len(window))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(window) || seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		r := window[s.Index]
		r.Score.Reranked = true
		r.Score.RerankRank = len(reordered)
		reordered = append(reordered, r)
	}
	if len(reordered) != len(window) {
		return nil, false
	}
	return reordered, true
}

// extractJSONArray trims any leading/trailing prose a model adds around
// the JSON array it was asked for.
func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
