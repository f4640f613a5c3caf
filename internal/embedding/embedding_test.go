package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestLocalProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewLocalProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "deep research orchestration")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := p.Embed(ctx, "deep research orchestration")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("len(a) = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}

	var sumSq float64
	for _, v := range a {
		sumSq += float64(v) * float64(v)
	}
	if sumSq < 0.99 || sumSq > 1.01 {
		t.Errorf("embedding not unit-norm: sum of squares = %f", sumSq)
	}
}

func TestLocalProvider_DistinctTextsDiffer(t *testing.T) {
	p := NewLocalProvider(64)
	ctx := context.Background()

	a, _ := p.Embed(ctx, "hybrid retrieval engine")
	b, _ := p.Embed(ctx, "completely unrelated content")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected distinct texts to produce distinct embeddings")
	}
}

func TestLocalProvider_EmbedBatch(t *testing.T) {
	p := NewLocalProvider(32)
	ctx := context.Background()

	vecs, err := p.EmbedBatch(ctx, []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
	single, _ := p.Embed(ctx, "two")
	for i := range single {
		if single[i] != vecs[1][i] {
			t.Error("EmbedBatch result diverged from individual Embed for the same text")
			break
		}
	}
}

func TestWarmingProvider_NotReadyUntilMarked(t *testing.T) {
	p, markReady := NewWarmingLocalProvider(16)
	ctx := context.Background()

	if p.Ready() {
		t.Fatal("expected provider to start not-ready")
	}
	if _, err := p.Embed(ctx, "anything"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Embed() error = %v, want ErrNotReady", err)
	}
	if _, err := p.EmbedBatch(ctx, []string{"anything"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("EmbedBatch() error = %v, want ErrNotReady", err)
	}

	markReady()
	if !p.Ready() {
		t.Fatal("expected provider to report ready after markReady()")
	}
	if _, err := p.Embed(ctx, "anything"); err != nil {
		t.Fatalf("Embed() after ready, error = %v", err)
	}
}

func TestLocalProvider_EmptyTextIsZeroVector(t *testing.T) {
	p := NewLocalProvider(8)
	vec, err := p.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func TestNewCachedProvider_NilRedisReturnsInner(t *testing.T) {
	inner := NewLocalProvider(8)
	wrapped := NewCachedProvider(inner, nil, 0, nil)
	if wrapped != inner {
		t.Error("expected NewCachedProvider with nil rdb to return the inner provider unwrapped")
	}
}
