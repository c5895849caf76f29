package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/nexusmem/memengine/infrastructure/ratelimit"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider(768)
	v1, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	v2, _ := p.Embed(context.Background(), "hello world")

	if len(v1) != 768 {
		t.Fatalf("len(v1) = %d, want 768", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("Embed() not deterministic at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestLocalProvider_DifferentTextDifferentVector(t *testing.T) {
	p := NewLocalProvider(384)
	v1, _ := p.Embed(context.Background(), "alpha")
	v2, _ := p.Embed(context.Background(), "beta")

	same := true
	for i := range v1 {
		if v1[i] != v2[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different text to produce different embeddings")
	}
}

func TestClient_DedupCache(t *testing.T) {
	calls := 0
	provider := &countingProvider{dim: 384, onCall: func() { calls++ }}
	c := New(provider, ratelimit.DefaultConfig(), time.Second, time.Minute)

	c.Embed(context.Background(), "same text")
	c.Embed(context.Background(), "same text")

	if calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call should hit dedup cache)", calls)
	}
}

type countingProvider struct {
	dim    int
	onCall func()
}

func (p *countingProvider) Dimension() int { return p.dim }

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.onCall()
	return make([]float32, p.dim), nil
}
