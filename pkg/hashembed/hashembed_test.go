package hashembed

import (
	"context"
	"math"
	"testing"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (norm(a) * norm(b))
}

func TestEmbed_DeterministicAndNormalized(t *testing.T) {
	e := New(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "The Eiffel Tower is in Paris.")
	b, _ := e.Embed(ctx, "the eiffel tower is in paris")
	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("case and punctuation should not matter: dim %d %v != %v", i, a[i], b[i])
		}
	}
	if math.Abs(norm(a)-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", norm(a))
	}
}

func TestEmbed_NeverZero(t *testing.T) {
	for _, text := range []string{"", "   ", "!!! ???"} {
		v, err := New(8).Embed(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		if norm(v) == 0 {
			t.Fatalf("zero vector for %q", text)
		}
	}
}

func TestEmbed_OverlapRanksHigher(t *testing.T) {
	e := New(DefaultDimensions)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "where is the eiffel tower")
	near, _ := e.Embed(ctx, "the eiffel tower stands in paris")
	far, _ := e.Embed(ctx, "bananas grow in tropical climates")
	if cosine(q, near) <= cosine(q, far) {
		t.Fatalf("expected related text to score higher: near=%v far=%v", cosine(q, near), cosine(q, far))
	}
}

func TestEmbedBatch(t *testing.T) {
	e := New(0)
	if e.Dimensions() != DefaultDimensions {
		t.Fatalf("expected default dims, got %d", e.Dimensions())
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("EmbedBatch: %v %d", err, len(vecs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Hello, World! 42x")
	want := []string{"hello", "world", "42x"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
