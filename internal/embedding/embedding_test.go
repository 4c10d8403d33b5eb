package embedding

import (
	"context"
	"math"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(nil, Options{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestEmbedDimensionAndNorm(t *testing.T) {
	svc := newTestService(t)
	vec, err := svc.Embed(context.Background(), ":20:LC123\n:32B:USD100000,00\n:59:BENE\n")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != DefaultDimension {
		t.Fatalf("expected %d dimensions, got %d", DefaultDimension, len(vec))
	}
	if n := Norm(vec); math.Abs(n-1) > 1e-9 {
		t.Errorf("expected unit norm, got %f", n)
	}
}

func TestEmbedEmptyInputIsZero(t *testing.T) {
	svc := newTestService(t)
	vec, err := svc.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if !IsZero(vec) {
		t.Error("embedding of whitespace should be the zero vector")
	}
}

func TestEmbedDeterministic(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)

	va, _ := a.Embed(context.Background(), ":20:LC123\n")
	vb, _ := b.Embed(context.Background(), ":20:LC123\n")
	for i := range va {
		if va[i] != vb[i] {
			t.Fatal("fallback embedding should be deterministic across services")
		}
	}
}

func TestEmbedMarksDegraded(t *testing.T) {
	svc := newTestService(t)
	if svc.Degraded() {
		t.Error("service should not be degraded before the first fallback")
	}
	if _, err := svc.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if !svc.Degraded() {
		t.Error("fallback embedding should mark the service degraded")
	}
}

func TestEmbedDifferentTextsDiffer(t *testing.T) {
	svc := newTestService(t)
	// Cache keys use the first 100 characters, so the difference must sit
	// inside that prefix.
	a, _ := svc.Embed(context.Background(), ":32B:USD100000,00")
	b, _ := svc.Embed(context.Background(), ":71B:CHARGES OUR")
	if c := Cosine(a, b); c > 0.9999 {
		t.Errorf("different texts should not be identical, cosine %f", c)
	}
}

func TestFieldSimilarityPureVariable(t *testing.T) {
	svc := newTestService(t)
	for _, tpl := range []string{"{VARIABLE}", "{X}[Y]", "   "} {
		sim, err := svc.FieldSimilarity(context.Background(), tpl, "ANYTHING")
		if err != nil {
			t.Fatalf("FieldSimilarity failed: %v", err)
		}
		if sim != 0.95 {
			t.Errorf("pure-variable template %q should score 0.95, got %f", tpl, sim)
		}
	}
}

func TestFieldSimilarityBounds(t *testing.T) {
	svc := newTestService(t)
	sim, err := svc.FieldSimilarity(context.Background(), "USD{VARIABLE}", "USD105000,00")
	if err != nil {
		t.Fatalf("FieldSimilarity failed: %v", err)
	}
	if sim < 0 || sim > 1 {
		t.Errorf("similarity out of [0,1]: %f", sim)
	}
}

func TestFieldSimilarityIdenticalFixedContent(t *testing.T) {
	svc := newTestService(t)
	sim, err := svc.FieldSimilarity(context.Background(), "DOCUMENTS AGAINST PAYMENT", "DOCUMENTS AGAINST PAYMENT")
	if err != nil {
		t.Fatalf("FieldSimilarity failed: %v", err)
	}
	if sim < 0.99 {
		t.Errorf("identical fixed content should score ~1, got %f", sim)
	}
}
