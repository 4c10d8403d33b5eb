package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"mtmatch/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	vs, err := NewSQLiteStore(db, 4)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return vs
}

func unit(xs ...float64) []float64 {
	var norm float64
	for _, x := range xs {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x / norm
	}
	return out
}

func TestPutGetRoundTrip(t *testing.T) {
	vs := newTestStore(t)
	ctx := context.Background()

	in := core.VectorEmbedding{
		ID:             "msg-1",
		DocType:        core.DocMessage,
		Embedding:      unit(1, 2, 3, 4),
		ContentPreview: ":20:LC123",
	}
	if err := vs.Put(ctx, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := vs.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.DocType != core.DocMessage || out.ContentPreview != ":20:LC123" {
		t.Errorf("metadata lost in round trip: %+v", out)
	}
	for i := range in.Embedding {
		// float32 storage loses precision beyond ~1e-7.
		if math.Abs(out.Embedding[i]-in.Embedding[i]) > 1e-6 {
			t.Fatalf("embedding changed at %d: %f vs %f", i, in.Embedding[i], out.Embedding[i])
		}
	}
}

func TestPutRejectsZeroVector(t *testing.T) {
	vs := newTestStore(t)
	err := vs.Put(context.Background(), core.VectorEmbedding{
		ID:        "zero",
		DocType:   core.DocMessage,
		Embedding: []float64{0, 0, 0, 0},
	})
	if !errors.Is(err, ErrZeroVector) {
		t.Fatalf("expected ErrZeroVector, got %v", err)
	}
	if _, err := vs.Get(context.Background(), "zero"); !errors.Is(err, ErrNotFound) {
		t.Error("rejected vector should not be stored")
	}
}

func TestGetNotFound(t *testing.T) {
	vs := newTestStore(t)
	if _, err := vs.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	vs := newTestStore(t)
	ctx := context.Background()
	if err := vs.Put(ctx, core.VectorEmbedding{ID: "d1", DocType: core.DocMessage, Embedding: unit(1, 0, 0, 0)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vs.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := vs.Delete(ctx, "d1"); err != nil {
		t.Fatalf("deleting an absent id should be a no-op, got %v", err)
	}
}

func TestTopKRanking(t *testing.T) {
	vs := newTestStore(t)
	ctx := context.Background()

	query := unit(1, 0, 0, 0)
	fixtures := map[string][]float64{
		"exact": unit(1, 0, 0, 0),
		"close": unit(1, 0.2, 0, 0),
		"far":   unit(0, 1, 0, 0),
		"mid":   unit(1, 1, 0, 0),
	}
	for id, vec := range fixtures {
		if err := vs.Put(ctx, core.VectorEmbedding{ID: id, DocType: core.DocMessage, Embedding: vec}); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}
	// A template vector must not leak into MESSAGE queries.
	if err := vs.Put(ctx, core.VectorEmbedding{ID: "tpl", DocType: core.DocTemplate, Embedding: query}); err != nil {
		t.Fatalf("Put(tpl) failed: %v", err)
	}

	matches, err := vs.TopK(ctx, query, core.DocMessage, 3)
	if err != nil {
		t.Fatalf("TopK failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	wantOrder := []string{"exact", "close", "mid"}
	for i, want := range wantOrder {
		if matches[i].ID != want {
			t.Fatalf("rank %d: expected %s, got %s (similarity %f)", i, want, matches[i].ID, matches[i].Similarity)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Error("matches should be sorted by descending similarity")
		}
	}
}

func TestUpdateCluster(t *testing.T) {
	vs := newTestStore(t)
	ctx := context.Background()
	if err := vs.Put(ctx, core.VectorEmbedding{ID: "c1", DocType: core.DocMessage, Embedding: unit(1, 0, 0, 0)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vs.UpdateCluster(ctx, "c1", "cluster-9"); err != nil {
		t.Fatalf("UpdateCluster failed: %v", err)
	}
	got, err := vs.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ClusterID != "cluster-9" {
		t.Errorf("expected cluster-9, got %q", got.ClusterID)
	}

	members, err := vs.ListByCluster(ctx, "cluster-9")
	if err != nil {
		t.Fatalf("ListByCluster failed: %v", err)
	}
	if len(members) != 1 || members[0].ID != "c1" {
		t.Errorf("expected [c1], got %v", members)
	}
}

func TestUpdateClusterNotFound(t *testing.T) {
	vs := newTestStore(t)
	if err := vs.UpdateCluster(context.Background(), "ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountByDocType(t *testing.T) {
	vs := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2"} {
		if err := vs.Put(ctx, core.VectorEmbedding{ID: id, DocType: core.DocMessage, Embedding: unit(1, 0, 0, 1)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	n, err := vs.Count(ctx, core.DocMessage)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 MESSAGE vectors, got %d", n)
	}
	n, err = vs.Count(ctx, core.DocTemplate)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 TEMPLATE vectors, got %d", n)
	}
}
