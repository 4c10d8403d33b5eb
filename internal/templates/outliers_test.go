package templates

import (
	"fmt"
	"testing"
)

func uniformCluster(n int) ([]string, map[string][]float64) {
	ids := make([]string, n)
	structural := make(map[string][]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("m%d", i)
		structural[ids[i]] = []float64{1, 0, 0.5}
	}
	return ids, structural
}

func TestFilterOutliersSmallClusterUntouched(t *testing.T) {
	ids, structural := uniformCluster(3)
	kept := filterOutliers(ids, structural, 3)
	if len(kept) != 3 {
		t.Fatalf("clusters at minSize must pass through untouched, got %d", len(kept))
	}
}

func TestFilterOutliersUniformClusterKept(t *testing.T) {
	ids, structural := uniformCluster(8)
	kept := filterOutliers(ids, structural, 3)
	if len(kept) != 8 {
		t.Fatalf("a uniform cluster has no outliers, got %d of 8", len(kept))
	}
}

func TestFilterOutliersDropsOddOneOut(t *testing.T) {
	ids, structural := uniformCluster(7)
	ids = append(ids, "outlier")
	structural["outlier"] = []float64{0, 1, 0}

	kept := filterOutliers(ids, structural, 3)
	if len(kept) != 7 {
		t.Fatalf("expected the outlier removed, kept %d", len(kept))
	}
	for _, id := range kept {
		if id == "outlier" {
			t.Fatal("outlier survived the filter")
		}
	}
}

func TestFilterOutliersNeverShrinksBelowMinSize(t *testing.T) {
	// Three spread-out points plus one tight pair: aggressive rules would
	// leave fewer than minSize, so the cluster must be kept whole.
	ids := []string{"a", "b", "c", "d"}
	structural := map[string][]float64{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
		"d": {1, 1, 1},
	}
	kept := filterOutliers(ids, structural, 4)
	if len(kept) != 4 {
		t.Fatalf("filter must not shrink a cluster below minSize, kept %d", len(kept))
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	if q := quantile(values, 0); q != 1 {
		t.Errorf("q0 should be the minimum, got %f", q)
	}
	if q := quantile(values, 1); q != 4 {
		t.Errorf("q1 should be the maximum, got %f", q)
	}
	if q := quantile(values, 0.5); q != 2.5 {
		t.Errorf("median of 1..4 should interpolate to 2.5, got %f", q)
	}
}
