package clustering

import (
	"fmt"
	"testing"
)

// separatedVectors builds two tight groups around orthogonal axes.
func separatedVectors() map[string][]float64 {
	vecs := make(map[string][]float64)
	for i := 0; i < 6; i++ {
		jitter := float64(i) * 0.01
		vecs[fmt.Sprintf("a%d", i)] = []float64{1, jitter, 0, 0}
		vecs[fmt.Sprintf("b%d", i)] = []float64{0, 0, 1, jitter}
	}
	return vecs
}

func clusterOf(clusters map[int][]string, id string) (int, bool) {
	for idx, members := range clusters {
		for _, m := range members {
			if m == id {
				return idx, true
			}
		}
	}
	return 0, false
}

func TestClusterSeparatedGroups(t *testing.T) {
	engine := NewEngine(DefaultConfig(), 42)
	clusters, err := engine.Cluster(separatedVectors())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	aCluster, _ := clusterOf(clusters, "a0")
	bCluster, _ := clusterOf(clusters, "b0")
	if aCluster == bCluster {
		t.Fatal("the two groups should land in different clusters")
	}
	for i := 0; i < 6; i++ {
		if c, _ := clusterOf(clusters, fmt.Sprintf("a%d", i)); c != aCluster {
			t.Errorf("a%d escaped its group", i)
		}
		if c, _ := clusterOf(clusters, fmt.Sprintf("b%d", i)); c != bCluster {
			t.Errorf("b%d escaped its group", i)
		}
	}
}

func TestClusterHomogeneousBlobStaysTogether(t *testing.T) {
	// Near-duplicate messages: one shared direction plus a small independent
	// per-point offset, so all pairwise distances are equal and no split can
	// beat any other.
	vecs := make(map[string][]float64)
	for i := 0; i < 10; i++ {
		v := make([]float64, 11)
		v[0] = 1
		v[i+1] = 0.01
		vecs[fmt.Sprintf("m%d", i)] = v
	}

	engine := NewEngine(DefaultConfig(), 42)
	clusters, err := engine.Cluster(vecs)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("a structureless blob should stay in one cluster, got %d", len(clusters))
	}
	for _, members := range clusters {
		if len(members) != 10 {
			t.Errorf("expected all 10 members together, got %d", len(members))
		}
	}
}

func TestClusterFewerPointsThanMinClusters(t *testing.T) {
	engine := NewEngine(DefaultConfig(), 1)
	clusters, err := engine.Cluster(map[string][]float64{"only": {1, 2}})
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(clusters) != 1 || len(clusters[0]) != 1 {
		t.Fatalf("expected a single cluster holding the single point, got %v", clusters)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	engine := NewEngine(DefaultConfig(), 1)
	clusters, err := engine.Cluster(map[string][]float64{})
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(clusters) != 0 {
		t.Fatalf("expected no clusters, got %v", clusters)
	}
}

func TestClusterDimensionMismatch(t *testing.T) {
	engine := NewEngine(DefaultConfig(), 1)
	_, err := engine.Cluster(map[string][]float64{
		"a": {1, 2},
		"b": {1, 2, 3},
	})
	if err == nil {
		t.Fatal("expected an error for inconsistent dimensions")
	}
}

func TestClusterDeterministicWithSeed(t *testing.T) {
	vecs := separatedVectors()
	first, err := NewEngine(DefaultConfig(), 7).Cluster(vecs)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	second, err := NewEngine(DefaultConfig(), 7).Cluster(vecs)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	for id := range vecs {
		c1, _ := clusterOf(first, id)
		c2, _ := clusterOf(second, id)
		if c1 != c2 {
			t.Fatalf("same seed should reproduce the same partition (id %s)", id)
		}
	}
}

func TestClusterPinnedK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinClusters = 2
	cfg.MaxClusters = 2
	clusters, err := NewEngine(cfg, 3).Cluster(separatedVectors())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("pinned K=2 should yield 2 clusters, got %d", len(clusters))
	}
}

func TestProjectTo2D(t *testing.T) {
	vecs := [][]float64{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0.9, 0.1},
	}
	coords := ProjectTo2D(vecs)
	if len(coords) != 4 {
		t.Fatalf("expected 4 projected points, got %d", len(coords))
	}
	// The dominant axis should separate the two groups.
	if (coords[0][0] > 0) == (coords[2][0] > 0) {
		t.Error("PC1 should separate the two groups")
	}
}
