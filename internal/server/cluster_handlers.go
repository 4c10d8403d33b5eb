package server

import (
	"net/http"
	"sort"
	"time"

	"mtmatch/internal/clustering"
	"mtmatch/internal/core"
)

type clusterPoint struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Cluster   int     `json:"cluster"`
	ClusterID string  `json:"clusterId,omitempty"`
	Preview   string  `json:"preview,omitempty"`
}

// handleVisualizeClusters clusters every MESSAGE vector ad hoc and returns a
// 2-D projection per point. numClusters pins K; otherwise the engine sweeps
// the configured range.
func (s *Server) handleVisualizeClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vectors, err := s.deps.Vectors.ListByDocType(ctx, core.DocMessage)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if len(vectors) == 0 {
		s.respondJSON(w, http.StatusOK, map[string]any{"points": []clusterPoint{}, "numClusters": 0})
		return
	}

	cfg := clustering.Config{
		MaxIterations:        s.deps.Config.GetInt(ctx, "clustering.max_iterations", 100),
		MinClusters:          s.deps.Config.GetInt(ctx, "clustering.min_clusters", 2),
		MaxClusters:          s.deps.Config.GetInt(ctx, "clustering.max_clusters", 10),
		ConvergenceThreshold: s.deps.Config.GetFloat(ctx, "clustering.convergence_threshold", 0.001),
	}
	if n := queryInt(r.URL.Query().Get("numClusters"), 0); n > 0 {
		cfg.MinClusters = n
		cfg.MaxClusters = n
	}

	byID := make(map[string]core.VectorEmbedding, len(vectors))
	idToVector := make(map[string][]float64, len(vectors))
	for _, v := range vectors {
		byID[v.ID] = v
		idToVector[v.ID] = v.Embedding
	}

	engine := clustering.NewEngine(cfg, time.Now().UnixNano())
	clusters, err := engine.Cluster(idToVector)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}

	// Stable point order: sorted ids, projected together so coordinates share
	// one principal basis.
	ids := make([]string, 0, len(idToVector))
	for id := range idToVector {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	assignment := make(map[string]int, len(ids))
	for idx, members := range clusters {
		for _, id := range members {
			assignment[id] = idx
		}
	}

	matrix := make([][]float64, len(ids))
	for i, id := range ids {
		matrix[i] = idToVector[id]
	}
	coords := clustering.ProjectTo2D(matrix)

	points := make([]clusterPoint, len(ids))
	for i, id := range ids {
		v := byID[id]
		points[i] = clusterPoint{
			ID:        id,
			X:         coords[i][0],
			Y:         coords[i][1],
			Cluster:   assignment[id],
			ClusterID: v.ClusterID,
			Preview:   v.ContentPreview,
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"points":      points,
		"numClusters": len(clusters),
	})
}
