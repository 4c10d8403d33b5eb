// Package clustering implements K-means++ with silhouette-gated K selection
// on arbitrary-dimension vectors.
package clustering

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"mtmatch/internal/logger"
)

// Config holds the K-means hyperparameters.
type Config struct {
	MaxIterations        int
	MinClusters          int
	MaxClusters          int
	ConvergenceThreshold float64
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        100,
		MinClusters:          2,
		MaxClusters:          10,
		ConvergenceThreshold: 0.001,
	}
}

const (
	// minSilhouette is the quality gate: below it the partition has no real
	// cluster structure and everything stays in a single cluster.
	minSilhouette = 0.3
	// silhouetteSlack: the smallest k within this margin of the best average
	// silhouette wins, so marginal gains never buy extra clusters.
	silhouetteSlack = 0.05
)

// Engine clusters id→vector maps.
type Engine struct {
	config Config
	rng    *rand.Rand
	log    *slog.Logger
}

// NewEngine creates a clustering engine. seed fixes the RNG so extraction
// runs are reproducible under test; pass a time-based seed in production.
func NewEngine(config Config, seed int64) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 100
	}
	if config.MinClusters < 1 {
		config.MinClusters = 2
	}
	if config.MaxClusters < config.MinClusters {
		config.MaxClusters = config.MinClusters
	}
	return &Engine{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		log:    logger.Get(),
	}
}

// Cluster partitions the vectors into clusters, sweeping K from MinClusters
// to min(MaxClusters, n). Each k is scored by its average silhouette; the
// smallest k within silhouetteSlack of the best wins. Raw inertia cannot pick
// K here: it keeps improving all the way to k=n, so a sweep on inertia alone
// shatters homogeneous partitions into singletons. If no k reaches
// minSilhouette the data has no cluster structure and everything lands in one
// cluster, as it does when n < MinClusters. A pinned K
// (MinClusters == MaxClusters) skips the quality gate.
func (e *Engine) Cluster(idToVector map[string][]float64) (map[int][]string, error) {
	ids := make([]string, 0, len(idToVector))
	for id := range idToVector {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := len(ids)
	if n == 0 {
		return map[int][]string{}, nil
	}
	if n < e.config.MinClusters {
		return map[int][]string{0: ids}, nil
	}

	vectors := make([][]float64, n)
	dim := len(idToVector[ids[0]])
	for i, id := range ids {
		v := idToVector[id]
		if len(v) != dim {
			return nil, fmt.Errorf("inconsistent vector dimensions: %d vs %d", len(v), dim)
		}
		vectors[i] = v
	}

	maxK := e.config.MaxClusters
	if maxK > n {
		maxK = n
	}
	pinned := e.config.MinClusters == e.config.MaxClusters

	type candidate struct {
		k           int
		assignments []int
		inertia     float64
		silhouette  float64
	}

	distances := distanceMatrix(vectors)
	var cands []candidate
	bestSilhouette := math.Inf(-1)

	for k := e.config.MinClusters; k <= maxK; k++ {
		assignments, centroids, err := e.runKMeans(vectors, k)
		if err != nil {
			e.log.Warn("kmeans run failed, skipping k", "k", k, "error", err.Error())
			continue
		}
		c := candidate{
			k:           k,
			assignments: assignments,
			inertia:     computeInertia(vectors, assignments, centroids),
			silhouette:  averageSilhouette(assignments, distances),
		}
		cands = append(cands, c)
		if c.silhouette > bestSilhouette {
			bestSilhouette = c.silhouette
		}
	}

	if len(cands) == 0 {
		return map[int][]string{0: ids}, nil
	}
	if !pinned && bestSilhouette < minSilhouette {
		e.log.Debug("no cluster structure found, keeping single cluster",
			"n", n, "bestSilhouette", bestSilhouette)
		return map[int][]string{0: ids}, nil
	}

	chosen := cands[0]
	for _, c := range cands {
		if c.silhouette >= bestSilhouette-silhouetteSlack {
			chosen = c
			break
		}
	}
	e.log.Debug("k selection complete",
		"k", chosen.k, "silhouette", chosen.silhouette, "inertia", chosen.inertia)

	out := make(map[int][]string)
	for i, c := range chosen.assignments {
		out[c] = append(out[c], ids[i])
	}
	return out, nil
}

// runKMeans executes one K-means run with K-means++ initialization.
func (e *Engine) runKMeans(vectors [][]float64, k int) ([]int, [][]float64, error) {
	if k <= 0 || k > len(vectors) {
		return nil, nil, fmt.Errorf("invalid k: %d (must be 1-%d)", k, len(vectors))
	}
	dim := len(vectors[0])
	centroids := e.initializeCentroids(vectors, k, dim)

	var assignments []int
	converged := false

	for iter := 0; iter < e.config.MaxIterations && !converged; iter++ {
		next := make([]int, len(vectors))
		for i, v := range vectors {
			next[i] = nearestCentroid(v, centroids)
		}

		if iter > 0 {
			converged = true
			for i := range assignments {
				if assignments[i] != next[i] {
					converged = false
					break
				}
			}
		}
		assignments = next

		if !converged {
			centroids = updateCentroids(vectors, assignments, k, dim)
		}
	}
	return assignments, centroids, nil
}

// initializeCentroids seeds centroids with probability proportional to the
// squared distance from the nearest already-chosen centroid (K-means++).
func (e *Engine) initializeCentroids(vectors [][]float64, k, dim int) [][]float64 {
	centroids := make([][]float64, k)

	first := e.rng.Intn(len(vectors))
	centroids[0] = append([]float64(nil), vectors[first]...)

	for i := 1; i < k; i++ {
		distances := make([]float64, len(vectors))
		total := 0.0
		for j, v := range vectors {
			minDist := math.Inf(1)
			for c := 0; c < i; c++ {
				d := squaredDistance(v, centroids[c])
				if d < minDist {
					minDist = d
				}
			}
			distances[j] = minDist
			total += minDist
		}

		if total == 0 {
			centroids[i] = append([]float64(nil), vectors[e.rng.Intn(len(vectors))]...)
			continue
		}

		target := e.rng.Float64() * total
		cumulative := 0.0
		selected := 0
		for j, d := range distances {
			cumulative += d
			if cumulative >= target {
				selected = j
				break
			}
		}
		centroids[i] = append([]float64(nil), vectors[selected]...)
	}
	return centroids
}

func nearestCentroid(v []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		if d := squaredDistance(v, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func updateCentroids(vectors [][]float64, assignments []int, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	counts := make([]int, k)
	for i := range centroids {
		centroids[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for j := range v {
			centroids[c][j] += v[j]
		}
	}
	for i := range centroids {
		if counts[i] > 0 {
			for j := range centroids[i] {
				centroids[i][j] /= float64(counts[i])
			}
		}
	}
	return centroids
}

func computeInertia(vectors [][]float64, assignments []int, centroids [][]float64) float64 {
	var inertia float64
	for i, v := range vectors {
		inertia += squaredDistance(v, centroids[assignments[i]])
	}
	return inertia
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
