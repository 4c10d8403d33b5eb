package clustering

import "math"

// silhouetteScore rates how well point i sits in its cluster, in [-1, 1].
// Members of singleton clusters score zero: a lone point says nothing about
// cluster quality, and crediting it would reward shattering the data.
func silhouetteScore(i int, assignments []int, distances [][]float64) float64 {
	current := assignments[i]

	a, intraCount := 0.0, 0
	interSums := make(map[int]float64)
	interCounts := make(map[int]int)
	for j, label := range assignments {
		if j == i {
			continue
		}
		if label == current {
			a += distances[i][j]
			intraCount++
		} else {
			interSums[label] += distances[i][j]
			interCounts[label]++
		}
	}
	if intraCount == 0 || len(interSums) == 0 {
		return 0
	}
	a /= float64(intraCount)

	b := math.Inf(1)
	for label, sum := range interSums {
		if mean := sum / float64(interCounts[label]); mean < b {
			b = mean
		}
	}

	switch {
	case a < b:
		return 1 - a/b
	case a > b:
		return b/a - 1
	}
	return 0
}

// averageSilhouette is the mean silhouette over all points.
func averageSilhouette(assignments []int, distances [][]float64) float64 {
	if len(assignments) == 0 {
		return 0
	}
	var sum float64
	for i := range assignments {
		sum += silhouetteScore(i, assignments, distances)
	}
	return sum / float64(len(assignments))
}

// distanceMatrix precomputes pairwise Euclidean distances. Quadratic, fine at
// the per-partition scale clustering runs at.
func distanceMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Sqrt(squaredDistance(vectors[i], vectors[j]))
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}
