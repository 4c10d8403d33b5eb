package templates

import (
	"math"
	"sort"

	"mtmatch/internal/embedding"
)

// filterOutliers intersects the IQR rule and the 2-sigma rule over the
// members' structural vectors. The filter never shrinks a cluster below
// minSize: if the intersection would, the looser rule wins, and if both rules
// are too aggressive the cluster is kept whole.
func filterOutliers(ids []string, structural map[string][]float64, minSize int) []string {
	if len(ids) <= minSize {
		return ids
	}

	iqrKeep := iqrFilter(ids, structural)
	sigmaKeep := sigmaFilter(ids, structural)

	intersection := intersect(iqrKeep, sigmaKeep)
	if len(intersection) >= minSize {
		return intersection
	}

	looser := iqrKeep
	if len(sigmaKeep) > len(looser) {
		looser = sigmaKeep
	}
	if len(looser) >= minSize {
		return looser
	}
	return ids
}

// iqrFilter keeps members whose mean similarity to the rest of the cluster
// falls inside [Q25-1.5*IQR, Q75+1.5*IQR].
func iqrFilter(ids []string, structural map[string][]float64) []string {
	means := make([]float64, len(ids))
	for i, id := range ids {
		var sum float64
		for j, other := range ids {
			if i == j {
				continue
			}
			sum += embedding.Cosine(structural[id], structural[other])
		}
		means[i] = sum / float64(len(ids)-1)
	}

	q25 := quantile(means, 0.25)
	q75 := quantile(means, 0.75)
	iqr := q75 - q25
	lo, hi := q25-1.5*iqr, q75+1.5*iqr

	var keep []string
	for i, id := range ids {
		if means[i] >= lo && means[i] <= hi {
			keep = append(keep, id)
		}
	}
	return keep
}

// sigmaFilter keeps members whose cosine to the structural centroid lies
// within two standard deviations of the mean.
func sigmaFilter(ids []string, structural map[string][]float64) []string {
	dim := len(structural[ids[0]])
	centroid := make([]float64, dim)
	for _, id := range ids {
		for j, x := range structural[id] {
			centroid[j] += x
		}
	}
	for j := range centroid {
		centroid[j] /= float64(len(ids))
	}

	sims := make([]float64, len(ids))
	var mean float64
	for i, id := range ids {
		sims[i] = embedding.Cosine(structural[id], centroid)
		mean += sims[i]
	}
	mean /= float64(len(ids))

	var variance float64
	for _, s := range sims {
		variance += (s - mean) * (s - mean)
	}
	sigma := math.Sqrt(variance / float64(len(ids)))

	var keep []string
	for i, id := range ids {
		if math.Abs(sims[i]-mean) <= 2*sigma {
			keep = append(keep, id)
		}
	}
	return keep
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	var out []string
	for _, id := range a {
		if inB[id] {
			out = append(out, id)
		}
	}
	return out
}

// quantile returns the q-th quantile with linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
