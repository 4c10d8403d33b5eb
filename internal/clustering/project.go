package clustering

import "math"

// ProjectTo2D maps high-dimensional vectors onto their two principal
// components via power iteration with deflation. Used by the cluster
// visualization endpoint; not part of the clustering path itself.
func ProjectTo2D(vectors [][]float64) [][2]float64 {
	n := len(vectors)
	out := make([][2]float64, n)
	if n == 0 {
		return out
	}
	dim := len(vectors[0])
	if dim == 0 {
		return out
	}
	if dim == 1 {
		for i, v := range vectors {
			out[i] = [2]float64{v[0], 0}
		}
		return out
	}

	mean := make([]float64, dim)
	for _, v := range vectors {
		for j := range v {
			mean[j] += v[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	centered := make([][]float64, n)
	for i, v := range vectors {
		c := make([]float64, dim)
		for j := range v {
			c[j] = v[j] - mean[j]
		}
		centered[i] = c
	}

	pc1 := principalComponent(centered)
	deflated := deflate(centered, pc1)
	pc2 := principalComponent(deflated)

	for i, v := range centered {
		out[i] = [2]float64{dot(v, pc1), dot(v, pc2)}
	}
	return out
}

// principalComponent runs power iteration on X^T X without materializing the
// covariance matrix.
func principalComponent(centered [][]float64) []float64 {
	dim := len(centered[0])
	v := make([]float64, dim)
	// Fixed start keeps projections deterministic run to run.
	for j := range v {
		v[j] = 1 / math.Sqrt(float64(dim))
	}
	for iter := 0; iter < 50; iter++ {
		next := make([]float64, dim)
		for _, row := range centered {
			proj := dot(row, v)
			for j := range row {
				next[j] += proj * row[j]
			}
		}
		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return v
		}
		for j := range next {
			next[j] /= norm
		}
		v = next
	}
	return v
}

func deflate(centered [][]float64, component []float64) [][]float64 {
	out := make([][]float64, len(centered))
	for i, row := range centered {
		proj := dot(row, component)
		d := make([]float64, len(row))
		for j := range row {
			d[j] = row[j] - proj*component[j]
		}
		out[i] = d
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
