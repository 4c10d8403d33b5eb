package embedding

import (
	"math"
	"regexp"
	"strings"
)

// Cosine calculates the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude inputs.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. Zero vectors pass through.
func Normalize(v []float64) []float64 {
	n := Norm(v)
	out := make([]float64, len(v))
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Centroid returns the L2-normalized mean of vs. Empty input yields the zero
// vector of dimension dim.
func Centroid(vs [][]float64, dim int) []float64 {
	if len(vs) == 0 {
		return make([]float64, dim)
	}
	sum := make([]float64, len(vs[0]))
	for _, v := range vs {
		for i := range v {
			sum[i] += v[i]
		}
	}
	for i := range sum {
		sum[i] /= float64(len(vs))
	}
	return Normalize(sum)
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Variable placeholders in template values: {X}, [X], <X>, ${X}, plus long
// digit runs left behind by amounts and references.
var (
	placeholderRe = regexp.MustCompile(`\$\{[^}]*\}|\{[^}]*\}|\[[^\]]*\]|<[^>]*>`)
	digitRunRe    = regexp.MustCompile(`\d{4,}`)
)

// StripPlaceholders removes variable markers and long digit runs from a
// template value, leaving its fixed content.
func StripPlaceholders(s string) string {
	s = placeholderRe.ReplaceAllString(s, "")
	s = digitRunRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// TextSimilarity is a normalized Levenshtein similarity on lowercased trimmed
// strings: 1 - distance/max(len). Two empty strings are identical.
func TextSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
