// Package features turns a parsed SWIFT message into a fixed-layout
// structural feature vector: tag presence bits, content-shape floats for a
// small set of critical tags, and a party-hash smear that places similar
// routings near each other.
//
// The layout is fixed per deployment. Changing the tag lists changes the
// dimensionality, which invalidates every stored template centroid; templates
// must then be re-extracted.
package features

import (
	"hash/fnv"
	"unicode"
)

// wellKnownTags is the fixed ordered tag list backing the presence block.
// Covers the common MT700-family field set.
var wellKnownTags = []string{
	"20", "21", "23", "25", "26E", "27", "30", "31C", "31D", "32A",
	"32B", "32D", "33B", "34B", "39A", "39B", "39C", "40A", "40B", "40E",
	"41A", "41D", "42A", "42C", "42D", "42M", "42P", "43P", "43T", "44A",
	"44B", "44C", "44D", "44E", "44F", "45A", "45B", "46A", "46B", "47A",
	"47B", "48", "49", "50", "50B", "50K", "51A", "52A", "52D", "53A",
	"57A", "57D", "58A", "59", "71B", "71D", "72", "72Z", "77A", "78",
}

// criticalTags get three content-shape floats each: a prefix hash, an
// alpha/digit ratio, and a bounded length.
var criticalTags = []string{"20", "32B", "50K", "59", "71B", "45A"}

const (
	shapePerTag  = 3
	partySmear   = 10
	smearBuckets = 8
)

// Dim is the structural vector dimensionality for this deployment.
func Dim() int {
	return len(wellKnownTags) + len(criticalTags)*shapePerTag + 2*partySmear
}

// Featurize builds the structural vector for a parsed message. Pure CPU, no
// I/O. Absent tags leave zero-filled slots.
func Featurize(fields map[string]string, senderID, receiverID string) []float64 {
	vec := make([]float64, 0, Dim())

	for _, tag := range wellKnownTags {
		if _, ok := fields[tag]; ok {
			vec = append(vec, 1.0)
		} else {
			vec = append(vec, 0.0)
		}
	}

	for _, tag := range criticalTags {
		value, ok := fields[tag]
		if !ok || value == "" {
			vec = append(vec, 0, 0, 0)
			continue
		}
		vec = append(vec, prefixHash(value), contentTypeRatio(value), boundedLength(value))
	}

	vec = append(vec, hashSmear(senderID)...)
	vec = append(vec, hashSmear(receiverID)...)
	return vec
}

// prefixHash maps the first three value characters to [0,1).
func prefixHash(value string) float64 {
	prefix := value
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	h := fnv.New32a()
	h.Write([]byte(prefix))
	return float64(h.Sum32()%100) / 100.0
}

// contentTypeRatio is alpha/(alpha+digit), 0.5 when the value has neither.
func contentTypeRatio(value string) float64 {
	var alpha, digit int
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r):
			digit++
		}
	}
	if alpha+digit == 0 {
		return 0.5
	}
	return float64(alpha) / float64(alpha+digit)
}

func boundedLength(value string) float64 {
	l := float64(len(value)) / 100.0
	if l > 1 {
		return 1
	}
	return l
}

// hashSmear spreads a party id over 10 floats bucketed to {0..7}/7, so ids
// sharing hash structure land on nearby vectors.
func hashSmear(id string) []float64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	bits := h.Sum64()
	out := make([]float64, partySmear)
	for i := range out {
		bucket := (bits >> (uint(i) * 3)) % smearBuckets
		out[i] = float64(bucket) / float64(smearBuckets-1)
	}
	return out
}
