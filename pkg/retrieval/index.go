package retrieval

import (
	"math"
	"sort"
)

// indexHit is one nearest-neighbor result.
type indexHit struct {
	key   string
	score float64
}

// vectorIndex is a brute-force cosine index over unit-normalized vectors.
// Schema cards top out at a few thousand entries, so a linear scan beats the
// bookkeeping of an approximate structure.
type vectorIndex struct {
	keys []string
	vecs [][]float32
}

func newVectorIndex(keys []string, vecs [][]float32) *vectorIndex {
	idx := &vectorIndex{
		keys: keys,
		vecs: make([][]float32, len(vecs)),
	}
	for i, v := range vecs {
		idx.vecs[i] = unitNorm(v)
	}
	return idx
}

func (ix *vectorIndex) size() int { return len(ix.keys) }

// search returns the top k entries by cosine similarity.
func (ix *vectorIndex) search(query []float32, k int) []indexHit {
	if len(ix.keys) == 0 || len(query) == 0 {
		return nil
	}
	q := unitNorm(query)

	hits := make([]indexHit, 0, len(ix.keys))
	for i, v := range ix.vecs {
		hits = append(hits, indexHit{key: ix.keys[i], score: dot(q, v)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].key < hits[j].key
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func unitNorm(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
