// Package vectorindex implements the Vector Index (spec §4.F): a
// hierarchical navigable small-world (HNSW) approximate nearest-neighbor
// graph over fixed-dimension embeddings, keyed by edge id.
package vectorindex

import (
	"math"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// cosineDistance returns 1 - cosine_similarity(a, b), so 0 means
// identical direction and larger values mean more dissimilar — a proper
// distance for the min-heaps used during search.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

// ScoredID is one search hit.
type ScoredID struct {
	ID       ulid.ID
	Distance float64
}

// CandidateSet restricts search_filtered admission (spec §4.F).
type CandidateSet interface {
	Contains(id ulid.ID) bool
}

func validateDimension(v []float32, dim int) error {
	if len(v) != dim {
		return domain.ErrDimensionMismatch
	}
	return nil
}
