package postgres

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/store"
)

// VectorIndex abstracts the similarity search strategy so a future
// ANN index (e.g. an IVF or HNSW extension) can be swapped in without
// changing callers, per spec.md §4.8's brute-force-with-fallback note.
type VectorIndex interface {
	Search(ctx context.Context, candidates []indexedVector, query []float32, k int) ([]store.SimilarityMatch, error)
}

type indexedVector struct {
	EpisodeID uuid.UUID
	Vector    []float32
}

// BruteForceIndex scores every candidate by cosine similarity and
// returns the top k. It is the default VectorIndex and the fallback
// whenever no ANN index is configured.
type BruteForceIndex struct{}

func (BruteForceIndex) Search(_ context.Context, candidates []indexedVector, query []float32, k int) ([]store.SimilarityMatch, error) {
	matches := make([]store.SimilarityMatch, 0, len(candidates))
	for _, c := range candidates {
		score := cosineSimilarity(query, c.Vector)
		matches = append(matches, store.SimilarityMatch{EpisodeID: c.EpisodeID, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func embeddingsTable(dim int) (string, bool) {
	switch dim {
	case 768:
		return "embeddings_768", true
	case 1536:
		return "embeddings_1536", true
	default:
		return "", false
	}
}
