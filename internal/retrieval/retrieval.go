// Package retrieval implements the hierarchical retriever and MMR
// diversity selection from spec.md §4.8: domain/task_type pruning,
// temporal-cluster selection, weighted scoring, and maximal marginal
// relevance re-ranking, with a linear-scan fallback when hierarchical
// indexing is disabled.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/embedding"
	"github.com/nexusmem/memengine/internal/spatiotemporal"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

// Weights are the L4 scoring coefficients from spec.md §4.8 step 5:
// score = α·cosine + β·keyword + γ·temporal_decay + δ·reward,
// α+β+γ+δ=1. Defaults favor cosine similarity per the resolved Open
// Question in SPEC_FULL.md.
type Weights struct {
	Alpha float64
	Beta  float64
	Gamma float64
	Delta float64
}

// DefaultWeights returns the cosine-heavy default (0.4/0.2/0.2/0.2).
func DefaultWeights() Weights {
	return Weights{Alpha: 0.4, Beta: 0.2, Gamma: 0.2, Delta: 0.2}
}

// Config configures the retriever, per spec.md §6's retrieval.* knobs.
type Config struct {
	EnableHierarchical bool
	EnableDiversity    bool
	DiversityLambda    float64
	TemporalBias       float64
	MaxClusters        int
	Weights            Weights
	CandidateMultiple  int // m in "top K·m candidates"
	HalfLife           time.Duration
}

// Scored is one retrieved episode and its final relevance score.
type Scored struct {
	Episode *types.Episode
	Score   float64
}

// EpisodeReader is the subset of the store the retriever reads from.
type EpisodeReader interface {
	SimilaritySearch(ctx context.Context, queryVec []float32, k int, filter store.MetadataFilter) ([]store.SimilarityMatch, error)
	GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, error)
}

// Retriever implements retrieve_context.
type Retriever struct {
	cfg   Config
	store EpisodeReader
	index *spatiotemporal.Index
	embed *embedding.Client // nil disables query embedding, per step 1's "optional"
}

// New creates a Retriever.
func New(cfg Config, store EpisodeReader, index *spatiotemporal.Index, embed *embedding.Client) *Retriever {
	if cfg.CandidateMultiple <= 0 {
		cfg.CandidateMultiple = 4
	}
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 5
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	return &Retriever{cfg: cfg, store: store, index: index, embed: embed}
}

// RetrieveContext scores and ranks up to k episodes relevant to
// queryText within domain (and taskType, if given).
func (r *Retriever) RetrieveContext(ctx context.Context, queryText, domain string, taskType types.TaskType, k int, diversityLambda float64) ([]Scored, error) {
	if diversityLambda <= 0 {
		diversityLambda = r.cfg.DiversityLambda
	}
	if diversityLambda <= 0 {
		diversityLambda = 0.7
	}

	var queryVec []float32
	if r.embed != nil {
		vec, err := r.embed.Embed(ctx, queryText)
		if err == nil {
			queryVec = vec
		}
	}

	var candidateIDs []uuid.UUID
	if r.cfg.EnableHierarchical && r.index != nil {
		candidateIDs = r.pruneHierarchical(domain, taskType)
	}

	episodes, err := r.loadCandidates(ctx, candidateIDs, queryVec, domain, taskType, k*r.cfg.CandidateMultiple)
	if err != nil {
		return nil, err
	}

	scored := r.scoreAll(episodes, queryVec, queryText)
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	topM := k * r.cfg.CandidateMultiple
	if topM > 0 && len(scored) > topM {
		scored = scored[:topM]
	}

	if r.cfg.EnableDiversity {
		return mmrSelect(scored, k, diversityLambda), nil
	}
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// pruneHierarchical performs L3: select up to MaxClusters temporal
// clusters for (domain, taskType) and flatten their weak references.
func (r *Retriever) pruneHierarchical(domain string, taskType types.TaskType) []uuid.UUID {
	clusters := r.index.TopClusters(domain, taskType, r.cfg.MaxClusters)
	var ids []uuid.UUID
	for _, c := range clusters {
		for _, e := range c {
			ids = append(ids, e.EpisodeID)
		}
	}
	return ids
}

// loadCandidates resolves the candidate set into full episodes,
// falling back to a similarity-search-driven linear scan when
// hierarchical indexing produced no candidates (disabled, or the
// index has not been populated yet).
func (r *Retriever) loadCandidates(ctx context.Context, ids []uuid.UUID, queryVec []float32, domain string, taskType types.TaskType, limit int) ([]*types.Episode, error) {
	if len(ids) > 0 {
		out := make([]*types.Episode, 0, len(ids))
		for _, id := range ids {
			e, err := r.store.GetEpisode(ctx, id)
			if err != nil {
				continue
			}
			out = append(out, e)
		}
		return out, nil
	}

	if len(queryVec) == 0 {
		return nil, nil
	}

	filter := store.MetadataFilter{Domain: domain, TaskType: taskType}
	matches, err := r.store.SimilaritySearch(ctx, queryVec, limit, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Episode, 0, len(matches))
	for _, m := range matches {
		e, err := r.store.GetEpisode(ctx, m.EpisodeID)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Retriever) scoreAll(episodes []*types.Episode, queryVec []float32, queryText string) []Scored {
	now := time.Now()
	w := r.cfg.Weights
	out := make([]Scored, 0, len(episodes))

	for _, e := range episodes {
		cosine := cosineSimilarity(queryVec, e.Embedding)
		keyword := keywordOverlap(queryText, e.TaskDescription)
		temporal := spatiotemporal.DecayWeight(e.StartTime, now, r.cfg.HalfLife)
		reward := 0.0
		if e.Reward != nil {
			reward = (*e.Reward + 1) / 2 // map [-1,1] to [0,1]
		}

		score := w.Alpha*cosine + w.Beta*keyword + w.Gamma*temporal + w.Delta*reward
		out = append(out, Scored{Episode: e, Score: score})
	}
	return out
}

func keywordOverlap(query, text string) float64 {
	qWords := tokenize(query)
	tWords := tokenize(text)
	if len(qWords) == 0 || len(tWords) == 0 {
		return 0
	}
	tSet := make(map[string]bool, len(tWords))
	for _, w := range tWords {
		tSet[w] = true
	}
	var overlap int
	for _, w := range qWords {
		if tSet[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(qWords))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
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

// mmrSelect greedily picks k items maximizing
// λ·relevance − (1−λ)·max_sim(selected), per spec.md §4.8 step 6.
func mmrSelect(candidates []Scored, k int, lambda float64) []Scored {
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	selected := make([]Scored, 0, k)
	remaining := append([]Scored(nil), candidates...)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i, c := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				sim := cosineSimilarity(c.Episode.Embedding, s.Episode.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*c.Score - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
