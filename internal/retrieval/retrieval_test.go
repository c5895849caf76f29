package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/spatiotemporal"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

type fakeReader struct {
	episodes map[uuid.UUID]*types.Episode
}

func (f *fakeReader) SimilaritySearch(ctx context.Context, queryVec []float32, k int, filter store.MetadataFilter) ([]store.SimilarityMatch, error) {
	matches := make([]store.SimilarityMatch, 0, len(f.episodes))
	for id, e := range f.episodes {
		if filter.Domain != "" && e.Context.Domain != filter.Domain {
			continue
		}
		matches = append(matches, store.SimilarityMatch{EpisodeID: id, Score: 0.5})
	}
	return matches, nil
}

func (f *fakeReader) GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, error) {
	e, ok := f.episodes[id]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func newEpisode(domain, taskDesc string, reward float64, start time.Time) *types.Episode {
	r := reward
	return &types.Episode{
		ID:              uuid.New(),
		TaskDescription: taskDesc,
		TaskType:        types.TaskDebugging,
		Context:         types.Context{Domain: domain},
		Status:          types.StatusCompleted,
		StartTime:       start,
		Reward:          &r,
		Embedding:       []float32{1, 0, 0},
	}
}

func TestRetrieveContext_LinearScanFallback(t *testing.T) {
	now := time.Now()
	e1 := newEpisode("web-api", "fix the login bug", 0.9, now)
	e2 := newEpisode("web-api", "unrelated task", -0.5, now.Add(-72*time.Hour))

	reader := &fakeReader{episodes: map[uuid.UUID]*types.Episode{
		e1.ID: e1,
		e2.ID: e2,
	}}

	r := New(Config{EnableHierarchical: false, Weights: DefaultWeights()}, reader, nil, nil)
	results, err := r.RetrieveContext(context.Background(), "login bug", "web-api", "", 2, 0)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
}

func TestRetrieveContext_HierarchicalPrune(t *testing.T) {
	idx := spatiotemporal.New()
	now := time.Now()
	e1 := newEpisode("web-api", "fix the login bug", 0.9, now)

	idx.Insert(spatiotemporal.Entry{EpisodeID: e1.ID, Domain: "web-api", TaskType: types.TaskDebugging, Time: now})

	reader := &fakeReader{episodes: map[uuid.UUID]*types.Episode{e1.ID: e1}}
	r := New(Config{EnableHierarchical: true, Weights: DefaultWeights()}, reader, idx, nil)

	results, err := r.RetrieveContext(context.Background(), "login bug", "web-api", types.TaskDebugging, 5, 0.7)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestMMRSelect_PrefersDiversity(t *testing.T) {
	a := Scored{Episode: &types.Episode{ID: uuid.New(), Embedding: []float32{1, 0}}, Score: 0.9}
	b := Scored{Episode: &types.Episode{ID: uuid.New(), Embedding: []float32{1, 0}}, Score: 0.89}
	c := Scored{Episode: &types.Episode{ID: uuid.New(), Embedding: []float32{0, 1}}, Score: 0.5}

	selected := mmrSelect([]Scored{a, b, c}, 2, 0.5)
	if len(selected) != 2 {
		t.Fatalf("len(selected) = %d, want 2", len(selected))
	}
	if selected[0].Episode.ID != a.Episode.ID {
		t.Fatalf("expected highest-scoring item first")
	}
	if selected[1].Episode.ID != c.Episode.ID {
		t.Fatalf("expected MMR to prefer the diverse item c over near-duplicate b")
	}
}

func TestKeywordOverlap(t *testing.T) {
	if v := keywordOverlap("fix login bug", "fix the login page"); v <= 0 {
		t.Errorf("expected positive overlap, got %v", v)
	}
	if v := keywordOverlap("", "anything"); v != 0 {
		t.Errorf("expected 0 overlap for empty query, got %v", v)
	}
}

func TestCosineSimilarity_MismatchedLength(t *testing.T) {
	if v := cosineSimilarity([]float32{1, 2}, []float32{1}); v != 0 {
		t.Errorf("cosineSimilarity with mismatched lengths = %v, want 0", v)
	}
}
