package pattern

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexusmem/memengine/internal/types"
)

type fakePatternStore struct {
	mu       sync.Mutex
	upserted map[string]*types.Pattern
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{upserted: make(map[string]*types.Pattern)}
}

func (f *fakePatternStore) UpsertPattern(_ context.Context, p *types.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[p.ID] = p
	return nil
}

func (f *fakePatternStore) GetPattern(_ context.Context, id string) (*types.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserted[id], nil
}

func (f *fakePatternStore) ListPatterns(context.Context, string, types.TaskType) ([]*types.Pattern, error) {
	return nil, nil
}

func episodeWithTools(domain string, taskType types.TaskType, tools []string, success bool) *types.Episode {
	steps := make([]types.ExecutionStep, len(tools))
	for i, tool := range tools {
		steps[i] = types.ExecutionStep{Ordinal: i, Tool: tool, Action: "run", Timestamp: time.Now()}
	}
	outcome := types.OutcomeFailure
	if success {
		outcome = types.OutcomeSuccess
	}
	return &types.Episode{
		TaskDescription: "task",
		TaskType:        taskType,
		Context:         types.Context{Domain: domain, Complexity: types.ComplexityModerate},
		Steps:           steps,
		Outcome:         &types.Outcome{Kind: outcome},
	}
}

func TestExtractor_MinesFrequentSubsequence(t *testing.T) {
	fs := newFakePatternStore()
	x := New(fs, nil)

	for i := 0; i < MinSupport; i++ {
		e := episodeWithTools("web-api", types.TaskDebugging, []string{"grep", "read_file", "edit"}, true)
		x.OnEpisodeCompleted(context.Background(), e)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.upserted) == 0 {
		t.Fatal("expected at least one pattern to be upserted")
	}
	for _, p := range fs.upserted {
		if p.OccurrenceCount < MinSupport {
			t.Errorf("pattern %v has occurrence count %d below min support", p.ToolSequence, p.OccurrenceCount)
		}
		if p.SuccessRate != 1.0 {
			t.Errorf("expected success rate 1.0 for all-success bucket, got %v", p.SuccessRate)
		}
	}
}

func TestExtractor_BelowMinSupportDoesNotUpsert(t *testing.T) {
	fs := newFakePatternStore()
	x := New(fs, nil)

	e := episodeWithTools("web-api", types.TaskDebugging, []string{"grep", "edit"}, true)
	x.OnEpisodeCompleted(context.Background(), e)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.upserted) != 0 {
		t.Errorf("expected no patterns upserted below min support, got %d", len(fs.upserted))
	}
}

func TestEffectiveness_MonotonicInOccurrences(t *testing.T) {
	low := Effectiveness(0.8, 3)
	high := Effectiveness(0.8, 30)
	if high <= low {
		t.Errorf("expected effectiveness to increase with occurrences: low=%v high=%v", low, high)
	}
	if high > 1 || high < 0 {
		t.Errorf("effectiveness out of [0,1]: %v", high)
	}
}

func TestPatternID_StableAndDistinct(t *testing.T) {
	id1 := PatternID(types.TaskDebugging, "web-api", []string{"grep", "edit"})
	id2 := PatternID(types.TaskDebugging, "web-api", []string{"grep", "edit"})
	id3 := PatternID(types.TaskDebugging, "web-api", []string{"grep", "read"})

	if id1 != id2 {
		t.Error("expected identical inputs to produce identical IDs")
	}
	if id1 == id3 {
		t.Error("expected different sequences to produce different IDs")
	}
}
