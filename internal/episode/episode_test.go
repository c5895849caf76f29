package episode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/internal/batch"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
	"github.com/nexusmem/memengine/internal/validation"
)

type fakeStore struct {
	store.EpisodeStore
	mu       sync.Mutex
	episodes map[uuid.UUID]*types.Episode
}

func newFakeStore() *fakeStore {
	return &fakeStore{episodes: make(map[uuid.UUID]*types.Episode)}
}

func (f *fakeStore) StoreEpisode(_ context.Context, e *types.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.episodes[e.ID] = &cp
	return nil
}

func (f *fakeStore) GetEpisode(_ context.Context, id uuid.UUID) (*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.episodes[id]
	if !ok {
		return nil, memerrors.NotFound("episode", id.String())
	}
	return e, nil
}

type fixedReward struct{ v float64 }

func (f fixedReward) Calculate(context.Context, *types.Episode) (float64, error) { return f.v, nil }

type fixedReflection struct{ s string }

func (f fixedReflection) Generate(context.Context, *types.Episode) (string, error) { return f.s, nil }

type fixedSummary struct{ s string }

func (f fixedSummary) Summarize(context.Context, *types.Episode) (string, error) { return f.s, nil }

type recordingHook struct {
	mu    sync.Mutex
	calls int
}

func (h *recordingHook) OnEpisodeCompleted(context.Context, *types.Episode) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
}

func newTestManager(t *testing.T, limit int) (*Manager, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	log := logging.New("test", "error", "text")
	bw := batch.New(batch.DefaultConfig(), fs, log)
	valid := validation.New(validation.DefaultLimits())
	cfg := Config{ActiveEpisodeLimit: limit}
	m := New(cfg, log, fs, nil, bw, nil, valid, fixedReward{v: 0.8}, fixedReflection{s: "went fine"}, fixedSummary{s: "summary"}, nil, nil)
	return m, fs
}

func startTestEpisode(t *testing.T, m *Manager) *types.Episode {
	t.Helper()
	e, err := m.StartEpisode(context.Background(), "fix the bug", types.TaskDebugging, types.Context{Domain: "web-api", Complexity: types.ComplexityModerate})
	if err != nil {
		t.Fatalf("StartEpisode() error = %v", err)
	}
	return e
}

func TestStartEpisode_EnforcesQuota(t *testing.T) {
	m, _ := newTestManager(t, 1)
	startTestEpisode(t, m)

	_, err := m.StartEpisode(context.Background(), "second task", types.TaskDebugging, types.Context{Domain: "web-api", Complexity: types.ComplexityModerate})
	if !memerrors.Is(err, memerrors.CodeQuotaExceeded) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
}

func TestLogStep_AppendsAndBuffers(t *testing.T) {
	m, _ := newTestManager(t, 10)
	e := startTestEpisode(t, m)

	step := types.ExecutionStep{Tool: "grep", Action: "search", Timestamp: time.Now()}
	if err := m.LogStep(context.Background(), e.ID, step); err != nil {
		t.Fatalf("LogStep() error = %v", err)
	}

	got, err := m.mutableEpisode(e.ID)
	if err != nil {
		t.Fatalf("mutableEpisode() error = %v", err)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("len(Steps) = %d, want 1", len(got.Steps))
	}
}

func TestCompleteEpisode_TransitionsAndPersists(t *testing.T) {
	m, fs := newTestManager(t, 10)
	e := startTestEpisode(t, m)
	m.LogStep(context.Background(), e.ID, types.ExecutionStep{Tool: "grep", Action: "search", Timestamp: time.Now()})

	completed, err := m.CompleteEpisode(context.Background(), e.ID, types.Outcome{Kind: types.OutcomeSuccess})
	if err != nil {
		t.Fatalf("CompleteEpisode() error = %v", err)
	}
	if !completed.IsComplete() {
		t.Fatal("expected completed episode to satisfy IsComplete()")
	}
	if completed.Reward == nil || *completed.Reward != 0.8 {
		t.Errorf("Reward = %v, want 0.8", completed.Reward)
	}
	if completed.Reflection != "went fine" {
		t.Errorf("Reflection = %q", completed.Reflection)
	}

	if _, err := fs.GetEpisode(context.Background(), e.ID); err != nil {
		t.Fatalf("expected episode persisted to primary store, got error %v", err)
	}
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after completion", m.ActiveCount())
	}
}

func TestCompleteEpisode_FiresLearningHooks(t *testing.T) {
	m, _ := newTestManager(t, 10)
	hook := &recordingHook{}
	m.learning = []LearningHook{hook}

	e := startTestEpisode(t, m)
	if _, err := m.CompleteEpisode(context.Background(), e.ID, types.Outcome{Kind: types.OutcomeSuccess}); err != nil {
		t.Fatalf("CompleteEpisode() error = %v", err)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.calls != 1 {
		t.Errorf("learning hook called %d times, want 1", hook.calls)
	}
}

func TestCompleteEpisode_SecondCallIsConcurrencyConflict(t *testing.T) {
	m, _ := newTestManager(t, 10)
	e := startTestEpisode(t, m)

	if _, err := m.CompleteEpisode(context.Background(), e.ID, types.Outcome{Kind: types.OutcomeSuccess}); err != nil {
		t.Fatalf("first CompleteEpisode() error = %v", err)
	}

	_, err := m.CompleteEpisode(context.Background(), e.ID, types.Outcome{Kind: types.OutcomeSuccess})
	if !memerrors.Is(err, memerrors.CodeConcurrencyConflict) {
		t.Fatalf("second CompleteEpisode() error = %v, want ConcurrencyConflict", err)
	}
}

func TestLogStep_AfterCompletionIsConcurrencyConflict(t *testing.T) {
	m, _ := newTestManager(t, 10)
	e := startTestEpisode(t, m)

	if _, err := m.CompleteEpisode(context.Background(), e.ID, types.Outcome{Kind: types.OutcomeSuccess}); err != nil {
		t.Fatalf("CompleteEpisode() error = %v", err)
	}

	step := types.ExecutionStep{Tool: "grep", Action: "search", Timestamp: time.Now()}
	err := m.LogStep(context.Background(), e.ID, step)
	if !memerrors.Is(err, memerrors.CodeConcurrencyConflict) {
		t.Fatalf("LogStep() after completion error = %v, want ConcurrencyConflict", err)
	}
}

func TestGetEpisode_NotFoundFallsBackToActive(t *testing.T) {
	m, _ := newTestManager(t, 10)
	e := startTestEpisode(t, m)

	got, err := m.GetEpisode(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetEpisode() error = %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("GetEpisode() returned wrong episode")
	}
}
