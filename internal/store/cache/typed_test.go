package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/types"
)

func TestStore_TypedEpisodeRoundTrip(t *testing.T) {
	s := openTestStore(t, 0, 100)
	ctx := context.Background()

	e := &types.Episode{ID: uuid.New(), TaskDescription: "fix bug", TaskType: types.TaskDebugging}
	if err := s.PutEpisode(ctx, e); err != nil {
		t.Fatalf("PutEpisode() error = %v", err)
	}

	got, ok, err := s.GetEpisode(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEpisode() error = %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if got.TaskDescription != "fix bug" {
		t.Errorf("TaskDescription = %q, want %q", got.TaskDescription, "fix bug")
	}

	if err := s.DeleteEpisode(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEpisode() error = %v", err)
	}
	_, ok, _ = s.GetEpisode(ctx, e.ID)
	if ok {
		t.Error("expected miss after delete")
	}
}

func TestStore_TypedPatternAndHeuristicRoundTrip(t *testing.T) {
	s := openTestStore(t, 0, 100)
	ctx := context.Background()

	p := &types.Pattern{ID: "pat-1", Domain: "web-api", TaskType: types.TaskDebugging}
	if err := s.PutPattern(ctx, p); err != nil {
		t.Fatalf("PutPattern() error = %v", err)
	}
	gotP, ok, err := s.GetPattern(ctx, "pat-1")
	if err != nil || !ok {
		t.Fatalf("GetPattern() = %v, %v, %v", gotP, ok, err)
	}

	h := &types.Heuristic{ID: "heur-1", Domain: "web-api", TaskType: types.TaskDebugging}
	if err := s.PutHeuristic(ctx, h); err != nil {
		t.Fatalf("PutHeuristic() error = %v", err)
	}
	gotH, ok, err := s.GetHeuristic(ctx, "heur-1")
	if err != nil || !ok {
		t.Fatalf("GetHeuristic() = %v, %v, %v", gotH, ok, err)
	}
}
