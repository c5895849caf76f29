package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/types"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []*types.Episode
}

func (s *recordingSink) StoreEpisode(ctx context.Context, e *types.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestWriter_FlushesAtCapacity(t *testing.T) {
	sink := &recordingSink{}
	w := New(Config{Size: 2, FlushInterval: time.Hour, FlushRetryAttempts: 1}, sink, nil)

	id := uuid.New()
	episode := &types.Episode{ID: id}
	getter := func() *types.Episode { return episode }

	w.LogStep(context.Background(), id, types.ExecutionStep{Ordinal: 0, Tool: "grep", Action: "a"}, getter)
	if sink.count() != 0 {
		t.Fatal("expected no flush before buffer full")
	}
	w.LogStep(context.Background(), id, types.ExecutionStep{Ordinal: 1, Tool: "grep", Action: "b"}, getter)
	if sink.count() != 1 {
		t.Fatalf("expected flush once buffer reaches capacity, got %d calls", sink.count())
	}
}

func TestWriter_ExplicitFlush(t *testing.T) {
	sink := &recordingSink{}
	w := New(Config{Size: 50, FlushInterval: time.Hour, FlushRetryAttempts: 1}, sink, nil)

	id := uuid.New()
	episode := &types.Episode{ID: id}
	getter := func() *types.Episode { return episode }

	w.LogStep(context.Background(), id, types.ExecutionStep{Ordinal: 0, Tool: "grep", Action: "a"}, getter)
	if err := w.Flush(context.Background(), id, getter); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("count() = %d, want 1", sink.count())
	}
}

func TestWriter_TimerFlush(t *testing.T) {
	sink := &recordingSink{}
	w := New(Config{Size: 50, FlushInterval: 10 * time.Millisecond, FlushRetryAttempts: 1}, sink, nil)

	id := uuid.New()
	episode := &types.Episode{ID: id}
	getter := func() *types.Episode { return episode }

	w.LogStep(context.Background(), id, types.ExecutionStep{Ordinal: 0, Tool: "grep", Action: "a"}, getter)

	deadline := time.Now().Add(500 * time.Millisecond)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Errorf("count() = %d, want 1 after flush_interval elapses", sink.count())
	}
}

func TestWriter_DropClearsBuffer(t *testing.T) {
	sink := &recordingSink{}
	w := New(Config{Size: 50, FlushInterval: time.Hour, FlushRetryAttempts: 1}, sink, nil)

	id := uuid.New()
	episode := &types.Episode{ID: id}
	getter := func() *types.Episode { return episode }

	w.LogStep(context.Background(), id, types.ExecutionStep{Ordinal: 0, Tool: "grep", Action: "a"}, getter)
	w.Drop(id)

	if err := w.Flush(context.Background(), id, getter); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if sink.count() != 0 {
		t.Errorf("expected Drop to discard buffered steps, got %d flushes", sink.count())
	}
}
