// Package batch implements the step-buffer batch writer from spec.md
// §4.5: a bounded per-episode ring buffer of steps flushed to the
// primary store as one transactional multi-row insert, triggered by
// capacity, time, episode completion, or an explicit call.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/infrastructure/resilience"
	"github.com/nexusmem/memengine/internal/types"
)

// Config configures the step buffer, per spec.md §6's batch.* knobs.
type Config struct {
	Size               int
	FlushInterval      time.Duration
	FlushRetryAttempts int
}

// DefaultConfig mirrors spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{Size: 50, FlushInterval: 100 * time.Millisecond, FlushRetryAttempts: 3}
}

type episodeBuffer struct {
	mu        sync.Mutex
	episodeID uuid.UUID
	steps     []types.ExecutionStep
	firstAt   time.Time
	timer     *time.Timer
}

// Sink is the subset of the primary driver the writer flushes to. A
// batch of steps for one episode is flushed by storing a copy of the
// episode that carries only the buffered steps;
// store.EpisodeStore.StoreEpisode upserts the episode row and each step
// by ordinal in one transaction, so steps from earlier flushes stay.
type Sink interface {
	StoreEpisode(ctx context.Context, e *types.Episode) error
}

// Writer serializes log_step calls per episode and flushes on
// capacity, timer, or completion, per spec.md §4.5 and §5's ordering
// guarantee ("within a single episode, step order is preserved").
type Writer struct {
	cfg    Config
	sink   Sink
	log    *logging.Logger
	mu     sync.Mutex
	bufs   map[uuid.UUID]*episodeBuffer
	onFlushErr func(episodeID uuid.UUID, err error)
}

// New creates a Writer bound to sink.
func New(cfg Config, sink Sink, log *logging.Logger) *Writer {
	if cfg.Size <= 0 {
		cfg.Size = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	return &Writer{cfg: cfg, sink: sink, log: log, bufs: make(map[uuid.UUID]*episodeBuffer)}
}

func (w *Writer) bufferFor(episodeID uuid.UUID) *episodeBuffer {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bufs[episodeID]
	if !ok {
		b = &episodeBuffer{episodeID: episodeID}
		w.bufs[episodeID] = b
	}
	return b
}

// LogStep appends a step to episodeID's buffer, flushing eagerly if
// the buffer is now full, and arming a timer for the flush_interval
// trigger on the buffer's first unflushed step.
func (w *Writer) LogStep(ctx context.Context, episodeID uuid.UUID, step types.ExecutionStep, episode func() *types.Episode) error {
	b := w.bufferFor(episodeID)

	b.mu.Lock()
	if len(b.steps) == 0 {
		b.firstAt = time.Now()
		b.timer = time.AfterFunc(w.cfg.FlushInterval, func() {
			w.Flush(context.Background(), episodeID, episode)
		})
	}
	b.steps = append(b.steps, step)
	full := len(b.steps) >= w.cfg.Size
	b.mu.Unlock()

	if full {
		return w.Flush(ctx, episodeID, episode)
	}
	return nil
}

// Flush writes episodeID's buffered steps to the sink in one
// transactional insert, retrying transient failures up to
// FlushRetryAttempts, per spec.md §4.5/§6.
func (w *Writer) Flush(ctx context.Context, episodeID uuid.UUID, episode func() *types.Episode) error {
	b := w.bufferFor(episodeID)

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.steps) == 0 {
		b.mu.Unlock()
		return nil
	}
	pending := make([]types.ExecutionStep, len(b.steps))
	copy(pending, b.steps)
	b.mu.Unlock()

	live := episode()
	if live == nil {
		return nil
	}
	snapshot := *live
	snapshot.Steps = pending
	e := &snapshot

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = w.cfg.FlushRetryAttempts

	err := resilience.Retry(ctx, retryCfg, func() error {
		return w.sink.StoreEpisode(ctx, e)
	})
	if err != nil {
		if w.log != nil {
			w.log.WithError(err).WithField("episode_id", episodeID.String()).Error("step buffer flush failed")
		}
		return err
	}

	b.mu.Lock()
	b.steps = b.steps[:0]
	b.mu.Unlock()
	return nil
}

// Drop removes episodeID's buffer entirely, used once an episode's
// final completed row has been written and its buffer will not be
// reused.
func (w *Writer) Drop(episodeID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.bufs[episodeID]; ok {
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		b.mu.Unlock()
		delete(w.bufs, episodeID)
	}
}
