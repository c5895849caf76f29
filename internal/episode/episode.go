// Package episode implements the episode lifecycle state machine from
// spec.md §4.6: start_episode/log_step/complete_episode/get_episode,
// active-episode quota enforcement, and the fan-out on completion
// (reward, reflection, semantic summary computed in parallel, then
// embedding and learning triggered in the background).
package episode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/internal/batch"
	"github.com/nexusmem/memengine/internal/spatiotemporal"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
	"github.com/nexusmem/memengine/internal/validation"
)

// RewardCalculator scores a just-completed episode.
type RewardCalculator interface {
	Calculate(ctx context.Context, e *types.Episode) (float64, error)
}

// ReflectionGenerator produces a short natural-language reflection on a
// completed episode.
type ReflectionGenerator interface {
	Generate(ctx context.Context, e *types.Episode) (string, error)
}

// Summarizer produces a semantic summary of a completed episode.
type Summarizer interface {
	Summarize(ctx context.Context, e *types.Episode) (string, error)
}

// Embedder computes an episode's embedding in the background; failures
// are logged, never raised, per spec.md §4.6.
type Embedder interface {
	EmbedEpisode(ctx context.Context, e *types.Episode) ([]float32, error)
}

// LearningHook is notified after an episode completes so pattern/
// heuristic extraction can run asynchronously. Implemented by
// internal/pattern and internal/heuristic.
type LearningHook interface {
	OnEpisodeCompleted(ctx context.Context, e *types.Episode)
}

// EpisodeCache is the typed cache-store subset the manager reads
// through on GetEpisode and writes through on completion.
type EpisodeCache interface {
	GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, bool, error)
	PutEpisode(ctx context.Context, e *types.Episode) error
}

// Config configures episode lifecycle limits.
type Config struct {
	ActiveEpisodeLimit int
	ShutdownTimeout    time.Duration
}

// Manager owns in-flight episodes and drives the lifecycle state
// machine. Ownership: a Manager exclusively owns an episode between
// StartEpisode and CompleteEpisode; afterwards episodes are
// shared-read via cache/primary.
type Manager struct {
	cfg   Config
	log   *logging.Logger
	store store.EpisodeStore // primary, or a resilient.Wrapper around it
	cache EpisodeCache       // nil disables cache-first reads
	batch *batch.Writer
	index *spatiotemporal.Index
	valid *validation.Validator

	reward     RewardCalculator
	reflection ReflectionGenerator
	summarizer Summarizer
	embedder   Embedder
	learning   []LearningHook

	mu       sync.RWMutex
	active   map[uuid.UUID]*types.Episode
	terminal map[uuid.UUID]struct{} // completed episode ids, for ConcurrencyConflict detection

	wg sync.WaitGroup // tracks background fan-out goroutines, for Shutdown
}

// New creates a Manager. cache, embedder, reward, reflection,
// summarizer, and learning hooks may be nil/empty; missing components
// degrade gracefully (no cache-first reads, zero reward, empty
// reflection/summary, no background learning).
func New(
	cfg Config,
	log *logging.Logger,
	primary store.EpisodeStore,
	cache EpisodeCache,
	batchWriter *batch.Writer,
	index *spatiotemporal.Index,
	valid *validation.Validator,
	reward RewardCalculator,
	reflection ReflectionGenerator,
	summarizer Summarizer,
	embedder Embedder,
	learning []LearningHook,
) *Manager {
	if cfg.ActiveEpisodeLimit <= 0 {
		cfg.ActiveEpisodeLimit = 100
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		log:        log,
		store:      primary,
		cache:      cache,
		batch:      batchWriter,
		index:      index,
		valid:      valid,
		reward:     reward,
		reflection: reflection,
		summarizer: summarizer,
		embedder:   embedder,
		learning:   learning,
		active:     make(map[uuid.UUID]*types.Episode),
		terminal:   make(map[uuid.UUID]struct{}),
	}
}

// StartEpisode validates the request, enforces the active-episode
// quota, and registers a new in-progress episode.
func (m *Manager) StartEpisode(ctx context.Context, taskDescription string, taskType types.TaskType, taskCtx types.Context) (*types.Episode, error) {
	if err := m.valid.TaskDescription(taskDescription); err != nil {
		return nil, err
	}
	if err := m.valid.TaskType(taskType); err != nil {
		return nil, err
	}
	if err := m.valid.Context(taskCtx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if len(m.active) >= m.cfg.ActiveEpisodeLimit {
		m.mu.Unlock()
		return nil, memerrors.QuotaExceeded("active_episodes", len(m.active)+1, m.cfg.ActiveEpisodeLimit)
	}

	e := &types.Episode{
		ID:              uuid.New(),
		TaskDescription: taskDescription,
		TaskType:        taskType,
		Context:         taskCtx,
		Status:          types.StatusInProgress,
		StartTime:       time.Now(),
		Tags:            make(map[string]struct{}),
		Metadata:        make(map[string]interface{}),
	}
	m.active[e.ID] = e
	m.mu.Unlock()

	return e, nil
}

// LogStep appends a validated step to episodeID's active episode and
// forwards it to the batch writer.
func (m *Manager) LogStep(ctx context.Context, episodeID uuid.UUID, step types.ExecutionStep) error {
	e, err := m.mutableEpisode(episodeID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.valid.StepCount(len(e.Steps)); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.valid.Step(step); err != nil {
		m.mu.Unlock()
		return err
	}
	step.Ordinal = len(e.Steps)
	e.Steps = append(e.Steps, step)
	m.mu.Unlock()

	episodeFn := func() *types.Episode {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.active[episodeID]
	}
	return m.batch.LogStep(ctx, episodeID, step, episodeFn)
}

// CompleteEpisode flushes the step buffer, computes reward/reflection/
// semantic-summary in parallel, transitions the episode to Completed,
// writes it to primary and cache in parallel, and fires embedding
// computation and learning updates in the background. It returns the
// completed episode once the synchronous portion has finished; the
// background fan-out's failures are logged, never returned.
func (m *Manager) CompleteEpisode(ctx context.Context, episodeID uuid.UUID, outcome types.Outcome) (*types.Episode, error) {
	e, err := m.mutableEpisode(episodeID)
	if err != nil {
		return nil, err
	}

	episodeFn := func() *types.Episode {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.active[episodeID]
	}
	if err := m.batch.Flush(ctx, episodeID, episodeFn); err != nil {
		return nil, err
	}

	var rewardVal float64
	var reflectionText, summaryText string
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if m.reward == nil {
			return
		}
		if v, err := m.reward.Calculate(ctx, e); err == nil {
			rewardVal = v
		} else if m.log != nil {
			m.log.WithError(err).Warn("reward calculation failed")
		}
	}()
	go func() {
		defer wg.Done()
		if m.reflection == nil {
			return
		}
		if v, err := m.reflection.Generate(ctx, e); err == nil {
			reflectionText = v
		} else if m.log != nil {
			m.log.WithError(err).Warn("reflection generation failed")
		}
	}()
	go func() {
		defer wg.Done()
		if m.summarizer == nil {
			return
		}
		if v, err := m.summarizer.Summarize(ctx, e); err == nil {
			summaryText = v
		} else if m.log != nil {
			m.log.WithError(err).Warn("semantic summarization failed")
		}
	}()
	wg.Wait()

	m.mu.Lock()
	now := time.Now()
	e.EndTime = &now
	e.Outcome = &outcome
	e.Reward = &rewardVal
	e.Reflection = reflectionText
	e.SemanticSummary = summaryText
	e.Status = types.StatusCompleted
	m.mu.Unlock()

	var writeErr error
	var writeWG sync.WaitGroup
	writeWG.Add(1)
	go func() {
		defer writeWG.Done()
		writeErr = m.store.StoreEpisode(ctx, e)
	}()
	if m.cache != nil {
		writeWG.Add(1)
		go func() {
			defer writeWG.Done()
			if err := m.cache.PutEpisode(ctx, e); err != nil && m.log != nil {
				m.log.WithError(err).Warn("cache write-through failed on completion")
			}
		}()
	}
	writeWG.Wait()
	if writeErr != nil {
		return nil, memerrors.Storage("store_episode", writeErr)
	}

	m.mu.Lock()
	delete(m.active, episodeID)
	m.terminal[episodeID] = struct{}{}
	m.mu.Unlock()
	m.batch.Drop(episodeID)

	m.fireBackgroundFanOut(e)

	return e, nil
}

// fireBackgroundFanOut launches the embedding computation, spatiotemporal
// insert, and learning-hook notifications as detached goroutines;
// their failures are logged, never surfaced, per spec.md §4.6.
func (m *Manager) fireBackgroundFanOut(e *types.Episode) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.Background()

		if m.embedder != nil {
			vec, err := m.embedder.EmbedEpisode(ctx, e)
			if err != nil {
				if m.log != nil {
					m.log.WithError(err).WithField("episode_id", e.ID.String()).Warn("background embedding computation failed")
				}
			} else {
				m.mu.Lock()
				e.Embedding = vec
				m.mu.Unlock()
				if err := m.store.StoreEpisode(ctx, e); err != nil && m.log != nil {
					m.log.WithError(err).Warn("failed to persist computed embedding")
				}
			}
		}

		if m.index != nil {
			entry := spatiotemporal.Entry{
				EpisodeID: e.ID,
				Domain:    e.Context.Domain,
				TaskType:  e.TaskType,
				Time:      e.StartTime,
			}
			if e.Reward != nil {
				entry.Reward = *e.Reward
			}
			if !m.index.TryInsert(entry) {
				m.index.Insert(entry) // falls back to a blocking insert
			}
		}

		for _, hook := range m.learning {
			hook.OnEpisodeCompleted(ctx, e)
		}
	}()
}

// GetEpisode reads episodeID, preferring the cache, falling back to
// the primary store, and finally the in-flight active set for
// episodes still being built.
func (m *Manager) GetEpisode(ctx context.Context, episodeID uuid.UUID) (*types.Episode, error) {
	if m.cache != nil {
		if e, ok, err := m.cache.GetEpisode(ctx, episodeID); err == nil && ok {
			return e, nil
		}
	}

	e, err := m.store.GetEpisode(ctx, episodeID)
	if err == nil {
		return e, nil
	}
	if !memerrors.Is(err, memerrors.CodeNotFound) {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if active, ok := m.active[episodeID]; ok {
		return active, nil
	}
	return nil, err
}

// mutableEpisode resolves an episode that is still eligible for
// LogStep/CompleteEpisode. An id that has already reached a terminal
// status is a ConcurrencyConflict, not a NotFound: the episode existed
// and was mutated, it just isn't mutable anymore.
func (m *Manager) mutableEpisode(episodeID uuid.UUID) (*types.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.active[episodeID]; ok {
		return e, nil
	}
	if _, ok := m.terminal[episodeID]; ok {
		return nil, memerrors.ConcurrencyConflict("episode is not in progress")
	}
	return nil, memerrors.NotFound("episode", episodeID.String())
}

// ActiveCount returns the number of in-progress episodes, for
// health_check/metrics reporting.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Shutdown waits for in-flight background fan-out goroutines to
// finish, up to the configured shutdown timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(m.cfg.ShutdownTimeout):
		return memerrors.Timeout("episode_manager_shutdown")
	case <-ctx.Done():
		return ctx.Err()
	}
}
