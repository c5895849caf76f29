// Package engine wires every component into the public facade
// described by spec.md §6/§4.14: episode lifecycle, hierarchical
// retrieval, pattern/heuristic queries, relationship and tag
// operations, and health/metrics reporting.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/infrastructure/metrics"
	"github.com/nexusmem/memengine/infrastructure/ratelimit"
	"github.com/nexusmem/memengine/infrastructure/resilience"
	"github.com/nexusmem/memengine/internal/batch"
	"github.com/nexusmem/memengine/internal/config"
	"github.com/nexusmem/memengine/internal/embedding"
	"github.com/nexusmem/memengine/internal/episode"
	"github.com/nexusmem/memengine/internal/heuristic"
	"github.com/nexusmem/memengine/internal/pattern"
	"github.com/nexusmem/memengine/internal/relationship"
	"github.com/nexusmem/memengine/internal/retrieval"
	"github.com/nexusmem/memengine/internal/scheduler"
	"github.com/nexusmem/memengine/internal/spatiotemporal"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/store/cache"
	"github.com/nexusmem/memengine/internal/store/postgres"
	"github.com/nexusmem/memengine/internal/store/querycache"
	"github.com/nexusmem/memengine/internal/store/resilient"
	"github.com/nexusmem/memengine/internal/tag"
	"github.com/nexusmem/memengine/internal/types"
	"github.com/nexusmem/memengine/internal/validation"
)

// Engine is the constructed, ready-to-serve memory engine: the single
// entry point cmd/memengine and tests build against.
type Engine struct {
	cfg *config.Config
	log *logging.Logger
	met *metrics.Metrics

	primary    store.Driver // resilient-wrapped postgres.Store
	cacheDB    *cache.Store
	queryCache *querycache.Cache

	episodes      *episode.Manager
	retriever     *retrieval.Retriever
	relationships *relationship.Service
	tags          *tag.Service
	extractor     *pattern.Extractor
	learner       *heuristic.Learner
	index         *spatiotemporal.Index
	batchWriter   *batch.Writer
	scheduler     *scheduler.Scheduler

	startedAt time.Time
}

// embeddingAdapter bridges embedding.Client into episode.Embedder,
// embedding the episode's task description plus its (just-computed)
// reflection and semantic summary.
type embeddingAdapter struct{ client *embedding.Client }

func (a embeddingAdapter) EmbedEpisode(ctx context.Context, e *types.Episode) ([]float32, error) {
	text := e.TaskDescription + " " + e.Reflection + " " + e.SemanticSummary
	return a.client.Embed(ctx, text)
}

// New constructs an Engine from cfg: dials the primary store, runs
// migrations, opens the embedded cache, wires the resilient wrapper,
// and builds every domain component on top, per spec.md §4.14's
// "constructed from config" operation.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Engine, error) {
	met := metrics.New("memengine")

	db, err := postgres.Open(ctx, cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("opening primary store: %w", err)
	}
	if err := postgres.Migrate(db.DB, postgres.MigrationsPath); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	primaryStore := postgres.New(db, 256)

	breaker := resilience.New(resilience.Config{
		MaxFailures: cfg.Circuit.FailureThreshold,
		Timeout:     cfg.Circuit.OpenTimeout,
		HalfOpenMax: cfg.Circuit.HalfOpenMax,
		OnStateChange: func(from, to resilience.State) {
			met.SetCircuitBreakerState("primary", int(to))
			log.LogCircuitStateChange(ctx, from.String(), to.String())
		},
	})
	resilientPrimary := resilient.New(primaryStore, breaker, resilience.DefaultRetryConfig())

	var cacheDB *cache.Store
	var epCache episode.EpisodeCache
	if cfg.Cache.Enable {
		cacheDB, err = cache.Open(cfg.Cache.Path, cfg.Cache.TTL, cfg.Cache.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("opening cache store: %w", err)
		}
		epCache = cacheDB
	}

	batchWriter := batch.New(batch.Config{
		Size:               cfg.Batch.Size,
		FlushInterval:      cfg.Batch.FlushInterval,
		FlushRetryAttempts: cfg.Batch.FlushRetryAttempts,
	}, resilientPrimary, log)

	index := spatiotemporal.New()

	var embedClient *embedding.Client
	var embedder episode.Embedder
	if cfg.Embedding.Enable {
		provider := embedding.NewLocalProvider(cfg.Embedding.Dimension)
		embedClient = embedding.New(provider, ratelimit.DefaultConfig(), cfg.Embedding.Timeout, 10*time.Minute)
		embedder = embeddingAdapter{client: embedClient}
	}

	valid := validation.New(validation.FromConfig(cfg.Limits))

	learner := heuristic.New(resilientPrimary, log)
	extractor := pattern.New(resilientPrimary, log, learner)

	episodeManager := episode.New(
		episode.Config{ActiveEpisodeLimit: cfg.ActiveEpisodeLimit},
		log,
		resilientPrimary,
		epCache,
		batchWriter,
		index,
		valid,
		episode.HeuristicReward{},
		episode.TemplateReflection{},
		episode.TemplateSummarizer{},
		embedder,
		[]episode.LearningHook{extractor},
	)

	retriever := retrieval.New(retrieval.Config{
		EnableHierarchical: cfg.Retrieval.EnableHierarchical,
		EnableDiversity:    cfg.Retrieval.EnableDiversity,
		DiversityLambda:    cfg.Retrieval.DiversityLambda,
		TemporalBias:       cfg.Retrieval.TemporalBias,
		MaxClusters:        cfg.Retrieval.MaxClusters,
	}, resilientPrimary, index, embedClient)

	var qc *querycache.Cache
	if cfg.QueryCache.Capacity > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
		qc = querycache.New(rdb, cfg.QueryCache.TTL, cfg.QueryCache.Capacity)
	}

	sched := scheduler.New(log)
	if qc != nil {
		sched.AddJob(ctx, scheduler.Job{
			Name: "query_cache_sweep",
			Spec: "@every 10m",
			Run: func(ctx context.Context) error {
				// Redis TTLs expire individual entries on their own; this
				// job runs on schedule but performs no invalidation.
				return nil
			},
		})
	}
	sched.Start()

	return &Engine{
		cfg:           cfg,
		log:           log,
		met:           met,
		primary:       resilientPrimary,
		cacheDB:       cacheDB,
		queryCache:    qc,
		episodes:      episodeManager,
		retriever:     retriever,
		relationships: relationship.New(resilientPrimary),
		tags:          tag.New(resilientPrimary),
		extractor:     extractor,
		learner:       learner,
		index:         index,
		batchWriter:   batchWriter,
		scheduler:     sched,
		startedAt:     time.Now(),
	}, nil
}

// StartEpisode begins a new episode.
func (e *Engine) StartEpisode(ctx context.Context, taskDescription string, taskType types.TaskType, taskCtx types.Context) (*types.Episode, error) {
	ep, err := e.episodes.StartEpisode(ctx, taskDescription, taskType, taskCtx)
	if err != nil {
		e.met.RecordError("episode", errCode(err))
		return nil, err
	}
	e.met.RecordEpisodeStarted(taskCtx.Domain, string(taskType))
	return ep, nil
}

// LogStep appends a step to an in-progress episode.
func (e *Engine) LogStep(ctx context.Context, episodeID uuid.UUID, step types.ExecutionStep) error {
	if err := e.episodes.LogStep(ctx, episodeID, step); err != nil {
		e.met.RecordError("episode", errCode(err))
		return err
	}
	return nil
}

// CompleteEpisode finalizes an episode and triggers the learning
// fan-out.
func (e *Engine) CompleteEpisode(ctx context.Context, episodeID uuid.UUID, outcome types.Outcome) (*types.Episode, error) {
	ep, err := e.episodes.CompleteEpisode(ctx, episodeID, outcome)
	if err != nil {
		e.met.RecordError("episode", errCode(err))
		return nil, err
	}
	e.met.RecordEpisodeCompleted(ep.Context.Domain, string(ep.TaskType), string(outcome.Kind))
	return ep, nil
}

// GetEpisode reads an episode by ID, cache-first.
func (e *Engine) GetEpisode(ctx context.Context, episodeID uuid.UUID) (*types.Episode, error) {
	return e.episodes.GetEpisode(ctx, episodeID)
}

// DeleteEpisode removes an episode from the primary store and evicts
// it from the spatiotemporal index.
func (e *Engine) DeleteEpisode(ctx context.Context, episodeID uuid.UUID) error {
	if err := e.primary.DeleteEpisode(ctx, episodeID); err != nil {
		return err
	}
	e.index.Remove(episodeID)
	return nil
}

// RetrieveContext runs the hierarchical retriever + MMR diversity
// selection for a new task.
func (e *Engine) RetrieveContext(ctx context.Context, queryText, domain string, taskType types.TaskType, k int, diversityLambda float64) ([]retrieval.Scored, error) {
	start := time.Now()
	results, err := e.retriever.RetrieveContext(ctx, queryText, domain, taskType, k, diversityLambda)
	if err != nil {
		e.met.RecordError("retrieval", errCode(err))
		return nil, err
	}
	e.met.RecordRetrieval(domain, len(results), time.Since(start))
	return results, nil
}

// ListPatterns returns patterns mined for (domain, taskType).
func (e *Engine) ListPatterns(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Pattern, error) {
	return e.primary.ListPatterns(ctx, domain, taskType)
}

// ListHeuristics returns heuristics promoted for (domain, taskType).
func (e *Engine) ListHeuristics(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Heuristic, error) {
	return e.primary.ListHeuristics(ctx, domain, taskType)
}

// Relationships exposes the relationship graph service.
func (e *Engine) Relationships() *relationship.Service { return e.relationships }

// Tags exposes the tag service.
func (e *Engine) Tags() *tag.Service { return e.tags }

// HealthCheck reports the engine's current operational status,
// including host resource pressure so an operator can distinguish a
// slow primary store from a starved host.
func (e *Engine) HealthCheck(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"active_episodes": e.episodes.ActiveCount(),
		"uptime_seconds":  time.Since(e.startedAt).Seconds(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		health["memory_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		health["cpu_used_percent"] = pct[0]
	}

	return health
}

// Shutdown drains the engine in reverse construction order: stop the
// scheduler, let in-flight episode fan-out finish (bounded), close
// the cache, close the primary pool.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.scheduler.Stop()
	if err := e.episodes.Shutdown(ctx); err != nil {
		e.log.WithError(err).Warn("episode manager shutdown did not complete cleanly")
	}
	if e.cacheDB != nil {
		e.cacheDB.Close()
	}
	return e.primary.Close()
}

func errCode(err error) string {
	if me := memerrors.AsMemoryError(err); me != nil {
		return string(me.Code)
	}
	return "Unknown"
}
