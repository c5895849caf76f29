// Package resilient wraps a store.Driver behind a circuit breaker and
// retry policy, implementing the same tagged interface so callers
// cannot tell the two apart, per spec.md §9's "the resilient wrapper
// is a third implementation composing another" design note.
package resilient

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/infrastructure/resilience"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

// Wrapper composes an inner store.Driver with a circuit breaker and
// retry policy.
type Wrapper struct {
	inner   store.Driver
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// New wraps inner with breaker, retrying each call per retryCfg.
func New(inner store.Driver, breaker *resilience.CircuitBreaker, retryCfg resilience.RetryConfig) *Wrapper {
	return &Wrapper{inner: inner, breaker: breaker, retry: retryCfg}
}

func (w *Wrapper) call(ctx context.Context, fn func() error) error {
	return w.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, w.retry, fn)
	})
}

func (w *Wrapper) StoreEpisode(ctx context.Context, e *types.Episode) error {
	return w.call(ctx, func() error { return w.inner.StoreEpisode(ctx, e) })
}

func (w *Wrapper) GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, error) {
	var out *types.Episode
	err := w.call(ctx, func() error {
		e, err := w.inner.GetEpisode(ctx, id)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (w *Wrapper) StoreEpisodesBatch(ctx context.Context, episodes []*types.Episode) error {
	return w.call(ctx, func() error { return w.inner.StoreEpisodesBatch(ctx, episodes) })
}

func (w *Wrapper) GetEpisodesBatch(ctx context.Context, ids []uuid.UUID) ([]*types.Episode, error) {
	var out []*types.Episode
	err := w.call(ctx, func() error {
		res, err := w.inner.GetEpisodesBatch(ctx, ids)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) QueryEpisodesByMetadata(ctx context.Context, key, value string) ([]*types.Episode, error) {
	var out []*types.Episode
	err := w.call(ctx, func() error {
		res, err := w.inner.QueryEpisodesByMetadata(ctx, key, value)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) SimilaritySearch(ctx context.Context, queryVec []float32, k int, filter store.MetadataFilter) ([]store.SimilarityMatch, error) {
	var out []store.SimilarityMatch
	err := w.call(ctx, func() error {
		res, err := w.inner.SimilaritySearch(ctx, queryVec, k, filter)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) DeleteEpisode(ctx context.Context, id uuid.UUID) error {
	return w.call(ctx, func() error { return w.inner.DeleteEpisode(ctx, id) })
}

func (w *Wrapper) UpsertPattern(ctx context.Context, p *types.Pattern) error {
	return w.call(ctx, func() error { return w.inner.UpsertPattern(ctx, p) })
}

func (w *Wrapper) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	var out *types.Pattern
	err := w.call(ctx, func() error {
		p, err := w.inner.GetPattern(ctx, id)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (w *Wrapper) ListPatterns(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Pattern, error) {
	var out []*types.Pattern
	err := w.call(ctx, func() error {
		res, err := w.inner.ListPatterns(ctx, domain, taskType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) UpsertHeuristic(ctx context.Context, h *types.Heuristic) error {
	return w.call(ctx, func() error { return w.inner.UpsertHeuristic(ctx, h) })
}

func (w *Wrapper) GetHeuristic(ctx context.Context, id string) (*types.Heuristic, error) {
	var out *types.Heuristic
	err := w.call(ctx, func() error {
		h, err := w.inner.GetHeuristic(ctx, id)
		if err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}

func (w *Wrapper) ListHeuristics(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Heuristic, error) {
	var out []*types.Heuristic
	err := w.call(ctx, func() error {
		res, err := w.inner.ListHeuristics(ctx, domain, taskType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) AddRelationship(ctx context.Context, r *types.Relationship) error {
	return w.call(ctx, func() error { return w.inner.AddRelationship(ctx, r) })
}

func (w *Wrapper) RemoveRelationship(ctx context.Context, id string) error {
	return w.call(ctx, func() error { return w.inner.RemoveRelationship(ctx, id) })
}

func (w *Wrapper) GetRelationships(ctx context.Context, episodeID string, dir store.RelationshipDirection, relType *types.RelationshipType, minStrength float64) ([]*types.Relationship, error) {
	var out []*types.Relationship
	err := w.call(ctx, func() error {
		res, err := w.inner.GetRelationships(ctx, episodeID, dir, relType, minStrength)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) FindRelated(ctx context.Context, episodeID string, maxDepth int, minStrength float64) ([]*types.Relationship, error) {
	var out []*types.Relationship
	err := w.call(ctx, func() error {
		res, err := w.inner.FindRelated(ctx, episodeID, maxDepth, minStrength)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) CheckExists(ctx context.Context, from, to string, relType types.RelationshipType) (bool, error) {
	var out bool
	err := w.call(ctx, func() error {
		res, err := w.inner.CheckExists(ctx, from, to, relType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) DependencyGraph(ctx context.Context, ids []string, relTypes []types.RelationshipType, maxNodes int) (map[string][]*types.Relationship, error) {
	var out map[string][]*types.Relationship
	err := w.call(ctx, func() error {
		res, err := w.inner.DependencyGraph(ctx, ids, relTypes, maxNodes)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) ValidateNoCycle(ctx context.Context, from, to string, relType types.RelationshipType) (bool, []string, error) {
	var okOut bool
	var pathOut []string
	err := w.call(ctx, func() error {
		ok, path, err := w.inner.ValidateNoCycle(ctx, from, to, relType)
		if err != nil {
			return err
		}
		okOut, pathOut = ok, path
		return nil
	})
	return okOut, pathOut, err
}

func (w *Wrapper) TopologicalOrder(ctx context.Context, ids []string, relType types.RelationshipType) ([]store.TopoLevel, []*types.Relationship, error) {
	var levels []store.TopoLevel
	var edges []*types.Relationship
	err := w.call(ctx, func() error {
		l, e, err := w.inner.TopologicalOrder(ctx, ids, relType)
		if err != nil {
			return err
		}
		levels, edges = l, e
		return nil
	})
	return levels, edges, err
}

func (w *Wrapper) AddTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	return w.call(ctx, func() error { return w.inner.AddTags(ctx, episodeID, tags) })
}

func (w *Wrapper) RemoveTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	return w.call(ctx, func() error { return w.inner.RemoveTags(ctx, episodeID, tags) })
}

func (w *Wrapper) SetTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	return w.call(ctx, func() error { return w.inner.SetTags(ctx, episodeID, tags) })
}

func (w *Wrapper) GetTags(ctx context.Context, episodeID string) (map[string]struct{}, error) {
	var out map[string]struct{}
	err := w.call(ctx, func() error {
		res, err := w.inner.GetTags(ctx, episodeID)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) ListByTags(ctx context.Context, tags []string, matchAll bool) ([]string, error) {
	var out []string
	err := w.call(ctx, func() error {
		res, err := w.inner.ListByTags(ctx, tags, matchAll)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) GetAllTags(ctx context.Context) ([]types.TagMetadata, error) {
	var out []types.TagMetadata
	err := w.call(ctx, func() error {
		res, err := w.inner.GetAllTags(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) TagStatistics(ctx context.Context) (store.TagStatistics, error) {
	var out store.TagStatistics
	err := w.call(ctx, func() error {
		res, err := w.inner.TagStatistics(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (w *Wrapper) Close() error {
	return w.inner.Close()
}
