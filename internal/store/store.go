// Package store defines the tagged-interface capability sets the
// engine dispatches storage operations against, per spec.md §9's
// "dynamic dispatch on storage backend" design note: a primary
// implementation and a resilient wrapper that composes another
// implementation behind a circuit breaker. The embedded cache
// (internal/store/cache) has its own typed methods and implements none
// of these interfaces.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/types"
)

// SimilarityMatch is one result from a vector similarity search.
type SimilarityMatch struct {
	EpisodeID uuid.UUID
	Score     float64
}

// MetadataFilter narrows a similarity or metadata search to episodes
// matching a context/metadata key-value pair, domain, or task type.
type MetadataFilter struct {
	Domain   string
	TaskType types.TaskType
	Key      string
	Value    string
}

// EpisodeStore is the capability set for episode persistence, per
// spec.md §4.2's public operations. Implemented by the primary
// (Postgres) driver and the resilient wrapper around it.
type EpisodeStore interface {
	StoreEpisode(ctx context.Context, e *types.Episode) error
	GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, error)
	StoreEpisodesBatch(ctx context.Context, episodes []*types.Episode) error
	GetEpisodesBatch(ctx context.Context, ids []uuid.UUID) ([]*types.Episode, error)
	QueryEpisodesByMetadata(ctx context.Context, key, value string) ([]*types.Episode, error)
	SimilaritySearch(ctx context.Context, queryVec []float32, k int, filter MetadataFilter) ([]SimilarityMatch, error)
	DeleteEpisode(ctx context.Context, id uuid.UUID) error
}

// PatternStore is the capability set for pattern persistence, sharing
// the episodes/patterns/heuristics cache namespaces from spec.md §4.3.
type PatternStore interface {
	UpsertPattern(ctx context.Context, p *types.Pattern) error
	GetPattern(ctx context.Context, id string) (*types.Pattern, error)
	ListPatterns(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Pattern, error)
}

// HeuristicStore is the capability set for heuristic persistence.
type HeuristicStore interface {
	UpsertHeuristic(ctx context.Context, h *types.Heuristic) error
	GetHeuristic(ctx context.Context, id string) (*types.Heuristic, error)
	ListHeuristics(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Heuristic, error)
}

// RelationshipDirection constrains a relationship query to outgoing,
// incoming, or both directions.
type RelationshipDirection int

const (
	DirectionOutgoing RelationshipDirection = iota
	DirectionIncoming
	DirectionBoth
)

// TopoLevel is one episode's position in a topological ordering.
type TopoLevel struct {
	EpisodeID string
	Depth     int
}

// RelationshipStore is the capability set for the typed relationship
// graph, per spec.md §4.2's relationship ops and §4.11's bounds.
// Primary-only: there is no cache namespace for relationships.
type RelationshipStore interface {
	AddRelationship(ctx context.Context, r *types.Relationship) error
	RemoveRelationship(ctx context.Context, id string) error
	GetRelationships(ctx context.Context, episodeID string, dir RelationshipDirection, relType *types.RelationshipType, minStrength float64) ([]*types.Relationship, error)
	FindRelated(ctx context.Context, episodeID string, maxDepth int, minStrength float64) ([]*types.Relationship, error)
	CheckExists(ctx context.Context, from, to string, relType types.RelationshipType) (bool, error)
	DependencyGraph(ctx context.Context, ids []string, types_ []types.RelationshipType, maxNodes int) (map[string][]*types.Relationship, error)
	ValidateNoCycle(ctx context.Context, from, to string, relType types.RelationshipType) (bool, []string, error)
	TopologicalOrder(ctx context.Context, ids []string, relType types.RelationshipType) ([]TopoLevel, []*types.Relationship, error)
}

// TagStatistics reports aggregate tag usage.
type TagStatistics struct {
	TotalTags     int
	TotalUsages   int
	MostUsedTag   string
	MostUsedCount int
}

// TagStore is the capability set for normalized tag management, per
// spec.md §4.2/§4.12. Primary-only.
type TagStore interface {
	AddTags(ctx context.Context, episodeID string, tags map[string]struct{}) error
	RemoveTags(ctx context.Context, episodeID string, tags map[string]struct{}) error
	SetTags(ctx context.Context, episodeID string, tags map[string]struct{}) error
	GetTags(ctx context.Context, episodeID string) (map[string]struct{}, error)
	ListByTags(ctx context.Context, tags []string, matchAll bool) ([]string, error)
	GetAllTags(ctx context.Context) ([]types.TagMetadata, error)
	TagStatistics(ctx context.Context) (TagStatistics, error)
}

// Driver is the full capability set a primary store implementation
// exposes; postgres.Store and resilient.Wrapper implement it.
type Driver interface {
	EpisodeStore
	PatternStore
	HeuristicStore
	RelationshipStore
	TagStore

	Close() error
}

// PoolStats reports the primary connection pool's current shape, used
// by health_check and metrics.SetStorageConnections.
type PoolStats struct {
	Open        int
	Idle        int
	InUse       int
	WaitCount   int64
	WaitTime    time.Duration
}
