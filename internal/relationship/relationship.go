// Package relationship is the validating service layer in front of
// store.RelationshipStore, exposing the episode relationship-graph
// operations from spec.md §4.11/§6: add/remove/query, bounded related-
// episode traversal, cycle-safe dependency graphs, and topological
// ordering.
package relationship

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
	"github.com/nexusmem/memengine/internal/validation"
)

// MaxDepth and MaxNodes bound traversal and dependency-graph size, per
// spec.md §4.11.
const (
	MaxDepth = 5
	MaxNodes = 500
)

// Service validates and forwards relationship-graph operations to a
// store.RelationshipStore (the primary driver or a resilient wrapper
// around it).
type Service struct {
	store store.RelationshipStore
}

// New creates a Service bound to s.
func New(s store.RelationshipStore) *Service {
	return &Service{store: s}
}

// Add validates and persists a new relationship, rejecting self-loops,
// unknown relationship types, out-of-range strengths, and proposed
// edges that would introduce a cycle among the acyclic edge types.
func (svc *Service) Add(ctx context.Context, from, to uuid.UUID, relType types.RelationshipType, strength float64, metadata map[string]interface{}) (*types.Relationship, error) {
	fromStr, toStr := from.String(), to.String()
	if err := validation.RelationshipEndpoints(fromStr, toStr); err != nil {
		return nil, err
	}
	if err := validation.RelationshipType(relType); err != nil {
		return nil, err
	}
	if err := validation.Strength(strength); err != nil {
		return nil, err
	}

	r := &types.Relationship{
		ID:          uuid.New().String(),
		FromEpisode: fromStr,
		ToEpisode:   toStr,
		Type:        relType,
		Strength:    strength,
		CreatedAt:   time.Now(),
		Metadata:    metadata,
	}
	if err := svc.store.AddRelationship(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Remove deletes a relationship by ID.
func (svc *Service) Remove(ctx context.Context, id string) error {
	return svc.store.RemoveRelationship(ctx, id)
}

// Get returns episodeID's relationships in the given direction, typed
// and strength filters optional.
func (svc *Service) Get(ctx context.Context, episodeID uuid.UUID, dir store.RelationshipDirection, relType *types.RelationshipType, minStrength float64) ([]*types.Relationship, error) {
	return svc.store.GetRelationships(ctx, episodeID.String(), dir, relType, minStrength)
}

// FindRelated performs a bounded breadth-first traversal from
// episodeID, clamping maxDepth to MaxDepth.
func (svc *Service) FindRelated(ctx context.Context, episodeID uuid.UUID, maxDepth int, minStrength float64) ([]*types.Relationship, error) {
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	return svc.store.FindRelated(ctx, episodeID.String(), maxDepth, minStrength)
}

// Exists reports whether a (from, to, type) edge is already present.
func (svc *Service) Exists(ctx context.Context, from, to uuid.UUID, relType types.RelationshipType) (bool, error) {
	return svc.store.CheckExists(ctx, from.String(), to.String(), relType)
}

// DependencyGraph returns each id's outgoing relationships restricted
// to relTypes (targets outside ids included), clamping maxNodes to
// MaxNodes.
func (svc *Service) DependencyGraph(ctx context.Context, ids []uuid.UUID, relTypes []types.RelationshipType, maxNodes int) (map[string][]*types.Relationship, error) {
	if maxNodes <= 0 || maxNodes > MaxNodes {
		maxNodes = MaxNodes
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	return svc.store.DependencyGraph(ctx, strIDs, relTypes, maxNodes)
}

// ValidateNoCycle reports whether adding a (from, to, relType) edge
// would introduce a cycle, returning the offending path if so.
func (svc *Service) ValidateNoCycle(ctx context.Context, from, to uuid.UUID, relType types.RelationshipType) (bool, []string, error) {
	return svc.store.ValidateNoCycle(ctx, from.String(), to.String(), relType)
}

// TopologicalOrder returns ids' topological depth levels restricted to
// relType, plus the edges considered. When a cycle keeps some ids from
// being ordered, the levels cover only the ids that could be placed and
// the edges are the ones between the remaining ids.
func (svc *Service) TopologicalOrder(ctx context.Context, ids []uuid.UUID, relType types.RelationshipType) ([]store.TopoLevel, []*types.Relationship, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	return svc.store.TopologicalOrder(ctx, strIDs, relType)
}
