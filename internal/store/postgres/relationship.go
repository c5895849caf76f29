package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

type relationshipRow struct {
	ID          string    `db:"id"`
	FromEpisode string    `db:"from_episode"`
	ToEpisode   string    `db:"to_episode"`
	Type        string    `db:"type"`
	Strength    float64   `db:"strength"`
	CreatedAt   time.Time `db:"created_at"`
	Metadata    []byte    `db:"metadata"`
}

func rowToRelationship(row relationshipRow) (*types.Relationship, error) {
	var meta map[string]interface{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return nil, memerrors.Serialization("relationship.metadata", err)
		}
	}
	return &types.Relationship{
		ID:          row.ID,
		FromEpisode: row.FromEpisode,
		ToEpisode:   row.ToEpisode,
		Type:        types.RelationshipType(row.Type),
		Strength:    row.Strength,
		CreatedAt:   row.CreatedAt,
		Metadata:    meta,
	}, nil
}

// AddRelationship inserts a typed edge, rejecting it (without writing)
// if the edge's type requires acyclicity and would close a cycle, per
// spec.md §4.11.
func (s *Store) AddRelationship(ctx context.Context, r *types.Relationship) error {
	if types.AcyclicTypes[r.Type] {
		ok, path, err := s.ValidateNoCycle(ctx, r.FromEpisode, r.ToEpisode, r.Type)
		if err != nil {
			return err
		}
		if !ok {
			return memerrors.InvalidInput("relationship", "would introduce a cycle").
				WithDetails("cycle_path", path)
		}
	}

	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return memerrors.Serialization("relationship.metadata", err)
	}

	q := s.querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO episode_relationships (id, from_episode, to_episode, type, strength, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (from_episode, to_episode, type) DO UPDATE SET strength = EXCLUDED.strength
	`, r.ID, r.FromEpisode, r.ToEpisode, string(r.Type), r.Strength, metaJSON)
	if err != nil {
		return memerrors.Storage("add_relationship", err)
	}
	return nil
}

// RemoveRelationship deletes an edge by id.
func (s *Store) RemoveRelationship(ctx context.Context, id string) error {
	q := s.querier(ctx)
	res, err := q.ExecContext(ctx, `DELETE FROM episode_relationships WHERE id = $1`, id)
	if err != nil {
		return memerrors.Storage("remove_relationship", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerrors.NotFound("relationship", id)
	}
	return nil
}

// GetRelationships returns edges touching episodeID, filtered by
// direction, an optional type, and a minimum strength.
func (s *Store) GetRelationships(ctx context.Context, episodeID string, dir store.RelationshipDirection, relType *types.RelationshipType, minStrength float64) ([]*types.Relationship, error) {
	q := s.querier(ctx)

	var where string
	switch dir {
	case store.DirectionOutgoing:
		where = "from_episode = $1"
	case store.DirectionIncoming:
		where = "to_episode = $1"
	default:
		where = "(from_episode = $1 OR to_episode = $1)"
	}
	query := fmt.Sprintf(`SELECT id, from_episode, to_episode, type, strength, created_at, metadata
		FROM episode_relationships WHERE %s AND strength >= $2`, where)
	args := []interface{}{episodeID, minStrength}
	if relType != nil {
		query += " AND type = $3"
		args = append(args, string(*relType))
	}

	var rows []relationshipRow
	if err := q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, memerrors.Storage("get_relationships", err)
	}

	out := make([]*types.Relationship, 0, len(rows))
	for _, r := range rows {
		rel, err := rowToRelationship(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// FindRelated performs a bounded BFS over outgoing edges up to
// maxDepth, per spec.md §4.11's max_depth <= 5 bound.
func (s *Store) FindRelated(ctx context.Context, episodeID string, maxDepth int, minStrength float64) ([]*types.Relationship, error) {
	if maxDepth > 5 {
		maxDepth = 5
	}

	var out []*types.Relationship
	visited := map[string]bool{episodeID: true}
	frontier := []string{episodeID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := s.GetRelationships(ctx, id, store.DirectionOutgoing, nil, minStrength)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				out = append(out, e)
				if !visited[e.ToEpisode] {
					visited[e.ToEpisode] = true
					next = append(next, e.ToEpisode)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// CheckExists reports whether an edge of the given type already
// connects from -> to.
func (s *Store) CheckExists(ctx context.Context, from, to string, relType types.RelationshipType) (bool, error) {
	q := s.querier(ctx)
	var count int
	err := q.QueryRowxContext(ctx, `SELECT count(*) FROM episode_relationships
		WHERE from_episode = $1 AND to_episode = $2 AND type = $3`, from, to, string(relType)).Scan(&count)
	if err != nil {
		return false, memerrors.Storage("check_exists", err)
	}
	return count > 0, nil
}

// DependencyGraph returns, for each of ids (capped at maxNodes), its
// outgoing relationships of the given types, including edges whose
// target is not in ids.
func (s *Store) DependencyGraph(ctx context.Context, ids []string, relTypes []types.RelationshipType, maxNodes int) (map[string][]*types.Relationship, error) {
	if maxNodes <= 0 || maxNodes > 500 {
		maxNodes = 500
	}
	if len(ids) > maxNodes {
		ids = ids[:maxNodes]
	}

	out := make(map[string][]*types.Relationship, len(ids))
	for _, id := range ids {
		edges, err := s.GetRelationships(ctx, id, store.DirectionOutgoing, nil, 0)
		if err != nil {
			return nil, err
		}
		if len(relTypes) > 0 {
			edges = filterByTypes(edges, relTypes)
		}
		out[id] = edges
	}
	return out, nil
}

func filterByTypes(edges []*types.Relationship, relTypes []types.RelationshipType) []*types.Relationship {
	allowed := make(map[types.RelationshipType]bool, len(relTypes))
	for _, t := range relTypes {
		allowed[t] = true
	}
	out := make([]*types.Relationship, 0, len(edges))
	for _, e := range edges {
		if allowed[e.Type] {
			out = append(out, e)
		}
	}
	return out
}

// ValidateNoCycle reports whether adding edge from->to of relType
// would close a cycle in that type's induced subgraph, by checking
// whether "to" can already reach "from". Returns the path if a cycle
// would form.
func (s *Store) ValidateNoCycle(ctx context.Context, from, to string, relType types.RelationshipType) (bool, []string, error) {
	visited := map[string]bool{to: true}
	frontier := []string{to}
	parent := map[string]string{}

	for depth := 0; depth < 500 && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			if id == from {
				// Walk the parent chain from "from" back to "to"; this
				// yields [from, ..., to] in discovery order, which is the
				// reverse of the path the new edge would close. Reverse it
				// to get the forward to->from walk, then prepend "from" so
				// the returned path reads as the full cycle the new edge
				// from->to would create, closing back on itself.
				forward := []string{from}
				cur := from
				for cur != to {
					p, ok := parent[cur]
					if !ok {
						break
					}
					forward = append(forward, p)
					cur = p
				}
				for i, j := 0, len(forward)-1; i < j; i, j = i+1, j-1 {
					forward[i], forward[j] = forward[j], forward[i]
				}
				path := append([]string{from}, forward...)
				return false, path, nil
			}
			edges, err := s.GetRelationships(ctx, id, store.DirectionOutgoing, &relType, 0)
			if err != nil {
				return false, nil, err
			}
			for _, e := range edges {
				if !visited[e.ToEpisode] {
					visited[e.ToEpisode] = true
					parent[e.ToEpisode] = id
					next = append(next, e.ToEpisode)
				}
			}
		}
		frontier = next
	}
	return true, nil, nil
}

// TopologicalOrder computes a Kahn's-algorithm ordering of ids over
// edges of relType, returning each node's depth level and the edges
// considered. If a cycle keeps some ids from being ordered, the levels
// cover only the ids that could be placed and the edges returned are
// the ones between the remaining ids.
func (s *Store) TopologicalOrder(ctx context.Context, ids []string, relType types.RelationshipType) ([]store.TopoLevel, []*types.Relationship, error) {
	inDegree := make(map[string]int, len(ids))
	adj := make(map[string][]string, len(ids))
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inDegree[id] = 0
		idSet[id] = true
	}

	var allEdges []*types.Relationship
	for _, id := range ids {
		edges, err := s.GetRelationships(ctx, id, store.DirectionOutgoing, &relType, 0)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range edges {
			if !idSet[e.ToEpisode] {
				continue
			}
			adj[e.FromEpisode] = append(adj[e.FromEpisode], e.ToEpisode)
			inDegree[e.ToEpisode]++
			allEdges = append(allEdges, e)
		}
	}

	var queue []string
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var levels []store.TopoLevel
	depth := 0
	for len(queue) > 0 {
		var next []string
		for _, id := range queue {
			levels = append(levels, store.TopoLevel{EpisodeID: id, Depth: depth})
			for _, child := range adj[id] {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		queue = next
		depth++
	}

	if len(levels) != len(ids) {
		placed := make(map[string]bool, len(levels))
		for _, l := range levels {
			placed[l.EpisodeID] = true
		}
		var offending []*types.Relationship
		for _, e := range allEdges {
			if !placed[e.FromEpisode] && !placed[e.ToEpisode] {
				offending = append(offending, e)
			}
		}
		return levels, offending, nil
	}

	return levels, allEdges, nil
}
