package cache

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/types"
)

const (
	nsEpisodes   = "episodes"
	nsPatterns   = "patterns"
	nsHeuristics = "heuristics"
)

// GetEpisode reads an episode from the episodes namespace.
func (s *Store) GetEpisode(_ context.Context, id uuid.UUID) (*types.Episode, bool, error) {
	raw, ok, err := s.Get(nsEpisodes, id.String())
	if err != nil || !ok {
		return nil, ok, err
	}
	var e types.Episode
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, memerrors.Serialization("episode", err)
	}
	return &e, true, nil
}

// PutEpisode writes an episode into the episodes namespace.
func (s *Store) PutEpisode(_ context.Context, e *types.Episode) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return memerrors.Serialization("episode", err)
	}
	return s.Set(nsEpisodes, e.ID.String(), raw)
}

// DeleteEpisode removes an episode from the episodes namespace.
func (s *Store) DeleteEpisode(_ context.Context, id uuid.UUID) error {
	return s.Delete(nsEpisodes, id.String())
}

// GetPattern reads a pattern from the patterns namespace.
func (s *Store) GetPattern(_ context.Context, id string) (*types.Pattern, bool, error) {
	raw, ok, err := s.Get(nsPatterns, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	var p types.Pattern
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, memerrors.Serialization("pattern", err)
	}
	return &p, true, nil
}

// PutPattern writes a pattern into the patterns namespace.
func (s *Store) PutPattern(_ context.Context, p *types.Pattern) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return memerrors.Serialization("pattern", err)
	}
	return s.Set(nsPatterns, p.ID, raw)
}

// GetHeuristic reads a heuristic from the heuristics namespace.
func (s *Store) GetHeuristic(_ context.Context, id string) (*types.Heuristic, bool, error) {
	raw, ok, err := s.Get(nsHeuristics, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	var h types.Heuristic
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, false, memerrors.Serialization("heuristic", err)
	}
	return &h, true, nil
}

// PutHeuristic writes a heuristic into the heuristics namespace.
func (s *Store) PutHeuristic(_ context.Context, h *types.Heuristic) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return memerrors.Serialization("heuristic", err)
	}
	return s.Set(nsHeuristics, h.ID, raw)
}
