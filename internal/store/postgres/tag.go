package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

// AddTags attaches tags to an episode, creating or refreshing each
// tag's usage metadata.
func (s *Store) AddTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.querier(ctx)
		for tag := range tags {
			if _, err := q.ExecContext(ctx, `INSERT INTO episode_tags (episode_id, tag) VALUES ($1,$2)
				ON CONFLICT DO NOTHING`, episodeID, tag); err != nil {
				return memerrors.Storage("add_tag", err)
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO tag_metadata (tag, first_used, last_used, usage_count)
				VALUES ($1, now(), now(), 1)
				ON CONFLICT (tag) DO UPDATE SET last_used = now(), usage_count = tag_metadata.usage_count + 1
			`, tag); err != nil {
				return memerrors.Storage("upsert_tag_metadata", err)
			}
		}
		return nil
	})
}

// RemoveTags detaches tags from an episode. Tag metadata usage counts
// are left untouched; they track historical usage, not current
// attachment.
func (s *Store) RemoveTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	q := s.querier(ctx)
	for tag := range tags {
		if _, err := q.ExecContext(ctx, `DELETE FROM episode_tags WHERE episode_id = $1 AND tag = $2`, episodeID, tag); err != nil {
			return memerrors.Storage("remove_tag", err)
		}
	}
	return nil
}

// SetTags replaces an episode's full tag set.
func (s *Store) SetTags(ctx context.Context, episodeID string, tags map[string]struct{}) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.querier(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM episode_tags WHERE episode_id = $1`, episodeID); err != nil {
			return memerrors.Storage("clear_tags", err)
		}
		return s.AddTags(ctx, episodeID, tags)
	})
}

// GetTags returns an episode's current tag set.
func (s *Store) GetTags(ctx context.Context, episodeID string) (map[string]struct{}, error) {
	q := s.querier(ctx)
	var rows []string
	if err := q.SelectContext(ctx, &rows, `SELECT tag FROM episode_tags WHERE episode_id = $1`, episodeID); err != nil {
		return nil, memerrors.Storage("get_tags", err)
	}
	out := make(map[string]struct{}, len(rows))
	for _, t := range rows {
		out[t] = struct{}{}
	}
	return out, nil
}

// ListByTags returns episode ids matching the given tags, either
// requiring all of them (matchAll) or any of them.
func (s *Store) ListByTags(ctx context.Context, tags []string, matchAll bool) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	q := s.querier(ctx)

	if matchAll {
		var ids []string
		err := q.SelectContext(ctx, &ids, `
			SELECT episode_id FROM episode_tags WHERE tag = ANY($1)
			GROUP BY episode_id HAVING count(DISTINCT tag) = $2
		`, pq.Array(tags), len(tags))
		if err != nil {
			return nil, memerrors.Storage("list_by_tags_all", err)
		}
		return ids, nil
	}

	var ids []string
	err := q.SelectContext(ctx, &ids, `SELECT DISTINCT episode_id FROM episode_tags WHERE tag = ANY($1)`, pq.Array(tags))
	if err != nil {
		return nil, memerrors.Storage("list_by_tags_any", err)
	}
	return ids, nil
}

// GetAllTags returns usage metadata for every known tag.
func (s *Store) GetAllTags(ctx context.Context) ([]types.TagMetadata, error) {
	q := s.querier(ctx)
	type row struct {
		Tag        string    `db:"tag"`
		FirstUsed  time.Time `db:"first_used"`
		LastUsed   time.Time `db:"last_used"`
		UsageCount int       `db:"usage_count"`
	}
	var rows []row
	if err := q.SelectContext(ctx, &rows, `SELECT tag, first_used, last_used, usage_count FROM tag_metadata ORDER BY tag`); err != nil {
		return nil, memerrors.Storage("get_all_tags", err)
	}
	out := make([]types.TagMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.TagMetadata{Tag: r.Tag, FirstUsed: r.FirstUsed, LastUsed: r.LastUsed, UsageCount: r.UsageCount})
	}
	return out, nil
}

// TagStatistics aggregates tag usage across the store.
func (s *Store) TagStatistics(ctx context.Context) (store.TagStatistics, error) {
	all, err := s.GetAllTags(ctx)
	if err != nil {
		return store.TagStatistics{}, err
	}
	stats := store.TagStatistics{TotalTags: len(all)}
	for _, t := range all {
		stats.TotalUsages += t.UsageCount
		if t.UsageCount > stats.MostUsedCount {
			stats.MostUsedCount = t.UsageCount
			stats.MostUsedTag = t.Tag
		}
	}
	return stats, nil
}
