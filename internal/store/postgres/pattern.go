package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/types"
)

type patternRow struct {
	ID               string    `db:"id"`
	ToolSequence     []byte    `db:"tool_sequence"`
	TaskType         string    `db:"task_type"`
	Domain           string    `db:"domain"`
	ContextSignature string    `db:"context_signature"`
	OccurrenceCount  int       `db:"occurrence_count"`
	SuccessRate      float64   `db:"success_rate"`
	Effectiveness    float64   `db:"effectiveness"`
	FirstSeen        time.Time `db:"first_seen"`
	LastSeen         time.Time `db:"last_seen"`
	LastUpdated      time.Time `db:"last_updated"`
}

// UpsertPattern inserts or updates a mined tool-sequence pattern.
func (s *Store) UpsertPattern(ctx context.Context, p *types.Pattern) error {
	q := s.querier(ctx)

	seqJSON, err := json.Marshal(p.ToolSequence)
	if err != nil {
		return memerrors.Serialization("pattern.tool_sequence", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO patterns (id, tool_sequence, task_type, domain, context_signature,
			occurrence_count, success_rate, effectiveness, first_seen, last_seen, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (id) DO UPDATE SET
			occurrence_count = EXCLUDED.occurrence_count,
			success_rate = EXCLUDED.success_rate,
			effectiveness = EXCLUDED.effectiveness,
			last_seen = EXCLUDED.last_seen,
			last_updated = now()
	`, p.ID, seqJSON, string(p.TaskType), p.Domain, p.ContextSignature,
		p.OccurrenceCount, p.SuccessRate, p.Effectiveness, p.FirstSeen, p.LastSeen)
	if err != nil {
		return memerrors.Storage("upsert_pattern", err)
	}
	return nil
}

// GetPattern loads one pattern by id.
func (s *Store) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	q := s.querier(ctx)
	var row patternRow
	err := q.QueryRowxContext(ctx, `SELECT id, tool_sequence, task_type, domain, context_signature,
		occurrence_count, success_rate, effectiveness, first_seen, last_seen, last_updated
		FROM patterns WHERE id = $1`, id).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, memerrors.NotFound("pattern", id)
	}
	if err != nil {
		return nil, memerrors.Storage("get_pattern", err)
	}
	return rowToPattern(row)
}

// ListPatterns returns every pattern for a domain/task_type pair.
func (s *Store) ListPatterns(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Pattern, error) {
	q := s.querier(ctx)
	var rows []patternRow
	err := q.SelectContext(ctx, &rows, `SELECT id, tool_sequence, task_type, domain, context_signature,
		occurrence_count, success_rate, effectiveness, first_seen, last_seen, last_updated
		FROM patterns WHERE domain = $1 AND task_type = $2`, domain, string(taskType))
	if err != nil {
		return nil, memerrors.Storage("list_patterns", err)
	}

	out := make([]*types.Pattern, 0, len(rows))
	for _, r := range rows {
		p, err := rowToPattern(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func rowToPattern(row patternRow) (*types.Pattern, error) {
	var seq []string
	if err := json.Unmarshal(row.ToolSequence, &seq); err != nil {
		return nil, memerrors.Serialization("pattern.tool_sequence", err)
	}
	return &types.Pattern{
		ID:               row.ID,
		ToolSequence:     seq,
		TaskType:         types.TaskType(row.TaskType),
		Domain:           row.Domain,
		ContextSignature: row.ContextSignature,
		OccurrenceCount:  row.OccurrenceCount,
		SuccessRate:      row.SuccessRate,
		Effectiveness:    row.Effectiveness,
		FirstSeen:        row.FirstSeen,
		LastSeen:         row.LastSeen,
		LastUpdated:      row.LastUpdated,
	}, nil
}
