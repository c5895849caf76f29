package postgres

import (
	"context"
	"database/sql"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/types"
)

type heuristicRow struct {
	ID           string  `db:"id"`
	Condition    string  `db:"condition"`
	Action       string  `db:"action"`
	Confidence   float64 `db:"confidence"`
	SupportCount int     `db:"support_count"`
	Domain       string  `db:"domain"`
	TaskType     string  `db:"task_type"`
}

// UpsertHeuristic inserts or updates a promoted heuristic.
func (s *Store) UpsertHeuristic(ctx context.Context, h *types.Heuristic) error {
	q := s.querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO heuristics (id, condition, action, confidence, support_count, domain, task_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			support_count = EXCLUDED.support_count
	`, h.ID, h.Condition, h.Action, h.Confidence, h.SupportCount, h.Domain, string(h.TaskType))
	if err != nil {
		return memerrors.Storage("upsert_heuristic", err)
	}
	return nil
}

// GetHeuristic loads one heuristic by id.
func (s *Store) GetHeuristic(ctx context.Context, id string) (*types.Heuristic, error) {
	q := s.querier(ctx)
	var row heuristicRow
	err := q.QueryRowxContext(ctx, `SELECT id, condition, action, confidence, support_count, domain, task_type
		FROM heuristics WHERE id = $1`, id).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, memerrors.NotFound("heuristic", id)
	}
	if err != nil {
		return nil, memerrors.Storage("get_heuristic", err)
	}
	return rowToHeuristic(row), nil
}

// ListHeuristics returns every heuristic for a domain/task_type pair.
func (s *Store) ListHeuristics(ctx context.Context, domain string, taskType types.TaskType) ([]*types.Heuristic, error) {
	q := s.querier(ctx)
	var rows []heuristicRow
	err := q.SelectContext(ctx, &rows, `SELECT id, condition, action, confidence, support_count, domain, task_type
		FROM heuristics WHERE domain = $1 AND task_type = $2`, domain, string(taskType))
	if err != nil {
		return nil, memerrors.Storage("list_heuristics", err)
	}
	out := make([]*types.Heuristic, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToHeuristic(r))
	}
	return out, nil
}

func rowToHeuristic(row heuristicRow) *types.Heuristic {
	return &types.Heuristic{
		ID:           row.ID,
		Condition:    row.Condition,
		Action:       row.Action,
		Confidence:   row.Confidence,
		SupportCount: row.SupportCount,
		Domain:       row.Domain,
		TaskType:     types.TaskType(row.TaskType),
	}
}
