package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

type episodeRow struct {
	ID              uuid.UUID      `db:"id"`
	TaskDescription string         `db:"task_description"`
	TaskType        string         `db:"task_type"`
	Context         []byte         `db:"context"`
	Status          string         `db:"status"`
	StartTime       time.Time      `db:"start_time"`
	EndTime         sql.NullTime   `db:"end_time"`
	Outcome         []byte         `db:"outcome"`
	Reward          sql.NullFloat64 `db:"reward"`
	Reflection      string         `db:"reflection"`
	SemanticSummary string         `db:"semantic_summary"`
	Metadata        []byte         `db:"metadata"`
}

type stepRow struct {
	EpisodeID   uuid.UUID `db:"episode_id"`
	Ordinal     int       `db:"ordinal"`
	Tool        string    `db:"tool"`
	Action      string    `db:"action"`
	Parameters  []byte    `db:"parameters"`
	Result      []byte    `db:"result"`
	Observation string    `db:"observation"`
	Error       string    `db:"error"`
	Timestamp   time.Time `db:"timestamp"`
	DurationMS  int64     `db:"duration_ms"`
	Artifact    []byte    `db:"artifact"`
}

// StoreEpisode upserts an episode, its steps, and (if present) its
// embedding, inside a single transaction.
func (s *Store) StoreEpisode(ctx context.Context, e *types.Episode) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		return s.storeEpisodeTx(ctx, e)
	})
}

func (s *Store) storeEpisodeTx(ctx context.Context, e *types.Episode) error {
	q := s.querier(ctx)

	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return memerrors.Serialization("context", err)
	}
	var outcomeJSON []byte
	if e.Outcome != nil {
		if outcomeJSON, err = json.Marshal(e.Outcome); err != nil {
			return memerrors.Serialization("outcome", err)
		}
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return memerrors.Serialization("metadata", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO episodes (id, task_description, task_type, context, status, start_time,
			end_time, outcome, reward, reflection, semantic_summary, metadata, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (id) DO UPDATE SET
			task_description = EXCLUDED.task_description,
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			outcome = EXCLUDED.outcome,
			reward = EXCLUDED.reward,
			reflection = EXCLUDED.reflection,
			semantic_summary = EXCLUDED.semantic_summary,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, e.ID, e.TaskDescription, string(e.TaskType), ctxJSON, string(e.Status), e.StartTime,
		ptrNullTime(e.EndTime), outcomeJSON, ptrNullFloat(e.Reward), e.Reflection, e.SemanticSummary, metaJSON)
	if err != nil {
		return memerrors.Storage("store_episode", err)
	}

	for _, step := range e.Steps {
		if err := s.storeStepTx(ctx, e.ID, step); err != nil {
			return err
		}
	}

	if len(e.Embedding) > 0 {
		if err := s.storeEmbeddingTx(ctx, e.ID, e.Embedding); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) storeStepTx(ctx context.Context, episodeID uuid.UUID, step types.ExecutionStep) error {
	q := s.querier(ctx)

	paramsJSON, err := json.Marshal(step.Parameters)
	if err != nil {
		return memerrors.Serialization("step.parameters", err)
	}
	var resultJSON []byte
	if step.Result != nil {
		if resultJSON, err = json.Marshal(step.Result); err != nil {
			return memerrors.Serialization("step.result", err)
		}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO episode_steps (episode_id, ordinal, tool, action, parameters, result,
			observation, error, timestamp, duration_ms, artifact)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (episode_id, ordinal) DO UPDATE SET
			tool = EXCLUDED.tool, action = EXCLUDED.action, parameters = EXCLUDED.parameters,
			result = EXCLUDED.result, observation = EXCLUDED.observation, error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms, artifact = EXCLUDED.artifact
	`, episodeID, step.Ordinal, step.Tool, step.Action, paramsJSON, resultJSON,
		step.Observation, step.Error, step.Timestamp, step.Duration.Milliseconds(), step.Artifact)
	if err != nil {
		return memerrors.Storage("store_step", err)
	}
	return nil
}

func (s *Store) storeEmbeddingTx(ctx context.Context, episodeID uuid.UUID, vec []float32) error {
	table, ok := embeddingsTable(len(vec))
	if !ok {
		return memerrors.InvalidInput("embedding", "unsupported dimension")
	}
	vec64 := make([]float64, len(vec))
	for i, v := range vec {
		vec64[i] = float64(v)
	}

	q := s.querier(ctx)
	_, err := q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (episode_id, vector) VALUES ($1, $2)
		ON CONFLICT (episode_id) DO UPDATE SET vector = EXCLUDED.vector
	`, table), episodeID, pq.Array(vec64))
	if err != nil {
		return memerrors.Storage("store_embedding", err)
	}
	return nil
}

// GetEpisode loads one episode, its steps, and its embedding (if any).
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (*types.Episode, error) {
	q := s.querier(ctx)

	var row episodeRow
	err := q.QueryRowxContext(ctx, `SELECT id, task_description, task_type, context, status,
		start_time, end_time, outcome, reward, reflection, semantic_summary, metadata
		FROM episodes WHERE id = $1`, id).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, memerrors.NotFound("episode", id.String())
	}
	if err != nil {
		return nil, memerrors.Storage("get_episode", err)
	}

	episode, err := rowToEpisode(row)
	if err != nil {
		return nil, err
	}

	if err := s.loadSteps(ctx, episode); err != nil {
		return nil, err
	}
	if err := s.loadEmbedding(ctx, episode); err != nil {
		return nil, err
	}
	if err := s.loadTagsInto(ctx, episode); err != nil {
		return nil, err
	}

	return episode, nil
}

func (s *Store) loadSteps(ctx context.Context, e *types.Episode) error {
	q := s.querier(ctx)
	var rows []stepRow
	err := q.SelectContext(ctx, &rows, `SELECT episode_id, ordinal, tool, action, parameters,
		result, observation, error, timestamp, duration_ms, artifact
		FROM episode_steps WHERE episode_id = $1 ORDER BY ordinal`, e.ID)
	if err != nil {
		return memerrors.Storage("load_steps", err)
	}

	e.Steps = make([]types.ExecutionStep, 0, len(rows))
	for _, r := range rows {
		var params, result map[string]interface{}
		if len(r.Parameters) > 0 {
			if err := json.Unmarshal(r.Parameters, &params); err != nil {
				return memerrors.Serialization("step.parameters", err)
			}
		}
		if len(r.Result) > 0 {
			if err := json.Unmarshal(r.Result, &result); err != nil {
				return memerrors.Serialization("step.result", err)
			}
		}
		e.Steps = append(e.Steps, types.ExecutionStep{
			Ordinal:     r.Ordinal,
			Tool:        r.Tool,
			Action:      r.Action,
			Parameters:  params,
			Result:      result,
			Observation: r.Observation,
			Error:       r.Error,
			Timestamp:   r.Timestamp,
			Duration:    time.Duration(r.DurationMS) * time.Millisecond,
			Artifact:    r.Artifact,
		})
	}
	return nil
}

func (s *Store) loadEmbedding(ctx context.Context, e *types.Episode) error {
	q := s.querier(ctx)
	for dim := range types.SupportedEmbeddingDims {
		table, ok := embeddingsTable(dim)
		if !ok {
			continue
		}
		var vec64 pq.Float64Array
		err := q.QueryRowxContext(ctx, fmt.Sprintf(`SELECT vector FROM %s WHERE episode_id = $1`, table), e.ID).Scan(&vec64)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return memerrors.Storage("load_embedding", err)
		}
		vec := make([]float32, len(vec64))
		for i, v := range vec64 {
			vec[i] = float32(v)
		}
		e.Embedding = vec
		return nil
	}
	return nil
}

func (s *Store) loadTagsInto(ctx context.Context, e *types.Episode) error {
	tags, err := s.GetTags(ctx, e.ID.String())
	if err != nil {
		return err
	}
	e.Tags = tags
	return nil
}

func rowToEpisode(row episodeRow) (*types.Episode, error) {
	var ctxVal types.Context
	if err := json.Unmarshal(row.Context, &ctxVal); err != nil {
		return nil, memerrors.Serialization("context", err)
	}
	var outcome *types.Outcome
	if len(row.Outcome) > 0 {
		outcome = &types.Outcome{}
		if err := json.Unmarshal(row.Outcome, outcome); err != nil {
			return nil, memerrors.Serialization("outcome", err)
		}
	}
	var meta map[string]interface{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return nil, memerrors.Serialization("metadata", err)
		}
	}

	return &types.Episode{
		ID:              row.ID,
		TaskDescription: row.TaskDescription,
		TaskType:        types.TaskType(row.TaskType),
		Context:         ctxVal,
		Status:          types.Status(row.Status),
		StartTime:       row.StartTime,
		EndTime:         nullTimePtr(row.EndTime),
		Outcome:         outcome,
		Reward:          nullFloatPtr(row.Reward),
		Reflection:      row.Reflection,
		SemanticSummary: row.SemanticSummary,
		Metadata:        meta,
	}, nil
}

// StoreEpisodesBatch writes a slice of episodes transactionally, per
// spec.md §4.5's batch flush semantics.
func (s *Store) StoreEpisodesBatch(ctx context.Context, episodes []*types.Episode) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, e := range episodes {
			if err := s.storeEpisodeTx(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEpisodesBatch loads multiple episodes by id.
func (s *Store) GetEpisodesBatch(ctx context.Context, ids []uuid.UUID) ([]*types.Episode, error) {
	out := make([]*types.Episode, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetEpisode(ctx, id)
		if err != nil {
			if memerrors.AsMemoryError(err).Code == memerrors.CodeNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// QueryEpisodesByMetadata returns episodes whose metadata contains
// key=value.
func (s *Store) QueryEpisodesByMetadata(ctx context.Context, key, value string) ([]*types.Episode, error) {
	q := s.querier(ctx)
	var rows []episodeRow
	err := q.SelectContext(ctx, &rows, `SELECT id, task_description, task_type, context, status,
		start_time, end_time, outcome, reward, reflection, semantic_summary, metadata
		FROM episodes WHERE metadata ->> $1 = $2`, key, value)
	if err != nil {
		return nil, memerrors.Storage("query_by_metadata", err)
	}

	out := make([]*types.Episode, 0, len(rows))
	for _, r := range rows {
		e, err := rowToEpisode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SimilaritySearch scores candidate episodes' embeddings against
// queryVec and returns the top k, delegating scoring to the
// configured VectorIndex (brute-force cosine by default).
func (s *Store) SimilaritySearch(ctx context.Context, queryVec []float32, k int, filter store.MetadataFilter) ([]store.SimilarityMatch, error) {
	table, ok := embeddingsTable(len(queryVec))
	if !ok {
		return nil, memerrors.InvalidInput("embedding", "unsupported dimension")
	}

	q := s.querier(ctx)
	query := fmt.Sprintf(`SELECT e.id AS episode_id, v.vector FROM %s v
		JOIN episodes e ON e.id = v.episode_id WHERE 1=1`, table)
	args := []interface{}{}
	argN := 1
	if filter.Domain != "" {
		query += fmt.Sprintf(" AND e.context ->> 'domain' = $%d", argN)
		args = append(args, filter.Domain)
		argN++
	}
	if filter.TaskType != "" {
		query += fmt.Sprintf(" AND e.task_type = $%d", argN)
		args = append(args, string(filter.TaskType))
		argN++
	}
	if filter.Key != "" {
		query += fmt.Sprintf(" AND e.metadata ->> $%d = $%d", argN, argN+1)
		args = append(args, filter.Key, filter.Value)
		argN += 2
	}

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, memerrors.Storage("similarity_search", err)
	}
	defer rows.Close()

	var candidates []indexedVector
	for rows.Next() {
		var id uuid.UUID
		var vec64 pq.Float64Array
		if err := rows.Scan(&id, &vec64); err != nil {
			return nil, memerrors.Storage("similarity_search_scan", err)
		}
		vec := make([]float32, len(vec64))
		for i, v := range vec64 {
			vec[i] = float32(v)
		}
		candidates = append(candidates, indexedVector{EpisodeID: id, Vector: vec})
	}

	return s.index.Search(ctx, candidates, queryVec, k)
}

// DeleteEpisode removes an episode, its steps and embedding (cascaded
// via foreign keys), its tags, and any relationships referencing it.
func (s *Store) DeleteEpisode(ctx context.Context, id uuid.UUID) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.querier(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM episode_relationships WHERE from_episode = $1 OR to_episode = $1`, id.String()); err != nil {
			return memerrors.Storage("delete_episode_relationships", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM episode_tags WHERE episode_id = $1`, id.String()); err != nil {
			return memerrors.Storage("delete_episode_tags", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM episodes WHERE id = $1`, id)
		if err != nil {
			return memerrors.Storage("delete_episode", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return memerrors.NotFound("episode", id.String())
		}
		return nil
	})
}
