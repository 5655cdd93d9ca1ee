package store

import (
	"context"
	"fmt"
	"time"

	"agentdesk/internal/core"
)

// RecordRun stores a run and drops the task's runs beyond the retention limit.
func (s *Store) RecordRun(ctx context.Context, run core.RunRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, task_id, started_at, ended_at, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.TaskID, formatTime(run.StartedAt), formatTime(run.EndedAt), run.Result,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return s.PruneRuns(ctx, run.TaskID)
}

// ListRuns returns the most recent runs of a task, newest first.
func (s *Store) ListRuns(ctx context.Context, taskID string, limit, offset int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task_id, started_at, ended_at, result
		FROM runs
		WHERE task_id = ?
		ORDER BY started_at DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	runs := []core.RunRecord{}
	for rows.Next() {
		var (
			run              core.RunRecord
			startedAt, ended string
		)
		if err := rows.Scan(&run.ID, &run.TaskID, &startedAt, &ended, &run.Result); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(startedAt)
		run.EndedAt = parseTime(ended)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneRuns deletes a task's runs beyond the retention limit.
func (s *Store) PruneRuns(ctx context.Context, taskID string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM runs
		WHERE task_id = ? AND id NOT IN (
			SELECT id FROM runs WHERE task_id = ?
			ORDER BY started_at DESC, created_at DESC
			LIMIT ?
		)
	`, taskID, taskID, s.RunRetention)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

// DeleteRuns removes the history of a task.
func (s *Store) DeleteRuns(ctx context.Context, taskID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
