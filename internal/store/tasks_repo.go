package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agentdesk/internal/core"
)

// TasksKey is the record the task list is stored under.
const TasksKey = "scheduled-tasks"

// Load returns the persisted task list. A missing record is an empty list.
func (s *Store) Load(ctx context.Context) ([]core.ScheduledTask, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, TasksKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return decodeTasks([]byte(value))
}

// Save replaces the persisted task list.
func (s *Store) Save(ctx context.Context, tasks []core.ScheduledTask) error {
	data, err := encodeTasks(tasks)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, TasksKey, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}

func encodeTasks(tasks []core.ScheduledTask) ([]byte, error) {
	if tasks == nil {
		tasks = []core.ScheduledTask{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return data, nil
}

// decodeTasks decodes the task list record by record. A record that cannot be
// decoded is logged and skipped so the remaining tasks still load.
func decodeTasks(data []byte) ([]core.ScheduledTask, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]core.ScheduledTask, 0, len(records))
	for i, rec := range records {
		var task core.ScheduledTask
		if err := json.Unmarshal(rec, &task); err != nil {
			slog.Default().Warn("skip undecodable task record", "index", i, "err", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
