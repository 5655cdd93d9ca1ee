package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/core"
)

func sampleTasks() []core.ScheduledTask {
	interval := 90
	last := int64(1_700_000_000_000)
	return []core.ScheduledTask{
		{ID: "a", Name: "build", Type: core.TaskTypeCommand, Action: &core.CommandAction{Command: "make"}, Schedule: core.ScheduleDaily, NextRun: 10, Status: core.TaskStatusActive},
		{ID: "b", Name: "poll", Type: core.TaskTypeFlow, Action: &core.FlowAction{FlowID: "sync", Roles: []string{"ops"}}, Schedule: core.ScheduleInterval, IntervalSeconds: &interval, NextRun: 20, LastRun: &last, LastResult: "Success", Status: core.TaskStatusActive},
		{ID: "c", Name: "ask", Type: core.TaskTypeJules, Action: &core.JulesAction{Prompt: "fix it"}, Schedule: core.ScheduleOnce, Status: core.TaskStatusCompleted},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_TaskRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tasks, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, s.Save(ctx, sampleTasks()))
	require.NoError(t, s.Save(ctx, sampleTasks()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTasks(), got)

	var rows int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(1) FROM records`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.DB.Exec(`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)`, TasksKey, "{not json", "now")
	require.NoError(t, err)

	_, err = s.Load(ctx)
	assert.Error(t, err)
}

func TestStore_UndecodableRecordIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	valid, err := encodeTasks(sampleTasks()[:1])
	require.NoError(t, err)
	value := `[{"id":"x","name":"teleport","type":"teleport","action":"beam me up"},` + string(valid[1:])
	_, err = s.DB.Exec(`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)`, TasksKey, value, "now")
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTasks()[:1], got)
}

func TestStore_ReopenKeepsMigrations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(ctx, dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleTasks()))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dir, 0)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultRunRetention, s.RunRetention)
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_RunsArePrunedToRetention(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		started := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordRun(ctx, core.RunRecord{ID: id, TaskID: "a", StartedAt: started, EndedAt: started.Add(time.Second), Result: "Success"}))
	}
	require.NoError(t, s.RecordRun(ctx, core.RunRecord{ID: "other", TaskID: "b", StartedAt: base, EndedAt: base, Result: "Failed: x"}))

	runs, err := s.ListRuns(ctx, "a", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
	assert.Equal(t, base.Add(2*time.Minute), runs[0].StartedAt)

	other, err := s.ListRuns(ctx, "b", 0, 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	require.NoError(t, s.DeleteRuns(ctx, "a"))
	runs, err = s.ListRuns(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFileStore_MemFsRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s, err := NewFileStore(fs, "/state")
	require.NoError(t, err)

	tasks, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, s.Save(ctx, sampleTasks()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTasks(), got)

	entries, err := afero.ReadDir(fs, "/state")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
	assert.Equal(t, TasksFileName, entries[0].Name())

	raw, err := afero.ReadFile(fs, "/state/"+TasksFileName)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"action":"make"`)
	assert.Contains(t, string(raw), `"action":{"flowId":"sync","roles":["ops"]}`)
}

func TestFileStore_OsFsWithLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(afero.NewOsFs(), dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, sampleTasks()[:1]))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join(dir, TasksFileName), s.Path())
}

func TestFileStore_CorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state/"+TasksFileName, []byte("[{"), 0o644))
	s, err := NewFileStore(fs, "/state")
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_UndecodableRecordIsSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	valid, err := encodeTasks(sampleTasks()[1:2])
	require.NoError(t, err)
	data := `[{"id":"x","name":"teleport","type":"teleport","action":"beam me up"},` + string(valid[1:])
	require.NoError(t, afero.WriteFile(fs, "/state/"+TasksFileName, []byte(data), 0o644))
	s, err := NewFileStore(fs, "/state")
	require.NoError(t, err)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleTasks()[1:2], got)
}
