package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"agentdesk/internal/core"
)

// TasksFileName is the task list file of the file backend.
const TasksFileName = "scheduled-tasks.json"

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps the task list as a JSON file. Writes go to a temp file that
// is renamed into place. On the OS filesystem a sibling .lock file is held
// with flock while reading or writing so concurrent daemons do not interleave.
type FileStore struct {
	fs       afero.Fs
	filePath string

	mu  sync.Mutex
	flk *flock.Flock
}

// NewFileStore creates a file store at dir/scheduled-tasks.json on fs.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}
	s := &FileStore{fs: fs, filePath: filepath.Join(dir, TasksFileName)}
	if _, ok := fs.(*afero.OsFs); ok {
		s.flk = flock.New(s.filePath + ".lock")
	}
	return s, nil
}

// Path returns the location of the task file.
func (s *FileStore) Path() string { return s.filePath }

// Load reads the task list. A missing file is an empty list.
func (s *FileStore) Load(ctx context.Context) ([]core.ScheduledTask, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := afero.ReadFile(s.fs, s.filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.filePath, err)
	}
	return decodeTasks(data)
}

// Save rewrites the task list.
func (s *FileStore) Save(ctx context.Context, tasks []core.ScheduledTask) error {
	data, err := encodeTasks(tasks)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := afero.TempFile(s.fs, filepath.Dir(s.filePath), TasksFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.filePath); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.filePath, err)
	}
	return nil
}

// Close releases the file lock.
func (s *FileStore) Close() error {
	if s.flk == nil {
		return nil
	}
	return s.flk.Close()
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.flk == nil {
		return s.mu.Unlock, nil
	}
	if _, err := s.flk.TryLockContext(ctx, lockRetryDelay); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("lock %s: %w", s.filePath, err)
	}
	return func() {
		_ = s.flk.Unlock()
		s.mu.Unlock()
	}, nil
}
