// Package vfs is the desktop filesystem. It is backed by afero so the daemon can
// run against an in-memory tree or a directory on disk.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// Mode selects the backing filesystem.
type Mode string

const (
	ModeMemory Mode = "memory"
	ModeOS     Mode = "os"
)

// DefaultDirs is the skeleton created in a fresh desktop.
var DefaultDirs = []string{
	"/home/agent",
	"/home/agent/Desktop",
	"/home/agent/Documents",
	"/home/agent/Downloads",
	"/tmp",
}

// Entry describes a file or directory.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"isDir"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"modTime"`
}

// FS is the filesystem collaborator used by the kernel.
type FS struct {
	fs afero.Fs
}

// New wraps an afero filesystem.
func New(base afero.Fs) *FS {
	return &FS{fs: base}
}

// Open builds the desktop filesystem for mode. For ModeOS the tree is rooted at root.
func Open(mode Mode, root string) (*FS, error) {
	switch mode {
	case ModeMemory, "":
		f := New(afero.NewMemMapFs())
		if err := f.Seed(DefaultDirs); err != nil {
			return nil, err
		}
		return f, nil
	case ModeOS:
		if root == "" {
			return nil, errors.New("os filesystem requires a root directory")
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("ensure filesystem root: %w", err)
		}
		f := New(afero.NewBasePathFs(afero.NewOsFs(), root))
		if err := f.Seed(DefaultDirs); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown filesystem mode %q", mode)
	}
}

// Seed creates dirs if missing.
func (f *FS) Seed(dirs []string) error {
	for _, d := range dirs {
		if err := f.fs.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("seed %s: %w", d, err)
		}
	}
	return nil
}

// Sub returns a filesystem rooted at dir, creating it if needed. Paths outside
// dir are not reachable through the result.
func (f *FS) Sub(dir string) (*FS, error) {
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", dir, err)
	}
	return New(afero.NewBasePathFs(f.fs, dir)), nil
}

// Afero exposes the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// ReadFile returns the contents of name.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(f.fs, clean(name))
}

// List returns the entries of dir sorted by name.
func (f *FS) List(dir string) ([]Entry, error) {
	dir = clean(dir)
	infos, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, toEntry(path.Join(dir, info.Name()), info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat describes name.
func (f *FS) Stat(name string) (Entry, error) {
	name = clean(name)
	info, err := f.fs.Stat(name)
	if err != nil {
		return Entry{}, err
	}
	return toEntry(name, info), nil
}

// WriteFile replaces the contents of name, creating parent directories.
func (f *FS) WriteFile(name string, data []byte) error {
	name = clean(name)
	if err := f.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, name, data, 0o644)
}

// Mkdir creates dir and any missing parents.
func (f *FS) Mkdir(dir string) error {
	return f.fs.MkdirAll(clean(dir), 0o755)
}

// Delete removes name. Directories are removed recursively.
func (f *FS) Delete(name string) error {
	name = clean(name)
	if name == "/" {
		return errors.New("refusing to delete the filesystem root")
	}
	if _, err := f.fs.Stat(name); err != nil {
		return err
	}
	return f.fs.RemoveAll(name)
}

// Move renames src to dst.
func (f *FS) Move(src, dst string) error {
	dst = clean(dst)
	if err := f.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}
	return f.fs.Rename(clean(src), dst)
}

// IsNotExist reports whether err means the path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

func clean(name string) string {
	return path.Clean("/" + name)
}

func toEntry(p string, info fs.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		Path:    p,
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime(),
	}
}
