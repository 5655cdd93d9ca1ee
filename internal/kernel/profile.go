package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadProfile reads a YAML permission profile. Keys missing from the file keep
// their DefaultPermissions value.
func LoadProfile(fs afero.Fs, path string) (PermissionSet, error) {
	perms := DefaultPermissions()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return perms, fmt.Errorf("read permission profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &perms); err != nil {
		return DefaultPermissions(), fmt.Errorf("parse permission profile %s: %w", path, err)
	}
	if err := perms.Validate(); err != nil {
		return DefaultPermissions(), fmt.Errorf("permission profile %s: %w", path, err)
	}
	return perms, nil
}

// WatchProfile reloads the profile at path into m whenever it is written,
// created or renamed into place, until ctx is done. The parent directory is
// watched so editors that replace the file are picked up. A profile that fails
// to load is logged and the active permissions are kept.
func WatchProfile(ctx context.Context, path string, m *Manager, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)
	osFs := afero.NewOsFs()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				perms, err := LoadProfile(osFs, target)
				if err != nil {
					logger.Warn("reload permission profile", "path", target, "err", err)
					continue
				}
				changed, err := m.SetPermissions(perms)
				if err != nil {
					logger.Warn("apply permission profile", "path", target, "err", err)
					continue
				}
				if changed {
					logger.Info("permission profile reloaded", "path", target)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("permission profile watcher", "err", err)
			}
		}
	}()
	return nil
}
