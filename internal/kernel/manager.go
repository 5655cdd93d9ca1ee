package kernel

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"agentdesk/internal/events"
)

// Manager owns the active permission set and the facade built from it.
// Components hold the Manager and re-acquire the facade with Facade() before
// each privileged operation.
type Manager struct {
	mu     sync.Mutex
	perms  PermissionSet
	collab Collaborators
	facade atomic.Pointer[Facade]
	logger *slog.Logger
}

// NewManager validates perms and builds the initial facade.
func NewManager(perms PermissionSet, collab Collaborators, logger *slog.Logger) (*Manager, error) {
	if err := perms.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{perms: perms, collab: collab, logger: logger}
	m.facade.Store(BuildFacade(perms, collab))
	return m, nil
}

// Facade returns the current facade.
func (m *Manager) Facade() *Facade {
	return m.facade.Load()
}

// Permissions returns the active permission set.
func (m *Manager) Permissions() PermissionSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perms
}

// SetPermissions replaces the permission set. When it differs from the active
// one the facade is rebuilt and kernel-permissions-changed is published with
// the new set. It reports whether anything changed.
func (m *Manager) SetPermissions(perms PermissionSet) (bool, error) {
	if err := perms.Validate(); err != nil {
		return false, fmt.Errorf("set permissions: %w", err)
	}
	m.mu.Lock()
	if perms == m.perms {
		m.mu.Unlock()
		return false, nil
	}
	prev := m.perms
	m.perms = perms
	m.facade.Store(BuildFacade(perms, m.collab))
	bus := m.collab.Events
	m.mu.Unlock()

	m.logger.Info("kernel permissions changed",
		"fs", perms.FS, "shell", perms.Shell, "network", perms.Network,
		"notifications", perms.Notifications, "sandboxed", perms.Sandboxed,
		"previous_fs", prev.FS)
	if bus != nil {
		bus.Publish(events.KernelPermissionsChanged, perms)
	}
	return true, nil
}

// BindScheduler attaches the scheduler collaborator once it exists and
// rebuilds the facade. No event is published.
func (m *Manager) BindScheduler(s TaskScheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collab.Scheduler = s
	m.facade.Store(BuildFacade(m.perms, m.collab))
}
