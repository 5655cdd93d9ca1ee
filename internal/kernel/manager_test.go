package kernel

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/events"
)

func TestManager_SetPermissionsRebuildsAndPublishes(t *testing.T) {
	_, c := newHarness(t)
	m, err := NewManager(DefaultPermissions(), c, nil)
	require.NoError(t, err)

	var published []PermissionSet
	c.Events.Subscribe(events.KernelPermissionsChanged, func(ev events.Event) {
		published = append(published, ev.Payload.(PermissionSet))
	})

	stale := m.Facade()
	readOnly := DefaultPermissions()
	readOnly.FS = FSRead

	changed, err := m.SetPermissions(readOnly)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []PermissionSet{readOnly}, published)
	assert.Equal(t, readOnly, m.Permissions())

	assert.NoError(t, stale.FS().Write("/home/agent/stale.txt", []byte("x")), "held facades keep their old permissions")
	assert.True(t, IsCapabilityDenied(m.Facade().FS().Write("/home/agent/fresh.txt", []byte("x"))))

	changed, err = m.SetPermissions(readOnly)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, published, 1)
}

func TestManager_RejectsInvalidPermissions(t *testing.T) {
	_, c := newHarness(t)
	_, err := NewManager(PermissionSet{FS: "root"}, c, nil)
	assert.Error(t, err)

	m, err := NewManager(DefaultPermissions(), c, nil)
	require.NoError(t, err)
	_, err = m.SetPermissions(PermissionSet{FS: FSRead, Shell: "maybe", Network: Allow})
	assert.Error(t, err)
	assert.Equal(t, DefaultPermissions(), m.Permissions())
}

func TestManager_BindScheduler(t *testing.T) {
	h, c := newHarness(t)
	c.Scheduler = nil
	m, err := NewManager(DefaultPermissions(), c, nil)
	require.NoError(t, err)

	var count int
	c.Events.Subscribe(events.Wildcard, func(events.Event) { count++ })

	m.BindScheduler(h.sched)
	_, err = m.Facade().Scheduler().Add(context.Background(), validSpec())
	require.NoError(t, err)
	assert.Len(t, h.sched.added, 1)
	assert.Zero(t, count)
}

func TestManager_ConcurrentReaders(t *testing.T) {
	_, c := newHarness(t)
	m, err := NewManager(DefaultPermissions(), c, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p := DefaultPermissions()
				if (i+j)%2 == 0 {
					p.FS = FSRead
				}
				_, _ = m.SetPermissions(p)
				_ = m.Facade().Permissions()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, m.Permissions(), m.Facade().Permissions())
}

func TestLoadProfile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/profile.yaml", []byte("fs: read\nshell: deny\nsandboxed: true\n"), 0o644))

	perms, err := LoadProfile(fs, "/profile.yaml")
	require.NoError(t, err)
	assert.Equal(t, PermissionSet{FS: FSRead, Shell: Deny, Network: Allow, Notifications: true, Sandboxed: true}, perms)

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("fs: everything\n"), 0o644))
	perms, err = LoadProfile(fs, "/bad.yaml")
	assert.Error(t, err)
	assert.Equal(t, DefaultPermissions(), perms)

	_, err = LoadProfile(fs, "/missing.yaml")
	assert.Error(t, err)
}

func TestWatchProfile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fs: readwrite\n"), 0o644))

	_, c := newHarness(t)
	m, err := NewManager(DefaultPermissions(), c, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchProfile(ctx, path, m, nil))

	require.NoError(t, os.WriteFile(path, []byte("fs: none\nshell: deny\n"), 0o644))
	assert.Eventually(t, func() bool {
		return m.Permissions().FS == FSNone && m.Permissions().Shell == Deny
	}, 5*time.Second, 20*time.Millisecond)
}
