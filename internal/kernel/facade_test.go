package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/core"
	"agentdesk/internal/events"
	"agentdesk/internal/notify"
	"agentdesk/internal/shell"
	"agentdesk/internal/vfs"
	"agentdesk/internal/windows"
)

type fakeShell struct {
	mu    sync.Mutex
	calls []shell.Request
	err   error
}

func (f *fakeShell) Exec(_ context.Context, req shell.Request) (shell.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return shell.Result{}, f.err
	}
	return shell.Result{Stdout: "ok"}, nil
}

type fakeScheduler struct {
	added   []core.TaskSpec
	removed []string
}

func (f *fakeScheduler) AddTask(_ context.Context, spec core.TaskSpec) (core.ScheduledTask, error) {
	f.added = append(f.added, spec)
	return core.ScheduledTask{ID: "t1", Name: spec.Name, Status: core.TaskStatusActive}, nil
}

func (f *fakeScheduler) RemoveTask(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeScheduler) Tasks() []core.ScheduledTask { return nil }

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

type harness struct {
	fs       *vfs.FS
	shell    *fakeShell
	sched    *fakeScheduler
	notifier *recordingNotifier
	bus      *events.Bus
}

func newHarness(t *testing.T) (*harness, Collaborators) {
	t.Helper()
	fs, err := vfs.Open(vfs.ModeMemory, "")
	require.NoError(t, err)
	h := &harness{
		fs:       fs,
		shell:    &fakeShell{},
		sched:    &fakeScheduler{},
		notifier: &recordingNotifier{},
		bus:      events.NewBus(nil),
	}
	return h, Collaborators{
		FS:        fs,
		Shell:     h.shell,
		Windows:   windows.NewManager(),
		Notifier:  h.notifier,
		Events:    h.bus,
		Scheduler: h.sched,
	}
}

func allPermissionSets() []PermissionSet {
	var out []PermissionSet
	for _, fs := range []FSLevel{FSNone, FSRead, FSReadWrite} {
		for _, sh := range []Access{Allow, Deny} {
			for _, net := range []Access{Allow, Deny} {
				for _, n := range []bool{false, true} {
					out = append(out, PermissionSet{FS: fs, Shell: sh, Network: net, Notifications: n})
				}
			}
		}
	}
	return out
}

func TestFacade_EnforcesMatrixForEverySet(t *testing.T) {
	ctx := context.Background()
	for _, perms := range allPermissionSets() {
		perms := perms
		t.Run(fmt.Sprintf("%s-%s-%s-%v", perms.FS, perms.Shell, perms.Network, perms.Notifications), func(t *testing.T) {
			h, c := newHarness(t)
			require.NoError(t, h.fs.WriteFile("/home/agent/a.txt", []byte("a")))
			f := BuildFacade(perms, c)

			_, readErr := f.FS().Read("/home/agent/a.txt")
			_, listErr := f.FS().List("/home/agent")
			writeErr := f.FS().Write("/home/agent/b.txt", []byte("b"))
			mkdirErr := f.FS().Mkdir("/home/agent/new")
			_, execErr := f.Shell().Exec(ctx, "echo hi")
			_, addErr := f.Scheduler().Add(ctx, core.TaskSpec{Name: "x"})
			removeErr := f.Scheduler().Remove(ctx, "t1")

			canRead := perms.FS != FSNone
			canWrite := perms.FS == FSReadWrite
			assert.Equal(t, !canRead, IsCapabilityDenied(readErr))
			assert.Equal(t, !canRead, IsCapabilityDenied(listErr))
			assert.Equal(t, !canWrite, IsCapabilityDenied(writeErr))
			assert.Equal(t, !canWrite, IsCapabilityDenied(mkdirErr))
			assert.Equal(t, !canWrite, IsCapabilityDenied(addErr))
			assert.Equal(t, !canWrite, IsCapabilityDenied(removeErr))
			assert.Equal(t, perms.Shell == Deny, IsCapabilityDenied(execErr))

			if canRead {
				assert.NoError(t, readErr)
			}
			if perms.Shell == Allow {
				assert.NoError(t, execErr)
				assert.Len(t, h.shell.calls, 1)
			} else {
				assert.Empty(t, h.shell.calls, "denied exec must not reach the collaborator")
			}
			if !canWrite {
				assert.Empty(t, h.sched.added)
				assert.Empty(t, h.sched.removed)
				_, statErr := h.fs.Stat("/home/agent/b.txt")
				assert.True(t, vfs.IsNotExist(statErr))
			}

			require.NoError(t, f.Notify().Info(ctx, "title", "body"))
			if perms.Notifications {
				assert.Len(t, h.notifier.sent, 1)
			} else {
				assert.Empty(t, h.notifier.sent)
			}

			_, winErr := f.Windows().Open(windows.OpenOptions{App: "editor", Title: "w"})
			assert.NoError(t, winErr)
			assert.Len(t, f.Windows().List(), 1)
			assert.Equal(t, perms, f.System().Permissions())
		})
	}
}

func TestFacade_ReadOnlyFilesystem(t *testing.T) {
	h, c := newHarness(t)
	require.NoError(t, h.fs.WriteFile("/home/agent/Documents/plan.md", []byte("plan")))
	f := BuildFacade(PermissionSet{FS: FSRead, Shell: Deny, Network: Deny}, c)

	err := f.FS().Write("/home/agent/Documents/plan.md", []byte("changed"))
	require.Error(t, err)
	var denied *CapabilityDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, CapabilityFilesystem, denied.Capability)
	assert.Contains(t, err.Error(), "filesystem")
	assert.Equal(t, "capability denied: filesystem requires readwrite (have read)", err.Error())

	data, err := f.FS().Read("/home/agent/Documents/plan.md")
	require.NoError(t, err)
	assert.Equal(t, "plan", string(data))
}

func TestFacade_CollaboratorErrorsPassThrough(t *testing.T) {
	h, c := newHarness(t)
	h.shell.err = errors.New("runner exploded")
	f := BuildFacade(DefaultPermissions(), c)

	_, err := f.Shell().Exec(context.Background(), "true")
	assert.EqualError(t, err, "runner exploded")
	assert.False(t, IsCapabilityDenied(err))

	_, err = f.FS().Read("/home/agent/missing.txt")
	assert.True(t, vfs.IsNotExist(err))
}

func TestFacade_SchedulerUnavailable(t *testing.T) {
	_, c := newHarness(t)
	c.Scheduler = nil
	f := BuildFacade(DefaultPermissions(), c)

	_, err := f.Scheduler().Add(context.Background(), core.TaskSpec{Name: "x"})
	assert.ErrorIs(t, err, ErrSchedulerUnavailable)
	assert.Nil(t, f.Scheduler().List())
}

func TestFacade_SandboxRootsFilesystemAndWorkDir(t *testing.T) {
	h, c := newHarness(t)
	c.Sandbox = Sandbox{FSRoot: "/home/agent/sandbox", WorkDir: "/var/agentdesk/sandbox"}
	perms := DefaultPermissions()
	perms.Sandboxed = true
	f := BuildFacade(perms, c)

	require.NoError(t, f.FS().Write("/notes.txt", []byte("inside")))
	data, err := h.fs.ReadFile("/home/agent/sandbox/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "inside", string(data))

	_, err = f.FS().Read("/home/agent/Documents")
	assert.Error(t, err)

	_, err = f.Shell().Exec(context.Background(), "ls")
	require.NoError(t, err)
	require.Len(t, h.shell.calls, 1)
	assert.Equal(t, "/var/agentdesk/sandbox", h.shell.calls[0].Dir)
}

func TestFacade_SandboxPolicyDeniesCommand(t *testing.T) {
	h, c := newHarness(t)
	policy, err := NewSandboxPolicy(context.Background(), "")
	require.NoError(t, err)
	c.Sandbox = Sandbox{WorkDir: t.TempDir(), Policy: policy}
	perms := DefaultPermissions()
	perms.Sandboxed = true
	f := BuildFacade(perms, c)

	_, err = f.Shell().Exec(context.Background(), "sudo rm -rf /")
	require.Error(t, err)
	var denied *CapabilityDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, CapabilitySandbox, denied.Capability)
	assert.NotEmpty(t, denied.Violations)
	assert.Empty(t, h.shell.calls)

	_, err = f.Shell().Exec(context.Background(), "echo hello")
	assert.NoError(t, err)
	assert.Len(t, h.shell.calls, 1)
}

func TestFacade_SystemOnSubscribes(t *testing.T) {
	h, c := newHarness(t)
	f := BuildFacade(DefaultPermissions(), c)

	var got []string
	cancel := f.System().On(events.TaskRun, func(ev events.Event) { got = append(got, ev.Name) })
	h.bus.Publish(events.TaskRun, events.TaskRunPayload{TaskID: "t"})
	cancel()
	h.bus.Publish(events.TaskRun, events.TaskRunPayload{TaskID: "t"})

	assert.Equal(t, []string{events.TaskRun}, got)
}

func validSpec() core.TaskSpec {
	return core.TaskSpec{
		Name:     "echo",
		Action:   &core.CommandAction{Command: "echo hi"},
		Schedule: core.ScheduleOnce,
	}
}
