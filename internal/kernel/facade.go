package kernel

import (
	"context"
	"fmt"

	"agentdesk/internal/core"
	"agentdesk/internal/events"
	"agentdesk/internal/notify"
	"agentdesk/internal/shell"
	"agentdesk/internal/vfs"
	"agentdesk/internal/windows"
)

// ShellRunner is the shell collaborator.
type ShellRunner interface {
	Exec(ctx context.Context, req shell.Request) (shell.Result, error)
}

// WindowManager is the window collaborator.
type WindowManager interface {
	Open(opts windows.OpenOptions) (windows.Window, error)
	Close(id string) error
	Focus(id string) (windows.Window, error)
	Move(id string, x, y int) (windows.Window, error)
	Resize(id string, width, height int) (windows.Window, error)
	List() []windows.Window
}

// TaskScheduler is the scheduler collaborator.
type TaskScheduler interface {
	AddTask(ctx context.Context, spec core.TaskSpec) (core.ScheduledTask, error)
	RemoveTask(ctx context.Context, id string) error
	Tasks() []core.ScheduledTask
}

// Sandbox configures confinement for sandboxed permission sets.
type Sandbox struct {
	// FSRoot is the directory of the desktop filesystem the FS domain is rooted at.
	FSRoot string
	// WorkDir is the host directory sandboxed commands run in.
	WorkDir string
	// Policy vets sandboxed shell commands. Nil allows every command.
	Policy CommandPolicy
}

// Collaborators are the subsystems a facade delegates to.
type Collaborators struct {
	FS        *vfs.FS
	Shell     ShellRunner
	Windows   WindowManager
	Notifier  notify.Notifier
	Events    *events.Bus
	Scheduler TaskScheduler
	Sandbox   Sandbox
}

// Facade exposes capability-checked operation groups. It is immutable; a
// permission change produces a new facade.
type Facade struct {
	perms   PermissionSet
	c       Collaborators
	fs      *vfs.FS
	fsErr   error
	workDir string
}

// BuildFacade creates a facade enforcing perms over c.
func BuildFacade(perms PermissionSet, c Collaborators) *Facade {
	f := &Facade{perms: perms, c: c, fs: c.FS}
	if perms.Sandboxed {
		f.workDir = c.Sandbox.WorkDir
		if c.FS != nil && c.Sandbox.FSRoot != "" {
			sub, err := c.FS.Sub(c.Sandbox.FSRoot)
			if err != nil {
				f.fsErr = fmt.Errorf("prepare sandbox filesystem: %w", err)
			}
			f.fs = sub
		}
	}
	return f
}

// Permissions returns the matrix this facade enforces.
func (f *Facade) Permissions() PermissionSet { return f.perms }

func (f *Facade) FS() FSOps { return FSOps{f: f} }
func (f *Facade) Shell() ShellOps { return ShellOps{f: f} }
func (f *Facade) Windows() WindowOps { return WindowOps{f: f} }
func (f *Facade) Scheduler() SchedulerOps { return SchedulerOps{f: f} }
func (f *Facade) Notify() NotifyOps { return NotifyOps{f: f} }
func (f *Facade) System() SystemOps { return SystemOps{f: f} }

func (f *Facade) requireFS(level FSLevel) error {
	if !f.perms.FS.Allows(level) {
		return &CapabilityDeniedError{
			Capability: CapabilityFilesystem,
			Required:   string(level),
			Have:       string(f.perms.FS),
		}
	}
	return nil
}

// filesystem returns the (possibly sandboxed) filesystem after the capability check.
func (f *Facade) filesystem(level FSLevel) (*vfs.FS, error) {
	if err := f.requireFS(level); err != nil {
		return nil, err
	}
	if f.fsErr != nil {
		return nil, f.fsErr
	}
	if f.fs == nil {
		return nil, fmt.Errorf("filesystem is not available")
	}
	return f.fs, nil
}

// FSOps is the filesystem domain.
type FSOps struct{ f *Facade }

func (o FSOps) Read(path string) ([]byte, error) {
	fs, err := o.f.filesystem(FSRead)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(path)
}

func (o FSOps) List(dir string) ([]vfs.Entry, error) {
	fs, err := o.f.filesystem(FSRead)
	if err != nil {
		return nil, err
	}
	return fs.List(dir)
}

func (o FSOps) Stat(path string) (vfs.Entry, error) {
	fs, err := o.f.filesystem(FSRead)
	if err != nil {
		return vfs.Entry{}, err
	}
	return fs.Stat(path)
}

func (o FSOps) Write(path string, data []byte) error {
	fs, err := o.f.filesystem(FSReadWrite)
	if err != nil {
		return err
	}
	return fs.WriteFile(path, data)
}

func (o FSOps) Mkdir(dir string) error {
	fs, err := o.f.filesystem(FSReadWrite)
	if err != nil {
		return err
	}
	return fs.Mkdir(dir)
}

func (o FSOps) Delete(path string) error {
	fs, err := o.f.filesystem(FSReadWrite)
	if err != nil {
		return err
	}
	return fs.Delete(path)
}

func (o FSOps) Move(src, dst string) error {
	fs, err := o.f.filesystem(FSReadWrite)
	if err != nil {
		return err
	}
	return fs.Move(src, dst)
}

// ShellOps is the shell domain.
type ShellOps struct{ f *Facade }

// Exec runs command. Sandboxed facades vet the command against the sandbox
// policy and run it in the sandbox work directory.
func (o ShellOps) Exec(ctx context.Context, command string) (shell.Result, error) {
	f := o.f
	if f.perms.Shell != Allow {
		return shell.Result{}, &CapabilityDeniedError{
			Capability: CapabilityShell,
			Required:   string(Allow),
			Have:       string(f.perms.Shell),
		}
	}
	if f.perms.Sandboxed && f.c.Sandbox.Policy != nil {
		violations, err := f.c.Sandbox.Policy.Check(ctx, CommandInput{
			Command:     command,
			WorkDir:     f.workDir,
			Permissions: f.perms,
		})
		if err != nil {
			return shell.Result{}, err
		}
		if len(violations) > 0 {
			return shell.Result{}, &CapabilityDeniedError{Capability: CapabilitySandbox, Violations: violations}
		}
	}
	if f.c.Shell == nil {
		return shell.Result{}, fmt.Errorf("shell is not available")
	}
	return f.c.Shell.Exec(ctx, shell.Request{Command: command, Dir: f.workDir})
}

// SchedulerOps is the scheduler domain. Mutations need filesystem write access
// because they rewrite the persisted task store.
type SchedulerOps struct{ f *Facade }

func (o SchedulerOps) Add(ctx context.Context, spec core.TaskSpec) (core.ScheduledTask, error) {
	if err := o.f.requireFS(FSReadWrite); err != nil {
		return core.ScheduledTask{}, err
	}
	if o.f.c.Scheduler == nil {
		return core.ScheduledTask{}, ErrSchedulerUnavailable
	}
	return o.f.c.Scheduler.AddTask(ctx, spec)
}

func (o SchedulerOps) Remove(ctx context.Context, id string) error {
	if err := o.f.requireFS(FSReadWrite); err != nil {
		return err
	}
	if o.f.c.Scheduler == nil {
		return ErrSchedulerUnavailable
	}
	return o.f.c.Scheduler.RemoveTask(ctx, id)
}

func (o SchedulerOps) List() []core.ScheduledTask {
	if o.f.c.Scheduler == nil {
		return nil
	}
	return o.f.c.Scheduler.Tasks()
}

// NotifyOps is the notification domain. With notifications disabled every
// call is a silent no-op.
type NotifyOps struct{ f *Facade }

func (o NotifyOps) Success(ctx context.Context, title, body string) error {
	return o.send(ctx, notify.LevelSuccess, title, body)
}

func (o NotifyOps) Error(ctx context.Context, title, body string) error {
	return o.send(ctx, notify.LevelError, title, body)
}

func (o NotifyOps) Info(ctx context.Context, title, body string) error {
	return o.send(ctx, notify.LevelInfo, title, body)
}

func (o NotifyOps) Warning(ctx context.Context, title, body string) error {
	return o.send(ctx, notify.LevelWarning, title, body)
}

func (o NotifyOps) send(ctx context.Context, level notify.Level, title, body string) error {
	if !o.f.perms.Notifications || o.f.c.Notifier == nil {
		return nil
	}
	return o.f.c.Notifier.Send(ctx, notify.Notification{Level: level, Title: title, Body: body})
}

// WindowOps is the window domain. It is always permitted.
type WindowOps struct{ f *Facade }

func (o WindowOps) manager() (WindowManager, error) {
	if o.f.c.Windows == nil {
		return nil, fmt.Errorf("window manager is not available")
	}
	return o.f.c.Windows, nil
}

func (o WindowOps) Open(opts windows.OpenOptions) (windows.Window, error) {
	m, err := o.manager()
	if err != nil {
		return windows.Window{}, err
	}
	return m.Open(opts)
}

func (o WindowOps) Close(id string) error {
	m, err := o.manager()
	if err != nil {
		return err
	}
	return m.Close(id)
}

func (o WindowOps) Focus(id string) (windows.Window, error) {
	m, err := o.manager()
	if err != nil {
		return windows.Window{}, err
	}
	return m.Focus(id)
}

func (o WindowOps) Move(id string, x, y int) (windows.Window, error) {
	m, err := o.manager()
	if err != nil {
		return windows.Window{}, err
	}
	return m.Move(id, x, y)
}

func (o WindowOps) Resize(id string, width, height int) (windows.Window, error) {
	m, err := o.manager()
	if err != nil {
		return windows.Window{}, err
	}
	return m.Resize(id, width, height)
}

func (o WindowOps) List() []windows.Window {
	if o.f.c.Windows == nil {
		return nil
	}
	return o.f.c.Windows.List()
}

// SystemOps exposes the active permissions and event subscriptions.
type SystemOps struct{ f *Facade }

func (o SystemOps) Permissions() PermissionSet { return o.f.perms }

// On subscribes handler to events named name and returns an unsubscribe function.
func (o SystemOps) On(name string, handler events.Handler) func() {
	if o.f.c.Events == nil {
		return func() {}
	}
	return o.f.c.Events.Subscribe(name, handler)
}
