package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/core"
	"agentdesk/internal/jules"
	"agentdesk/internal/kernel"
	"agentdesk/internal/shell"
)

type scriptedShell struct {
	mu       sync.Mutex
	commands []string
	result   shell.Result
	err      error
}

func (s *scriptedShell) Exec(_ context.Context, req shell.Request) (shell.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, req.Command)
	return s.result, s.err
}

type fakeRemote struct {
	created   []jules.SessionRequest
	approved  []string
	createErr error
}

func (f *fakeRemote) CreateSession(_ context.Context, req jules.SessionRequest) (jules.Session, error) {
	if f.createErr != nil {
		return jules.Session{}, f.createErr
	}
	f.created = append(f.created, req)
	return jules.Session{Name: "sessions/s-42", ID: "s-42"}, nil
}

func (f *fakeRemote) ApprovePlan(_ context.Context, id string) error {
	f.approved = append(f.approved, id)
	return nil
}

func facadeWith(sh kernel.ShellRunner, mutate func(*kernel.PermissionSet)) *kernel.Facade {
	perms := kernel.DefaultPermissions()
	if mutate != nil {
		mutate(&perms)
	}
	return kernel.BuildFacade(perms, kernel.Collaborators{Shell: sh})
}

func taskOf(a core.Action) core.ScheduledTask {
	return core.ScheduledTask{ID: "t1", Name: "job", Type: a.Type(), Action: a, Schedule: core.ScheduleOnce, Status: core.TaskStatusActive}
}

func boolPtr(v bool) *bool { return &v }

func TestDispatcher_Command(t *testing.T) {
	sh := &scriptedShell{}
	d := NewDispatcher(nil, Templates{}, nil)
	f := facadeWith(sh, nil)

	assert.Equal(t, "Success", d.Execute(context.Background(), taskOf(&core.CommandAction{Command: "make build"}), f))
	assert.Equal(t, []string{"make build"}, sh.commands)

	sh.result = shell.Result{ExitCode: 2, Stderr: "no rule to make target\n"}
	assert.Equal(t, "Failed: no rule to make target", d.Execute(context.Background(), taskOf(&core.CommandAction{Command: "make nope"}), f))

	sh.result = shell.Result{ExitCode: 3}
	assert.Equal(t, "Failed: exit code 3", d.Execute(context.Background(), taskOf(&core.CommandAction{Command: "false"}), f))
}

func TestDispatcher_CommandErrors(t *testing.T) {
	d := NewDispatcher(nil, Templates{}, nil)

	sh := &scriptedShell{err: errors.New("fork failed")}
	assert.Equal(t, "Error: fork failed", d.Execute(context.Background(), taskOf(&core.CommandAction{Command: "ls"}), facadeWith(sh, nil)))

	denied := &scriptedShell{}
	f := facadeWith(denied, func(p *kernel.PermissionSet) { p.Shell = kernel.Deny })
	got := d.Execute(context.Background(), taskOf(&core.CommandAction{Command: "ls"}), f)
	assert.Equal(t, "Error: capability denied: shell requires allow (have deny)", got)
	assert.Empty(t, denied.commands)
}

func TestDispatcher_SwarmReportsStdout(t *testing.T) {
	sh := &scriptedShell{result: shell.Result{Stdout: "swarm finished: 3 agents\n"}}
	d := NewDispatcher(nil, Templates{}, nil)

	f := facadeWith(sh, nil)
	task := taskOf(&core.SwarmAction{Objective: "tidy the repo"})

	got := d.Execute(context.Background(), task, f)
	assert.Equal(t, "swarm finished: 3 agents\n", got)
	require.Len(t, sh.commands, 1)
	assert.Equal(t, "claude-flow swarm 'tidy the repo'", sh.commands[0])

	sh.result = shell.Result{ExitCode: 1, Stdout: "  partial swarm output\n", Stderr: "boom"}
	assert.Equal(t, "  partial swarm output\n", d.Execute(context.Background(), task, f))

	sh.result = shell.Result{}
	sh.err = errors.New("shell unavailable")
	assert.Equal(t, "Error: shell unavailable", d.Execute(context.Background(), task, f))
}

func TestDispatcher_FlowLiteralID(t *testing.T) {
	sh := &scriptedShell{}
	d := NewDispatcher(nil, Templates{}, nil)

	action, err := core.ParseAction(core.TaskTypeFlow, "my-flow-123")
	require.NoError(t, err)
	got := d.Execute(context.Background(), taskOf(action), facadeWith(sh, nil))

	assert.Equal(t, "Success", got)
	assert.Equal(t, []string{"claude-flow automation run-workflow my-flow-123"}, sh.commands)
	assert.NotContains(t, sh.commands[0], "--roles")
}

func TestDispatcher_FlowWithRoles(t *testing.T) {
	sh := &scriptedShell{}
	d := NewDispatcher(nil, Templates{Flow: "flowctl run {flow} --quiet"}, nil)

	action, err := core.ParseAction(core.TaskTypeFlow, `{"flowId":"release","roles":["qa","ops"]}`)
	require.NoError(t, err)
	d.Execute(context.Background(), taskOf(action), facadeWith(sh, nil))

	assert.Equal(t, []string{"flowctl run release --quiet --roles qa,ops"}, sh.commands)
}

func TestDispatcher_PersistedFlowObjectsWithoutIDRunLiterally(t *testing.T) {
	d := NewDispatcher(nil, Templates{}, nil)
	for _, raw := range []string{`{"roles":["qa"]}`, `{"flowId":5}`} {
		sh := &scriptedShell{}
		data := `{"id":"f","name":"f","type":"flow","action":` + raw + `,"schedule":"daily","nextRun":1,"status":"active"}`
		var task core.ScheduledTask
		require.NoError(t, json.Unmarshal([]byte(data), &task))

		got := d.Execute(context.Background(), task, facadeWith(sh, nil))
		assert.Equal(t, "Success", got)
		require.Len(t, sh.commands, 1)
		assert.Equal(t, "claude-flow automation run-workflow "+shellquote.Join(raw), sh.commands[0])
		assert.NotContains(t, sh.commands[0], "--roles")
	}
}

func TestDispatcher_JulesWithoutApproval(t *testing.T) {
	remote := &fakeRemote{}
	d := NewDispatcher(remote, Templates{}, nil)

	action := &core.JulesAction{Prompt: "fix flaky test", Source: "sources/github/acme/app", AutoApprove: boolPtr(false)}
	got := d.Execute(context.Background(), taskOf(action), facadeWith(nil, nil))

	assert.Equal(t, "Jules session s-42 created", got)
	assert.Empty(t, remote.approved)
	require.Len(t, remote.created, 1)
	req := remote.created[0]
	assert.Equal(t, "fix flaky test", req.Prompt)
	assert.Equal(t, "job", req.Title)
	require.NotNil(t, req.SourceContext)
	assert.Equal(t, "sources/github/acme/app", req.SourceContext.Source)
	assert.Equal(t, DefaultStartingBranch, req.SourceContext.GithubRepoContext.StartingBranch)
}

func TestDispatcher_JulesApprovesByDefault(t *testing.T) {
	remote := &fakeRemote{}
	d := NewDispatcher(remote, Templates{}, nil)

	got := d.Execute(context.Background(), taskOf(&core.JulesAction{Prompt: "write docs", Title: "Docs"}), facadeWith(nil, nil))

	assert.Equal(t, "Jules session s-42 created; plan approval requested", got)
	assert.Equal(t, []string{"s-42"}, remote.approved)
	assert.Nil(t, remote.created[0].SourceContext)
	assert.Equal(t, "Docs", remote.created[0].Title)
}

func TestDispatcher_JulesFailures(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	d := NewDispatcher(remote, Templates{}, nil)

	offline := facadeWith(nil, func(p *kernel.PermissionSet) { p.Network = kernel.Deny })
	got := d.Execute(ctx, taskOf(&core.JulesAction{Prompt: "x"}), offline)
	assert.Equal(t, "Jules error: capability denied: network requires allow (have deny)", got)
	assert.Empty(t, remote.created)

	remote.createErr = errors.New("create session: jules api returned status 401")
	got = d.Execute(ctx, taskOf(&core.JulesAction{Prompt: "x"}), facadeWith(nil, nil))
	assert.Equal(t, "Jules error: create session: jules api returned status 401", got)

	invalid := core.ScheduledTask{ID: "t2", Type: core.TaskTypeJules, Action: &core.InvalidAction{Kind: core.TaskTypeJules, Raw: "{", Reason: "unexpected end of JSON input"}}
	assert.Equal(t, "Jules error: invalid payload: unexpected end of JSON input", d.Execute(ctx, invalid, facadeWith(nil, nil)))

	noClient := NewDispatcher(nil, Templates{}, nil)
	assert.Contains(t, noClient.Execute(ctx, taskOf(&core.JulesAction{Prompt: "x"}), facadeWith(nil, nil)), "Jules error:")
}

func TestTemplates(t *testing.T) {
	tpl := DefaultTemplates()
	assert.Equal(t, "claude-flow swarm build", tpl.BuildSwarmCommand("build"))
	assert.Equal(t, "claude-flow automation run-workflow f1 --roles a,b", tpl.BuildFlowCommand("f1", []string{"a", " ", "b"}))

	custom := Templates{Swarm: "swarmctl --objective"}
	assert.Equal(t, "swarmctl --objective ship", custom.BuildSwarmCommand("ship"))
	assert.Equal(t, "claude-flow automation run-workflow f1", custom.BuildFlowCommand("f1", nil))
	assert.Equal(t, "claude-flow swarm 'a; rm -rf ~'", tpl.BuildSwarmCommand("a; rm -rf ~"))
}
