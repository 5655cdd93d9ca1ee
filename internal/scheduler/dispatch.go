package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agentdesk/internal/core"
	"agentdesk/internal/jules"
	"agentdesk/internal/kernel"
)

// Executor turns a task into a status string. It must not return an error:
// every failure is reported in the string.
type Executor interface {
	Execute(ctx context.Context, task core.ScheduledTask, facade *kernel.Facade) string
}

// RemoteAgent is the remote session client jules tasks use.
type RemoteAgent interface {
	CreateSession(ctx context.Context, req jules.SessionRequest) (jules.Session, error)
	ApprovePlan(ctx context.Context, sessionID string) error
}

// DefaultStartingBranch is used for jules tasks that name a source but no branch.
const DefaultStartingBranch = "main"

// Dispatcher executes tasks by type. Shell work goes through the facade so
// the active permissions apply.
type Dispatcher struct {
	remote    RemoteAgent
	templates Templates
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. remote may be nil, in which case jules
// tasks report an error.
func NewDispatcher(remote RemoteAgent, templates Templates, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{remote: remote, templates: templates.withDefaults(), logger: logger}
}

// Execute runs task and returns its untruncated status.
func (d *Dispatcher) Execute(ctx context.Context, task core.ScheduledTask, facade *kernel.Facade) string {
	switch a := task.Action.(type) {
	case *core.CommandAction:
		return d.runCommand(ctx, facade, a.Command)
	case *core.SwarmAction:
		return d.runSwarm(ctx, facade, a.Objective)
	case *core.FlowAction:
		return d.runCommand(ctx, facade, d.templates.BuildFlowCommand(a.FlowID, a.Roles))
	case *core.JulesAction:
		return d.runJules(ctx, task, facade, a)
	case *core.InvalidAction:
		if a.Kind == core.TaskTypeJules {
			return "Jules error: invalid payload: " + a.Reason
		}
		return "Error: invalid payload: " + a.Reason
	default:
		return fmt.Sprintf("Error: unsupported task type %q", task.Type)
	}
}

// runCommand executes command through the facade and reports Success or the
// failure.
func (d *Dispatcher) runCommand(ctx context.Context, facade *kernel.Facade, command string) string {
	res, err := facade.Shell().Exec(ctx, command)
	if err != nil {
		return "Error: " + err.Error()
	}
	if !res.Succeeded() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return "Failed: " + msg
	}
	return "Success"
}

// runSwarm reports the orchestrator's standard output as-is, whatever its
// exit code. Only a command that could not be run is an error.
func (d *Dispatcher) runSwarm(ctx context.Context, facade *kernel.Facade, objective string) string {
	res, err := facade.Shell().Exec(ctx, d.templates.BuildSwarmCommand(objective))
	if err != nil {
		return "Error: " + err.Error()
	}
	if !res.Succeeded() {
		d.logger.Warn("swarm exited non-zero", "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
	}
	return res.Stdout
}

func (d *Dispatcher) runJules(ctx context.Context, task core.ScheduledTask, facade *kernel.Facade, a *core.JulesAction) string {
	perms := facade.Permissions()
	if perms.Network != kernel.Allow {
		denied := &kernel.CapabilityDeniedError{
			Capability: kernel.CapabilityNetwork,
			Required:   string(kernel.Allow),
			Have:       string(perms.Network),
		}
		return "Jules error: " + denied.Error()
	}
	if d.remote == nil {
		return "Jules error: remote agent client is not configured"
	}

	req := jules.SessionRequest{Prompt: a.Prompt, Title: a.Title}
	if req.Title == "" {
		req.Title = task.Name
	}
	if a.Source != "" {
		branch := a.StartingBranch
		if branch == "" {
			branch = DefaultStartingBranch
		}
		req.SourceContext = &jules.SourceContext{
			Source:            a.Source,
			GithubRepoContext: &jules.GithubRepoContext{StartingBranch: branch},
		}
	}

	session, err := d.remote.CreateSession(ctx, req)
	if err != nil {
		return "Jules error: " + err.Error()
	}
	status := fmt.Sprintf("Jules session %s created", session.ID)
	if !a.ShouldApprove() {
		return status
	}
	if err := d.remote.ApprovePlan(ctx, session.ID); err != nil {
		d.logger.Warn("approve jules plan", "task_id", task.ID, "session_id", session.ID, "err", err)
		return "Jules error: " + err.Error()
	}
	return status + "; plan approval requested"
}
