// Package mcp exposes the kernel facade and the task scheduler as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentdesk/internal/core"
	"agentdesk/internal/kernel"
	"agentdesk/internal/scheduler"
)

// Version is reported to MCP clients during initialization.
const Version = "1.0.0"

// Kernel is the permission owner the tools act through.
type Kernel interface {
	Facade() *kernel.Facade
	Permissions() kernel.PermissionSet
	SetPermissions(perms kernel.PermissionSet) (bool, error)
}

// Scheduler exposes the task operations the facade does not cover.
type Scheduler interface {
	Task(id string) (core.ScheduledTask, bool)
	RunNow(ctx context.Context, id string) (core.ScheduledTask, error)
}

// RunHistory lists recorded runs. It may be nil.
type RunHistory interface {
	ListRuns(ctx context.Context, taskID string, limit, offset int) ([]core.RunRecord, error)
}

// MCPServer registers the agentdesk tools on an MCP server.
type MCPServer struct {
	kernel    Kernel
	scheduler Scheduler
	runs      RunHistory
	logger    *slog.Logger
	srv       *server.MCPServer
}

// NewMCPServer creates the MCP server and registers every tool.
func NewMCPServer(k Kernel, sched Scheduler, runs RunHistory, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{kernel: k, scheduler: sched, runs: runs, logger: logger}
	s.srv = server.NewMCPServer(
		"agentdesk",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the client disconnects.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.srv)
}

// HTTPHandler serves MCP over streamable HTTP.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.srv)
}

func (s *MCPServer) registerTools() {
	s.registerTaskTools()
	s.registerKernelTools()
}

func (s *MCPServer) registerTaskTools() {
	s.srv.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Schedule a recurring task. Provide the action fields matching the task type."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
		mcp.WithString("type", mcp.Required(),
			mcp.Description("Task type"),
			mcp.Enum(string(core.TaskTypeCommand), string(core.TaskTypeSwarm), string(core.TaskTypeFlow), string(core.TaskTypeJules)),
		),
		mcp.WithString("schedule", mcp.Required(),
			mcp.Description("Recurrence"),
			mcp.Enum(string(core.ScheduleOnce), string(core.ScheduleHourly), string(core.ScheduleDaily),
				string(core.ScheduleWeekly), string(core.ScheduleMonthly), string(core.ScheduleInterval)),
		),
		mcp.WithNumber("interval_seconds", mcp.Description("Period for the interval schedule"), mcp.Min(1)),
		mcp.WithNumber("next_run", mcp.Description("First run as epoch milliseconds; omit to run on the next tick")),
		mcp.WithString("command", mcp.Description("Shell command (command tasks)")),
		mcp.WithString("objective", mcp.Description("Swarm objective (swarm tasks)")),
		mcp.WithString("flow_id", mcp.Description("Flow identifier (flow tasks)")),
		mcp.WithString("roles", mcp.Description("Comma separated roles (flow tasks)")),
		mcp.WithString("prompt", mcp.Description("Session prompt (jules tasks)")),
		mcp.WithString("source", mcp.Description("Source name (jules tasks)")),
		mcp.WithString("title", mcp.Description("Session title (jules tasks)")),
		mcp.WithString("starting_branch", mcp.Description("Starting branch (jules tasks)")),
		mcp.WithBoolean("auto_approve", mcp.Description("Approve the plan after creating the session (jules tasks)")),
	), s.handleCreateTask)

	s.srv.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List scheduled tasks"),
		mcp.WithString("status",
			mcp.Description("Filter by status"),
			mcp.Enum(string(core.TaskStatusActive), string(core.TaskStatusCompleted)),
		),
	), s.handleListTasks)

	s.srv.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Show one task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleGetTask)

	s.srv.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleDeleteTask)

	s.srv.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Run a task immediately and wait for its result"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleRunTask)

	s.srv.AddTool(mcp.NewTool("task_runs",
		mcp.WithDescription("Show the run history of a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithNumber("limit", mcp.Description("Number of runs, default 20"), mcp.Min(1), mcp.Max(100)),
	), s.handleListRuns)
}

func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskType := core.TaskType(mcp.ParseString(request, "type", ""))
	if !taskType.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown task type %q", taskType)), nil
	}
	spec := core.TaskSpec{
		Name:     mcp.ParseString(request, "name", ""),
		Action:   actionFromRequest(taskType, request),
		Schedule: core.Schedule(mcp.ParseString(request, "schedule", "")),
		NextRun:  int64(mcp.ParseFloat64(request, "next_run", 0)),
	}
	if interval := int(mcp.ParseFloat64(request, "interval_seconds", 0)); interval != 0 {
		spec.IntervalSeconds = &interval
	}

	task, err := s.kernel.Facade().Scheduler().Add(ctx, spec)
	if err != nil {
		return s.toolError("create task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task scheduled\nID: %s\nNext run: %s",
		task.ID, formatMillis(task.NextRun))), nil
}

func actionFromRequest(t core.TaskType, request mcp.CallToolRequest) core.Action {
	switch t {
	case core.TaskTypeCommand:
		return &core.CommandAction{Command: mcp.ParseString(request, "command", "")}
	case core.TaskTypeSwarm:
		return &core.SwarmAction{Objective: mcp.ParseString(request, "objective", "")}
	case core.TaskTypeFlow:
		return &core.FlowAction{
			FlowID: mcp.ParseString(request, "flow_id", ""),
			Roles:  splitRoles(mcp.ParseString(request, "roles", "")),
		}
	default:
		a := &core.JulesAction{
			Prompt:         mcp.ParseString(request, "prompt", ""),
			Source:         mcp.ParseString(request, "source", ""),
			Title:          mcp.ParseString(request, "title", ""),
			StartingBranch: mcp.ParseString(request, "starting_branch", ""),
		}
		if _, ok := request.GetArguments()["auto_approve"]; ok {
			v := mcp.ParseBoolean(request, "auto_approve", true)
			a.AutoApprove = &v
		}
		return a
	}
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := core.TaskStatus(mcp.ParseString(request, "status", ""))
	var tasks []core.ScheduledTask
	for _, t := range s.kernel.Facade().Scheduler().List() {
		if status == "" || t.Status == status {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s\n", t.ID, t.Name)
		fmt.Fprintf(&b, "  Type: %s  Schedule: %s  Status: %s\n", t.Type, t.Schedule, t.Status)
		if t.Status == core.TaskStatusActive {
			fmt.Fprintf(&b, "  Next run: %s\n", formatMillis(t.NextRun))
		}
		if t.LastResult != "" {
			fmt.Fprintf(&b, "  Last result: %s\n", t.LastResult)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task, ok := s.scheduler.Task(taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}
	return jsonResult(task)
}

func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if _, ok := s.scheduler.Task(taskID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}
	if err := s.kernel.Facade().Scheduler().Remove(ctx, taskID); err != nil {
		return s.toolError("delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task, err := s.scheduler.RunNow(ctx, taskID)
	if err != nil {
		return s.toolError("run task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s finished\nResult: %s", task.ID, task.LastResult)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runs == nil {
		return mcp.NewToolResultError("run history requires the sqlite store"), nil
	}
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))
	runs, err := s.runs.ListRuns(ctx, taskID, limit, 0)
	if err != nil {
		return s.toolError("list runs", err), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs recorded for this task"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d runs:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %s -> %s\n  %s\n",
			r.ID, r.StartedAt.Format(timeLayout), r.EndedAt.Format(timeLayout), r.Result)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// toolError reports err to the client. Denials and validation failures are
// expected outcomes; anything else is logged.
func (s *MCPServer) toolError(op string, err error) *mcp.CallToolResult {
	switch {
	case kernel.IsCapabilityDenied(err),
		errors.Is(err, core.ErrInvalidTask),
		errors.Is(err, scheduler.ErrTaskNotFound),
		errors.Is(err, scheduler.ErrTaskCompleted):
	default:
		s.logger.Error(op, "err", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

const timeLayout = "2006-01-02 15:04:05"

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "next tick"
	}
	return time.UnixMilli(ms).Format(timeLayout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
