package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"agentdesk/internal/kernel"
	"agentdesk/internal/notify"
	"agentdesk/internal/windows"
)

func (s *MCPServer) registerKernelTools() {
	s.srv.AddTool(mcp.NewTool("fs_list",
		mcp.WithDescription("List a directory of the desktop filesystem"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path")),
	), s.handleFSList)

	s.srv.AddTool(mcp.NewTool("fs_read",
		mcp.WithDescription("Read a file"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
	), s.handleFSRead)

	s.srv.AddTool(mcp.NewTool("fs_write",
		mcp.WithDescription("Write a file, creating parent directories"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New file contents")),
	), s.handleFSWrite)

	s.srv.AddTool(mcp.NewTool("fs_mkdir",
		mcp.WithDescription("Create a directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path")),
	), s.handleFSMkdir)

	s.srv.AddTool(mcp.NewTool("fs_move",
		mcp.WithDescription("Move or rename a file or directory"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination path")),
	), s.handleFSMove)

	s.srv.AddTool(mcp.NewTool("fs_delete",
		mcp.WithDescription("Delete a file or directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path")),
	), s.handleFSDelete)

	s.srv.AddTool(mcp.NewTool("shell_exec",
		mcp.WithDescription("Run a shell command"),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command line")),
	), s.handleShellExec)

	s.srv.AddTool(mcp.NewTool("window_list",
		mcp.WithDescription("List open windows, bottom to top"),
	), s.handleWindowList)

	s.srv.AddTool(mcp.NewTool("window_open",
		mcp.WithDescription("Open a window"),
		mcp.WithString("app", mcp.Required(), mcp.Description("Application id")),
		mcp.WithString("title", mcp.Description("Window title")),
		mcp.WithNumber("width", mcp.Description("Width in pixels")),
		mcp.WithNumber("height", mcp.Description("Height in pixels")),
	), s.handleWindowOpen)

	s.srv.AddTool(mcp.NewTool("window_close",
		mcp.WithDescription("Close a window"),
		mcp.WithString("window_id", mcp.Required(), mcp.Description("Window ID")),
	), s.handleWindowClose)

	s.srv.AddTool(mcp.NewTool("window_focus",
		mcp.WithDescription("Raise and focus a window"),
		mcp.WithString("window_id", mcp.Required(), mcp.Description("Window ID")),
	), s.handleWindowFocus)

	s.srv.AddTool(mcp.NewTool("notify",
		mcp.WithDescription("Send a desktop notification"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title")),
		mcp.WithString("body", mcp.Description("Body")),
		mcp.WithString("level",
			mcp.Description("Severity, default info"),
			mcp.Enum(string(notify.LevelInfo), string(notify.LevelSuccess), string(notify.LevelWarning), string(notify.LevelError)),
		),
	), s.handleNotify)

	s.srv.AddTool(mcp.NewTool("permissions_get",
		mcp.WithDescription("Show the active permission set"),
	), s.handlePermissionsGet)

	s.srv.AddTool(mcp.NewTool("permissions_set",
		mcp.WithDescription("Change the permission set. Omitted fields keep their current value."),
		mcp.WithString("fs", mcp.Enum(string(kernel.FSNone), string(kernel.FSRead), string(kernel.FSReadWrite))),
		mcp.WithString("shell", mcp.Enum(string(kernel.Allow), string(kernel.Deny))),
		mcp.WithString("network", mcp.Enum(string(kernel.Allow), string(kernel.Deny))),
		mcp.WithBoolean("notifications"),
		mcp.WithBoolean("sandboxed"),
	), s.handlePermissionsSet)
}

func (s *MCPServer) handleFSList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.kernel.Facade().FS().List(mcp.ParseString(request, "path", "/"))
	if err != nil {
		return s.toolError("list directory", err), nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%-4s %8d  %s\n", kind, e.Size, e.Path)
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("(empty)"), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleFSRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.kernel.Facade().FS().Read(mcp.ParseString(request, "path", ""))
	if err != nil {
		return s.toolError("read file", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleFSWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	content := mcp.ParseString(request, "content", "")
	if err := s.kernel.Facade().FS().Write(path, []byte(content)); err != nil {
		return s.toolError("write file", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes to %s", len(content), path)), nil
}

func (s *MCPServer) handleFSMkdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	if err := s.kernel.Facade().FS().Mkdir(path); err != nil {
		return s.toolError("create directory", err), nil
	}
	return mcp.NewToolResultText("Created " + path), nil
}

func (s *MCPServer) handleFSMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := mcp.ParseString(request, "from", "")
	to := mcp.ParseString(request, "to", "")
	if err := s.kernel.Facade().FS().Move(from, to); err != nil {
		return s.toolError("move", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Moved %s to %s", from, to)), nil
}

func (s *MCPServer) handleFSDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	if err := s.kernel.Facade().FS().Delete(path); err != nil {
		return s.toolError("delete", err), nil
	}
	return mcp.NewToolResultText("Deleted " + path), nil
}

func (s *MCPServer) handleShellExec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.kernel.Facade().Shell().Exec(ctx, mcp.ParseString(request, "command", ""))
	if err != nil {
		return s.toolError("exec", err), nil
	}
	text := fmt.Sprintf("exit code: %d\n--- stdout ---\n%s", res.ExitCode, res.Stdout)
	if res.Stderr != "" {
		text += "\n--- stderr ---\n" + res.Stderr
	}
	if !res.Succeeded() {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleWindowList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.kernel.Facade().Windows().List()
	if list == nil {
		list = []windows.Window{}
	}
	return jsonResult(list)
}

func (s *MCPServer) handleWindowOpen(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	win, err := s.kernel.Facade().Windows().Open(windows.OpenOptions{
		App:    mcp.ParseString(request, "app", ""),
		Title:  mcp.ParseString(request, "title", ""),
		Width:  int(mcp.ParseFloat64(request, "width", 0)),
		Height: int(mcp.ParseFloat64(request, "height", 0)),
	})
	if err != nil {
		return s.toolError("open window", err), nil
	}
	return jsonResult(win)
}

func (s *MCPServer) handleWindowClose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "window_id", "")
	if err := s.kernel.Facade().Windows().Close(id); err != nil {
		return s.toolError("close window", err), nil
	}
	return mcp.NewToolResultText("Closed window " + id), nil
}

func (s *MCPServer) handleWindowFocus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	win, err := s.kernel.Facade().Windows().Focus(mcp.ParseString(request, "window_id", ""))
	if err != nil {
		return s.toolError("focus window", err), nil
	}
	return jsonResult(win)
}

func (s *MCPServer) handleNotify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := mcp.ParseString(request, "title", "")
	body := mcp.ParseString(request, "body", "")
	ops := s.kernel.Facade().Notify()
	var err error
	switch notify.Level(mcp.ParseString(request, "level", string(notify.LevelInfo))) {
	case notify.LevelSuccess:
		err = ops.Success(ctx, title, body)
	case notify.LevelWarning:
		err = ops.Warning(ctx, title, body)
	case notify.LevelError:
		err = ops.Error(ctx, title, body)
	default:
		err = ops.Info(ctx, title, body)
	}
	if err != nil {
		return s.toolError("notify", err), nil
	}
	if !s.kernel.Permissions().Notifications {
		return mcp.NewToolResultText("Notifications are disabled; nothing was sent"), nil
	}
	return mcp.NewToolResultText("Notification sent"), nil
}

func (s *MCPServer) handlePermissionsGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.kernel.Permissions())
}

func (s *MCPServer) handlePermissionsSet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	perms := s.kernel.Permissions()
	perms.FS = kernel.FSLevel(mcp.ParseString(request, "fs", string(perms.FS)))
	perms.Shell = kernel.Access(mcp.ParseString(request, "shell", string(perms.Shell)))
	perms.Network = kernel.Access(mcp.ParseString(request, "network", string(perms.Network)))
	perms.Notifications = mcp.ParseBoolean(request, "notifications", perms.Notifications)
	perms.Sandboxed = mcp.ParseBoolean(request, "sandboxed", perms.Sandboxed)

	changed, err := s.kernel.SetPermissions(perms)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !changed {
		return mcp.NewToolResultText("Permissions unchanged"), nil
	}
	return jsonResult(perms)
}
