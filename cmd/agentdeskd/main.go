package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"agentdesk/internal/api"
	"agentdesk/internal/config"
	"agentdesk/internal/events"
	"agentdesk/internal/jules"
	"agentdesk/internal/kernel"
	"agentdesk/internal/logging"
	agentmcp "agentdesk/internal/mcp"
	"agentdesk/internal/notify"
	"agentdesk/internal/scheduler"
	"agentdesk/internal/shell"
	"agentdesk/internal/store"
	"agentdesk/internal/vfs"
	"agentdesk/internal/windows"
)

// daemon is the wired set of long-lived components.
type daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *events.Bus
	kernel  *kernel.Manager
	engine  *scheduler.Engine
	runs    api.RunHistory
	closers []io.Closer
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// stdout carries the MCP protocol in mcp and both modes.
	logOut := io.Writer(os.Stdout)
	if cfg.Server.Mode != "http" {
		logOut = os.Stderr
	}
	logger := logging.NewWithWriter(logOut, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("start daemon", "err", err)
		os.Exit(1)
	}
	defer d.close()

	d.engine.Load(ctx)
	d.engine.Start(ctx)

	switch cfg.Server.Mode {
	case "http":
		d.runHTTP(ctx, nil)
	case "mcp":
		d.runMCP()
	case "both":
		d.runHTTP(ctx, d.newMCP())
	}
	d.stopEngine()
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger, bus: events.NewBus(logger)}

	desktop, err := vfs.Open(vfs.Mode(cfg.Kernel.FSMode), cfg.Kernel.FSRoot)
	if err != nil {
		return nil, err
	}
	workDir := cfg.SandboxWorkDir()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	policy, err := kernel.LoadSandboxPolicy(ctx, afero.NewOsFs(), cfg.Kernel.PolicyPath)
	if err != nil {
		return nil, err
	}

	perms := kernel.DefaultPermissions()
	if cfg.Kernel.ProfilePath != "" {
		perms, err = kernel.LoadProfile(afero.NewOsFs(), cfg.Kernel.ProfilePath)
		if err != nil {
			logger.Warn("load permission profile, using defaults", "path", cfg.Kernel.ProfilePath, "err", err)
		}
	}

	d.kernel, err = kernel.NewManager(perms, kernel.Collaborators{
		FS:       desktop,
		Shell:    shell.NewRunner(logger),
		Windows:  windows.NewManager(),
		Notifier: buildNotifier(cfg, logger),
		Events:   d.bus,
		Sandbox: kernel.Sandbox{
			FSRoot:  cfg.Kernel.SandboxDir,
			WorkDir: workDir,
			Policy:  policy,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Kernel.ProfilePath != "" {
		if err := kernel.WatchProfile(ctx, cfg.Kernel.ProfilePath, d.kernel, logger); err != nil {
			logger.Warn("watch permission profile", "err", err)
		}
	}

	var tasks scheduler.TaskStore
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithEvents(d.bus),
		scheduler.WithTaskTimeout(cfg.Scheduler.TaskTimeout),
	}
	switch cfg.Store.Backend {
	case "file":
		fileStore, err := store.NewFileStore(afero.NewOsFs(), cfg.StateDir)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, fileStore)
		tasks = fileStore
	default:
		db, err := store.Open(ctx, cfg.StateDir, cfg.Store.RunLogKeep)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db)
		tasks = db
		d.runs = db
		opts = append(opts, scheduler.WithRunRecorder(db))
	}

	var remote scheduler.RemoteAgent
	if cfg.Jules.APIKey != "" {
		remote = jules.NewClient(cfg.Jules.BaseURL, cfg.Jules.APIKey)
	}
	dispatcher := scheduler.NewDispatcher(remote, scheduler.Templates{
		Swarm: cfg.Scheduler.SwarmTemplate,
		Flow:  cfg.Scheduler.FlowTemplate,
	}, logger)

	d.engine = scheduler.New(tasks, d.kernel, dispatcher, opts...)
	d.kernel.BindScheduler(d.engine)
	return d, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Warn("bark notifier disabled", "err", err)
		} else {
			notifiers = append(notifiers, bark)
		}
	}
	return notify.NewMultiNotifier(notifiers...)
}

func (d *daemon) newMCP() *agentmcp.MCPServer {
	var runs agentmcp.RunHistory
	if d.runs != nil {
		runs = d.runs
	}
	return agentmcp.NewMCPServer(d.kernel, d.engine, runs, d.logger)
}

// runHTTP serves the API until a signal arrives. A non-nil mcpServer is
// mounted at /mcp and also served on stdio.
func (d *daemon) runHTTP(ctx context.Context, mcpServer *agentmcp.MCPServer) {
	deps := api.Deps{
		Kernel:    d.kernel,
		Scheduler: d.engine,
		Runs:      d.runs,
		Events:    d.bus,
		AuthToken: d.cfg.Server.AuthToken,
		Logger:    d.logger,
	}
	mcpErr := make(chan error, 1)
	if mcpServer != nil {
		deps.MCP = mcpServer.HTTPHandler()
		go func() {
			if err := mcpServer.Run(); err != nil {
				mcpErr <- err
			}
		}()
	}
	server := api.NewServer(d.cfg.Server.Addr, deps)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		d.logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		d.logger.Error("server error", "err", err)
	case err := <-mcpErr:
		d.logger.Error("mcp server error", "err", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("server shutdown", "err", err)
	}
}

// runMCP serves MCP on stdio until the client disconnects or a signal arrives.
func (d *daemon) runMCP() {
	if err := d.newMCP().Run(); err != nil {
		d.logger.Error("mcp server error", "err", err)
	}
}

func (d *daemon) stopEngine() {
	select {
	case <-d.engine.Stop().Done():
	case <-time.After(d.cfg.ShutdownGrace):
		d.logger.Warn("scheduler stop timed out")
	}
}

func (d *daemon) close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.logger.Warn("close", "err", err)
		}
	}
	d.closers = nil
}
