package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agentdesk/internal/core"
	"agentdesk/internal/events"
	"agentdesk/internal/kernel"
)

// Kernel is the permission owner the API talks to.
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

// RunHistory lists recorded runs. It is nil when the store keeps no history.
type RunHistory interface {
	ListRuns(ctx context.Context, taskID string, limit, offset int) ([]core.RunRecord, error)
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Kernel    Kernel
	Scheduler Scheduler
	Runs      RunHistory
	Events    *events.Bus
	// MCP is mounted at /mcp when set.
	MCP       http.Handler
	AuthToken string
	Logger    *slog.Logger
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       Deps
	logger     *slog.Logger
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{router: router, deps: deps, logger: logger}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	if s.deps.MCP != nil {
		var mcpHandler = s.deps.MCP
		if s.deps.AuthToken != "" {
			mcpHandler = AuthMiddleware(s.deps.AuthToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.deps.AuthToken != "" {
			r.Use(AuthMiddleware(s.deps.AuthToken))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/run", s.handleRunTask)
				r.Get("/runs", s.handleListRuns)
			})
		})

		r.Route("/kernel", func(r chi.Router) {
			r.Get("/permissions", s.handleGetPermissions)
			r.Put("/permissions", s.handlePutPermissions)
		})

		r.Route("/fs", func(r chi.Router) {
			r.Get("/list", s.handleFSList)
			r.Get("/read", s.handleFSRead)
			r.Get("/stat", s.handleFSStat)
			r.Put("/write", s.handleFSWrite)
			r.Post("/mkdir", s.handleFSMkdir)
			r.Post("/move", s.handleFSMove)
			r.Delete("/", s.handleFSDelete)
		})

		r.Post("/shell/exec", s.handleShellExec)

		r.Route("/windows", func(r chi.Router) {
			r.Get("/", s.handleListWindows)
			r.Post("/", s.handleOpenWindow)
			r.Route("/{windowID}", func(r chi.Router) {
				r.Delete("/", s.handleCloseWindow)
				r.Post("/focus", s.handleFocusWindow)
				r.Post("/move", s.handleMoveWindow)
				r.Post("/resize", s.handleResizeWindow)
			})
		})

		r.Get("/events", s.handleEvents)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"permissions": s.deps.Kernel.Permissions(),
	})
}
