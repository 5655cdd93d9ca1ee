// Package shell runs commands for the desktop's shell collaborator.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"
)

// DefaultKillGrace is how long a terminated command gets before it is killed.
const DefaultKillGrace = 5 * time.Second

// Request describes a command to run.
type Request struct {
	Command string
	Dir     string
	Env     []string
}

// Result captures a finished command.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports a zero exit code.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Runner executes commands through the platform shell.
type Runner struct {
	logger    *slog.Logger
	killGrace time.Duration
}

// NewRunner creates a runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger, killGrace: DefaultKillGrace}
}

// Exec runs req.Command and waits for it. A non-zero exit is reported in the
// result, not as an error. Errors mean the command could not be started or was
// cut short by ctx; when ctx ends the process gets SIGTERM and is killed after
// the grace period.
func (r *Runner) Exec(ctx context.Context, req Request) (Result, error) {
	if req.Command == "" {
		return Result{}, errors.New("empty command")
	}
	cmd := commandFor(ctx, req.Command)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.Cancel = func() error {
		r.logger.Warn("command deadline reached, sending termination", "command", req.Command)
		sendTermination(cmd.Process)
		return nil
	}
	cmd.WaitDelay = r.killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &syncWriter{w: &stdout}
	cmd.Stderr = &syncWriter{w: &stderr}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}
	waitErr := cmd.Wait()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("command interrupted: %w", ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("wait command: %w", waitErr)
	}
	return res, nil
}

func commandFor(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command) // #nosec G204
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func sendTermination(process *os.Process) {
	if process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = process.Kill()
		return
	}
	_ = process.Signal(syscall.SIGTERM)
}
