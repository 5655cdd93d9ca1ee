// Package windows keeps the state of the simulated desktop's windows.
package windows

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrWindowNotFound is returned for operations on an unknown window id.
var ErrWindowNotFound = errors.New("window not found")

// Window is a snapshot of a window's geometry and stacking state.
type Window struct {
	ID      string `json:"id"`
	App     string `json:"app"`
	Title   string `json:"title"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Focused bool   `json:"focused"`
	Z       int    `json:"z"`
}

// OpenOptions describes a new window.
type OpenOptions struct {
	App    string `json:"app"`
	Title  string `json:"title"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

const (
	defaultWidth  = 800
	defaultHeight = 600
	cascadeStep   = 24
)

// Manager is an in-memory window manager.
type Manager struct {
	mu      sync.Mutex
	windows map[string]*Window
	topZ    int
}

// NewManager returns an empty window manager.
func NewManager() *Manager {
	return &Manager{windows: make(map[string]*Window)}
}

// Open creates a window, places it on top and focuses it.
func (m *Manager) Open(opts OpenOptions) (Window, error) {
	if opts.App == "" {
		return Window{}, errors.New("app is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &Window{
		ID:     uuid.NewString(),
		App:    opts.App,
		Title:  opts.Title,
		X:      opts.X,
		Y:      opts.Y,
		Width:  opts.Width,
		Height: opts.Height,
	}
	if w.Title == "" {
		w.Title = opts.App
	}
	if w.Width <= 0 {
		w.Width = defaultWidth
	}
	if w.Height <= 0 {
		w.Height = defaultHeight
	}
	if opts.X == 0 && opts.Y == 0 {
		offset := len(m.windows) * cascadeStep
		w.X, w.Y = offset, offset
	}
	m.windows[w.ID] = w
	m.focusLocked(w)
	return *w, nil
}

// Close removes a window. Focus moves to the topmost remaining window.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	delete(m.windows, id)
	if w.Focused {
		var top *Window
		for _, other := range m.windows {
			if top == nil || other.Z > top.Z {
				top = other
			}
		}
		if top != nil {
			top.Focused = true
		}
	}
	return nil
}

// Focus raises a window and gives it focus.
func (m *Manager) Focus(id string) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return Window{}, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	m.focusLocked(w)
	return *w, nil
}

// Move sets a window's position.
func (m *Manager) Move(id string, x, y int) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return Window{}, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	w.X, w.Y = x, y
	return *w, nil
}

// Resize sets a window's size. Both dimensions must be positive.
func (m *Manager) Resize(id string, width, height int) (Window, error) {
	if width <= 0 || height <= 0 {
		return Window{}, fmt.Errorf("invalid size %dx%d", width, height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return Window{}, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	w.Width, w.Height = width, height
	return *w, nil
}

// List returns all windows ordered bottom to top.
func (m *Manager) List() []Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out
}

func (m *Manager) focusLocked(target *Window) {
	for _, w := range m.windows {
		w.Focused = false
	}
	m.topZ++
	target.Z = m.topZ
	target.Focused = true
}
