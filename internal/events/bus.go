// Package events is the in-process event bus the daemon publishes kernel and
// scheduler events on.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event names published by the daemon.
const (
	TaskRun                  = "task-run"
	TaskComplete             = "task-complete"
	KernelPermissionsChanged = "kernel-permissions-changed"
)

// Event is a single published message.
type Event struct {
	Name    string    `json:"name"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// TaskRunPayload is published before a task executes.
type TaskRunPayload struct {
	TaskID string `json:"taskId"`
	Name   string `json:"name"`
}

// TaskCompletePayload is published after a task executes.
type TaskCompletePayload struct {
	TaskID string `json:"taskId"`
	Result string `json:"result"`
}

// Handler receives events. Handlers run on a publisher's goroutine and must
// not block. They may publish; such events are delivered after the current one
// has reached every subscriber.
type Handler func(Event)

// Wildcard subscribes to every event name.
const Wildcard = "*"

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Bus delivers events to subscribers in publish order, once per subscriber.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	subs     []subscription
	pending  []Event
	draining bool
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler for events named name (or Wildcard) and returns
// a function that removes the subscription.
func (b *Bus) Subscribe(name string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: handler})
	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish queues an event and, unless another publisher is already delivering,
// delivers the queue before returning. Only one goroutine delivers at a time,
// so every subscriber observes the same order. An event published while a
// delivery is in progress is handed to the delivering goroutine.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload, At: time.Now().UTC()}

	b.mu.Lock()
	b.pending = append(b.pending, ev)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	for {
		ev, targets, ok := b.next()
		if !ok {
			return
		}
		for _, s := range targets {
			b.deliver(s, ev)
		}
	}
}

// next pops the oldest pending event with its subscribers. It clears the
// draining flag when the queue is empty.
func (b *Bus) next() (Event, []subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		b.pending = nil
		b.draining = false
		return Event{}, nil, false
	}
	ev := b.pending[0]
	b.pending = b.pending[1:]
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == ev.Name || s.name == Wildcard {
			targets = append(targets, s)
		}
	}
	return ev, targets, true
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", ev.Name, "panic", r)
		}
	}()
	s.handler(ev)
}
