package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskType selects the executor branch for a task.
type TaskType string

const (
	TaskTypeCommand TaskType = "command"
	TaskTypeSwarm   TaskType = "swarm"
	TaskTypeFlow    TaskType = "flow"
	TaskTypeJules   TaskType = "jules"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCommand, TaskTypeSwarm, TaskTypeFlow, TaskTypeJules:
		return true
	}
	return false
}

// Schedule describes how a task recurs.
type Schedule string

const (
	ScheduleOnce     Schedule = "once"
	ScheduleHourly   Schedule = "hourly"
	ScheduleDaily    Schedule = "daily"
	ScheduleWeekly   Schedule = "weekly"
	ScheduleMonthly  Schedule = "monthly"
	ScheduleInterval Schedule = "interval"
)

// Valid reports whether s is a known schedule.
func (s Schedule) Valid() bool {
	switch s {
	case ScheduleOnce, ScheduleHourly, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleInterval:
		return true
	}
	return false
}

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// ErrInvalidTask is returned when a task specification fails validation.
var ErrInvalidTask = errors.New("invalid task")

// ScheduledTask is a persisted task definition together with its run bookkeeping.
// Timestamps are epoch milliseconds.
type ScheduledTask struct {
	ID              string
	Name            string
	Type            TaskType
	Action          Action
	Schedule        Schedule
	IntervalSeconds *int
	NextRun         int64
	LastRun         *int64
	LastResult      string
	Status          TaskStatus
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Status == TaskStatusActive && t.NextRun <= now.UnixMilli()
}

// Clone returns a deep copy so callers never share pointers with the owner.
func (t ScheduledTask) Clone() ScheduledTask {
	out := t
	if t.IntervalSeconds != nil {
		v := *t.IntervalSeconds
		out.IntervalSeconds = &v
	}
	if t.LastRun != nil {
		v := *t.LastRun
		out.LastRun = &v
	}
	if t.Action != nil {
		out.Action = t.Action.clone()
	}
	return out
}

// TaskSpec is what a caller supplies to create a task. The store assigns ID and Status.
type TaskSpec struct {
	Name            string
	Action          Action
	Schedule        Schedule
	IntervalSeconds *int
	NextRun         int64
}

// Validate checks the spec against the task invariants.
func (s *TaskSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if s.Action == nil {
		return fmt.Errorf("%w: action is required", ErrInvalidTask)
	}
	if err := s.Action.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if !s.Schedule.Valid() {
		return fmt.Errorf("%w: unknown schedule %q", ErrInvalidTask, s.Schedule)
	}
	if s.Schedule == ScheduleInterval {
		if s.IntervalSeconds == nil || *s.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval schedule requires a positive intervalSeconds", ErrInvalidTask)
		}
	} else if s.IntervalSeconds != nil {
		return fmt.Errorf("%w: intervalSeconds is only allowed with the interval schedule", ErrInvalidTask)
	}
	if s.NextRun < 0 {
		return fmt.Errorf("%w: nextRun must not be negative", ErrInvalidTask)
	}
	return nil
}

// taskJSON is the persisted and wire representation of a ScheduledTask.
type taskJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            TaskType        `json:"type"`
	Action          json.RawMessage `json:"action"`
	Schedule        Schedule        `json:"schedule"`
	IntervalSeconds *int            `json:"intervalSeconds,omitempty"`
	NextRun         int64           `json:"nextRun"`
	LastRun         *int64          `json:"lastRun,omitempty"`
	LastResult      string          `json:"lastResult,omitempty"`
	Status          TaskStatus      `json:"status"`
}

// MarshalJSON encodes the action according to its type tag.
func (t ScheduledTask) MarshalJSON() ([]byte, error) {
	raw, err := EncodeAction(t.Action)
	if err != nil {
		return nil, fmt.Errorf("encode action for task %s: %w", t.ID, err)
	}
	return json.Marshal(taskJSON{
		ID:              t.ID,
		Name:            t.Name,
		Type:            t.Type,
		Action:          raw,
		Schedule:        t.Schedule,
		IntervalSeconds: t.IntervalSeconds,
		NextRun:         t.NextRun,
		LastRun:         t.LastRun,
		LastResult:      t.LastResult,
		Status:          t.Status,
	})
}

// UnmarshalJSON decodes a task. An action that cannot be decoded for its type is
// kept as an InvalidAction so the task still loads and the failure surfaces at
// dispatch time.
func (t *ScheduledTask) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("task %s: unknown type %q", raw.ID, raw.Type)
	}
	action, err := DecodeAction(raw.Type, raw.Action)
	if err != nil {
		action = &InvalidAction{Kind: raw.Type, Raw: string(raw.Action), Reason: err.Error()}
	}
	*t = ScheduledTask{
		ID:              raw.ID,
		Name:            raw.Name,
		Type:            raw.Type,
		Action:          action,
		Schedule:        raw.Schedule,
		IntervalSeconds: raw.IntervalSeconds,
		NextRun:         raw.NextRun,
		LastRun:         raw.LastRun,
		LastResult:      raw.LastResult,
		Status:          raw.Status,
	}
	return nil
}

// RunRecord captures a single execution attempt of a task.
type RunRecord struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Result    string    `json:"result"`
}
