package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action is the per-type payload of a task. Exactly one concrete type exists per TaskType.
type Action interface {
	Type() TaskType
	validate() error
	clone() Action
}

// CommandAction runs a literal shell command.
type CommandAction struct {
	Command string
}

func (a *CommandAction) Type() TaskType { return TaskTypeCommand }

func (a *CommandAction) validate() error {
	if strings.TrimSpace(a.Command) == "" {
		return errors.New("command is required")
	}
	return nil
}

func (a *CommandAction) clone() Action { c := *a; return &c }

// SwarmAction hands an objective to the external swarm orchestrator.
type SwarmAction struct {
	Objective string
}

func (a *SwarmAction) Type() TaskType { return TaskTypeSwarm }

func (a *SwarmAction) validate() error {
	if strings.TrimSpace(a.Objective) == "" {
		return errors.New("swarm objective is required")
	}
	return nil
}

func (a *SwarmAction) clone() Action { c := *a; return &c }

// FlowAction runs a named flow, optionally restricted to a set of roles.
type FlowAction struct {
	FlowID string   `json:"flowId"`
	Roles  []string `json:"roles,omitempty"`
}

func (a *FlowAction) Type() TaskType { return TaskTypeFlow }

func (a *FlowAction) validate() error {
	if strings.TrimSpace(a.FlowID) == "" {
		return errors.New("flowId is required")
	}
	return nil
}

func (a *FlowAction) clone() Action {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}

// JulesAction requests a remote agent session.
type JulesAction struct {
	Prompt         string `json:"prompt"`
	Source         string `json:"source,omitempty"`
	Title          string `json:"title,omitempty"`
	StartingBranch string `json:"startingBranch,omitempty"`
	AutoApprove    *bool  `json:"autoApprove,omitempty"`
}

func (a *JulesAction) Type() TaskType { return TaskTypeJules }

func (a *JulesAction) validate() error {
	if strings.TrimSpace(a.Prompt) == "" {
		return errors.New("jules prompt is required")
	}
	return nil
}

func (a *JulesAction) clone() Action {
	c := *a
	if a.AutoApprove != nil {
		v := *a.AutoApprove
		c.AutoApprove = &v
	}
	return &c
}

// ShouldApprove reports whether the plan is approved right after session creation.
// Only an explicit false disables it.
func (a *JulesAction) ShouldApprove() bool {
	return a.AutoApprove == nil || *a.AutoApprove
}

// InvalidAction holds a persisted payload that could not be decoded for its type.
type InvalidAction struct {
	Kind   TaskType
	Raw    string
	Reason string
}

func (a *InvalidAction) Type() TaskType { return a.Kind }

func (a *InvalidAction) validate() error {
	return fmt.Errorf("invalid %s payload: %s", a.Kind, a.Reason)
}

func (a *InvalidAction) clone() Action { c := *a; return &c }

// ParseAction builds an Action from its textual form. Command and swarm take the
// text literally. Flow text is parsed optimistically: a JSON object with a flowId
// is structured, anything else is a literal flow id. Jules text must be a JSON
// object.
func ParseAction(t TaskType, text string) (Action, error) {
	switch t {
	case TaskTypeCommand:
		return &CommandAction{Command: text}, nil
	case TaskTypeSwarm:
		return &SwarmAction{Objective: text}, nil
	case TaskTypeFlow:
		return ParseFlowAction(text), nil
	case TaskTypeJules:
		var a JulesAction
		if err := json.Unmarshal([]byte(text), &a); err != nil {
			return nil, fmt.Errorf("parse jules payload: %w", err)
		}
		return &a, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", t)
	}
}

// ParseFlowAction interprets text as a structured flow payload when possible and
// falls back to treating the whole text as the flow id.
func ParseFlowAction(text string) *FlowAction {
	var structured struct {
		FlowID *string  `json:"flowId"`
		Roles  []string `json:"roles"`
	}
	if err := json.Unmarshal([]byte(text), &structured); err == nil && structured.FlowID != nil {
		return &FlowAction{FlowID: *structured.FlowID, Roles: structured.Roles}
	}
	return &FlowAction{FlowID: text}
}

// EncodeAction returns the JSON form of an action: a string for command and swarm,
// an object for flow and jules.
func EncodeAction(a Action) (json.RawMessage, error) {
	switch v := a.(type) {
	case *CommandAction:
		return json.Marshal(v.Command)
	case *SwarmAction:
		return json.Marshal(v.Objective)
	case *FlowAction:
		return json.Marshal(v)
	case *JulesAction:
		return json.Marshal(v)
	case *InvalidAction:
		if json.Valid([]byte(v.Raw)) {
			return json.RawMessage(v.Raw), nil
		}
		return json.Marshal(v.Raw)
	case nil:
		return nil, errors.New("nil action")
	default:
		return nil, fmt.Errorf("unsupported action %T", a)
	}
}

// DecodeAction is the inverse of EncodeAction. Flow and jules payloads stored as
// JSON strings are accepted and parsed with ParseAction. A flow object without a
// string flowId is kept whole as a literal flow id.
func DecodeAction(t TaskType, raw json.RawMessage) (Action, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("missing action")
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return ParseAction(t, text)
	}
	switch t {
	case TaskTypeFlow:
		return ParseFlowAction(string(raw)), nil
	case TaskTypeJules:
		var a JulesAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return &a, nil
	default:
		return nil, fmt.Errorf("%s action must be a string", t)
	}
}
