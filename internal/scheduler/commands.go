package scheduler

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Default command templates. The placeholder is replaced by a shell-quoted value.
const (
	DefaultSwarmTemplate = "claude-flow swarm {objective}"
	DefaultFlowTemplate  = "claude-flow automation run-workflow {flow}"
)

// Templates are the command lines swarm and flow tasks expand into.
type Templates struct {
	Swarm string
	Flow  string
}

// DefaultTemplates returns the stock orchestrator commands.
func DefaultTemplates() Templates {
	return Templates{Swarm: DefaultSwarmTemplate, Flow: DefaultFlowTemplate}
}

func (t Templates) withDefaults() Templates {
	if strings.TrimSpace(t.Swarm) == "" {
		t.Swarm = DefaultSwarmTemplate
	}
	if strings.TrimSpace(t.Flow) == "" {
		t.Flow = DefaultFlowTemplate
	}
	return t
}

// BuildSwarmCommand expands the swarm template for objective.
func (t Templates) BuildSwarmCommand(objective string) string {
	return expand(t.withDefaults().Swarm, "{objective}", objective)
}

// BuildFlowCommand expands the flow template for flowID and appends a role
// filter when roles are given.
func (t Templates) BuildFlowCommand(flowID string, roles []string) string {
	cmd := expand(t.withDefaults().Flow, "{flow}", flowID)
	var filtered []string
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > 0 {
		cmd += " --roles " + shellquote.Join(strings.Join(filtered, ","))
	}
	return cmd
}

// expand substitutes placeholder, or appends the value when the template has none.
func expand(template, placeholder, value string) string {
	quoted := shellquote.Join(value)
	if strings.Contains(template, placeholder) {
		return strings.ReplaceAll(template, placeholder, quoted)
	}
	return template + " " + quoted
}
