package kernel

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// SandboxPackage is the Rego package queried for shell decisions.
const SandboxPackage = "agentdesk.sandbox"

//go:embed policy/sandbox.rego
var defaultSandboxModule string

// CommandInput is the document a sandbox policy receives as `input`.
type CommandInput struct {
	Command     string
	WorkDir     string
	Permissions PermissionSet
}

func (in CommandInput) toMap() map[string]any {
	return map[string]any{
		"command": in.Command,
		"workdir": in.WorkDir,
		"permissions": map[string]any{
			"fs":            string(in.Permissions.FS),
			"shell":         string(in.Permissions.Shell),
			"network":       string(in.Permissions.Network),
			"notifications": in.Permissions.Notifications,
			"sandboxed":     in.Permissions.Sandboxed,
		},
	}
}

// CommandPolicy decides whether a sandboxed shell command may run. It returns
// the violated rules; an empty result allows the command.
type CommandPolicy interface {
	Check(ctx context.Context, in CommandInput) ([]string, error)
}

// SandboxPolicy evaluates shell commands against Rego `deny` rules.
type SandboxPolicy struct {
	query rego.PreparedEvalQuery
}

// NewSandboxPolicy compiles module. An empty module selects the built-in policy.
func NewSandboxPolicy(ctx context.Context, module string) (*SandboxPolicy, error) {
	if module == "" {
		module = defaultSandboxModule
	}
	query, err := rego.New(
		rego.Query(fmt.Sprintf("data.%s.deny", SandboxPackage)),
		rego.Module("sandbox.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile sandbox policy: %w", err)
	}
	return &SandboxPolicy{query: query}, nil
}

// LoadSandboxPolicy reads a Rego module from path. An empty path selects the
// built-in policy.
func LoadSandboxPolicy(ctx context.Context, fs afero.Fs, path string) (*SandboxPolicy, error) {
	if path == "" {
		return NewSandboxPolicy(ctx, "")
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read sandbox policy %s: %w", path, err)
	}
	return NewSandboxPolicy(ctx, string(data))
}

// Check returns the sorted deny messages for in.
func (p *SandboxPolicy) Check(ctx context.Context, in CommandInput) ([]string, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return nil, fmt.Errorf("evaluate sandbox policy: %w", err)
	}
	var violations []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, item := range set {
				if s, ok := item.(string); ok {
					violations = append(violations, s)
				}
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}
