package kernel

import (
	"errors"
	"fmt"
	"strings"
)

// Capability names used in denial messages.
const (
	CapabilityFilesystem = "filesystem"
	CapabilityShell      = "shell"
	CapabilityNetwork    = "network"
	CapabilitySandbox    = "sandbox"
)

// ErrCapabilityDenied matches every CapabilityDeniedError via errors.Is.
var ErrCapabilityDenied = errors.New("capability denied")

// ErrSchedulerUnavailable is returned by scheduler operations before a
// scheduler has been bound to the kernel.
var ErrSchedulerUnavailable = errors.New("scheduler is not available")

// CapabilityDeniedError is returned by the facade before any collaborator is
// touched when the active permissions do not cover an operation.
type CapabilityDeniedError struct {
	Capability string
	Required   string
	Have       string
	Violations []string
}

func (e *CapabilityDeniedError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("capability denied: %s policy: %s", e.Capability, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("capability denied: %s requires %s (have %s)", e.Capability, e.Required, e.Have)
}

func (e *CapabilityDeniedError) Is(target error) bool {
	return target == ErrCapabilityDenied
}

// IsCapabilityDenied reports whether err is a capability denial.
func IsCapabilityDenied(err error) bool {
	return errors.Is(err, ErrCapabilityDenied)
}
