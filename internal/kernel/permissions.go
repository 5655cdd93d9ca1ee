// Package kernel mediates every privileged desktop operation through a
// capability matrix. A Facade is built from a PermissionSet and the desktop's
// collaborators; the Manager owns the active facade and rebuilds it whenever the
// permissions change.
package kernel

import (
	"fmt"
)

// FSLevel is the ordered filesystem capability.
type FSLevel string

const (
	FSNone      FSLevel = "none"
	FSRead      FSLevel = "read"
	FSReadWrite FSLevel = "readwrite"
)

func (l FSLevel) rank() int {
	switch l {
	case FSRead:
		return 1
	case FSReadWrite:
		return 2
	default:
		return 0
	}
}

// Allows reports whether l grants at least required.
func (l FSLevel) Allows(required FSLevel) bool {
	return l.rank() >= required.rank()
}

// Access is a binary allow/deny capability.
type Access string

const (
	Allow Access = "allow"
	Deny  Access = "deny"
)

// PermissionSet is the capability matrix a facade enforces. It is a value type:
// compare with == and replace it wholesale.
type PermissionSet struct {
	FS            FSLevel `json:"fs" yaml:"fs"`
	Shell         Access  `json:"shell" yaml:"shell"`
	Network       Access  `json:"network" yaml:"network"`
	Notifications bool    `json:"notifications" yaml:"notifications"`
	Sandboxed     bool    `json:"sandboxed" yaml:"sandboxed"`
}

// DefaultPermissions is the matrix used when no profile is configured.
func DefaultPermissions() PermissionSet {
	return PermissionSet{
		FS:            FSReadWrite,
		Shell:         Allow,
		Network:       Allow,
		Notifications: true,
		Sandboxed:     false,
	}
}

// Validate rejects unknown enum values.
func (p PermissionSet) Validate() error {
	switch p.FS {
	case FSNone, FSRead, FSReadWrite:
	default:
		return fmt.Errorf("invalid fs level %q (want none, read or readwrite)", p.FS)
	}
	if p.Shell != Allow && p.Shell != Deny {
		return fmt.Errorf("invalid shell access %q (want allow or deny)", p.Shell)
	}
	if p.Network != Allow && p.Network != Deny {
		return fmt.Errorf("invalid network access %q (want allow or deny)", p.Network)
	}
	return nil
}
