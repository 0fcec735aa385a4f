package task

import (
	"fmt"
)

// AccessPolicy decides which tasks a caller may reach by id.
type AccessPolicy interface {
	// Scope returns the owner id that lookups are restricted to, or ""
	// when the caller may reach any task.
	Scope(callerID string) string
}

// AnyCaller lets every authenticated caller reach every task by id.
type AnyCaller struct{}

func (AnyCaller) Scope(string) string { return "" }

// OwnerOnly restricts callers to the tasks they own. Tasks of other owners
// look exactly like missing tasks.
type OwnerOnly struct{}

func (OwnerOnly) Scope(callerID string) string { return callerID }

// PolicyByName maps the TASK_ACCESS_POLICY setting to a policy.
func PolicyByName(name string) (AccessPolicy, error) {
	switch name {
	case "", "any":
		return AnyCaller{}, nil
	case "owner":
		return OwnerOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown task access policy %q", name)
	}
}
