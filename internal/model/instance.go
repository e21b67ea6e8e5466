package model

import "time"

// Instance state constants.
const (
	StateProvisioning   = "provisioning"
	StateRunning        = "running"
	StateFailed         = "failed"
	StateDeprovisioning = "deprovisioning"
	StateTerminated     = "terminated"
)

// validTransitions maps each state to the set of states it may transition to.
// Terminated is absorbing and therefore absent.
var validTransitions = map[string]map[string]bool{
	StateProvisioning: {
		StateRunning:        true,
		StateFailed:         true,
		StateDeprovisioning: true,
	},
	StateRunning: {
		StateDeprovisioning: true,
	},
	StateFailed: {
		StateProvisioning:   true,
		StateDeprovisioning: true,
	},
	StateDeprovisioning: {
		StateTerminated: true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Transient reports whether the state is one callers are expected to poll
// through (background work is still in flight).
func Transient(state string) bool {
	return state == StateProvisioning || state == StateDeprovisioning
}

// LabInstance is a single user's ephemeral provisioned environment for one
// lab environment. Records are soft-terminated via state and retained for
// history; the engine never deletes them.
type LabInstance struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	EnvironmentID string            `json:"environment_id"`
	State         string            `json:"state"`
	StateDetails  string            `json:"state_details"`
	AccessURL     string            `json:"access_url,omitempty"`
	Credentials   map[string]string `json:"credentials,omitempty"`
	Attempt       int               `json:"attempt"`
	CreatedAt     time.Time         `json:"created_at"`
	TerminatedAt  *time.Time        `json:"terminated_at,omitempty"`
}

// TaskProgress tracks verification attempts for one task of one instance.
// Created lazily on first submission; Completed flips false→true at most once
// and is immutable afterwards.
type TaskProgress struct {
	InstanceID    string     `json:"instance_id"`
	TaskID        string     `json:"task_id"`
	Completed     bool       `json:"completed"`
	Attempts      int        `json:"attempts"`
	Score         int        `json:"score"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}
