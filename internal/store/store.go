package store

import (
	"context"
	"errors"
	"time"

	"labengine/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateInstance is returned when creating an instance would violate the
// one-live-instance-per-(user, environment) constraint.
var ErrDuplicateInstance = errors.New("active instance already exists")

// ErrInvalidTransition is returned when a compare-and-set state update finds
// the instance in a different state than expected.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrAlreadyCompleted is returned when a task completion loses the
// completed-once ratchet.
var ErrAlreadyCompleted = errors.New("task already completed")

// InstanceStats holds aggregate instance counts for operators.
type InstanceStats struct {
	Total              int            `json:"total"`
	CountByState       map[string]int `json:"count_by_state"`
	CountByEnvironment map[string]int `json:"count_by_environment"`
}

// Store defines the persistence operations for lab instances and task progress.
//
// State-changing instance methods are compare-and-set on the current state so
// that concurrent writers cannot both apply conflicting transitions; losers
// receive ErrInvalidTransition and must re-read.
type Store interface {
	// CreateInstance inserts a new instance. Returns ErrDuplicateInstance when
	// a non-terminated instance already exists for the same user and environment.
	CreateInstance(ctx context.Context, inst *model.LabInstance) error

	// GetInstance retrieves an instance by id.
	GetInstance(ctx context.Context, id string) (*model.LabInstance, error)

	// ActiveInstance returns the non-terminated instance for the given user
	// and environment, or ErrNotFound.
	ActiveInstance(ctx context.Context, userID, environmentID string) (*model.LabInstance, error)

	// ListUserInstances returns a page of the user's instances ordered by
	// created_at DESC, along with the user's total instance count.
	ListUserInstances(ctx context.Context, userID string, limit, offset int) ([]*model.LabInstance, int, error)

	// TransitionInstance moves an instance from one state to another, updating
	// state details. Reaching terminated sets terminated_at.
	TransitionInstance(ctx context.Context, id, from, to, details string) error

	// MarkRunning transitions provisioning→running and records access details.
	MarkRunning(ctx context.Context, id, accessURL string, credentials map[string]string) error

	// RetryInstance transitions failed→provisioning and increments the attempt
	// counter.
	RetryInstance(ctx context.Context, id, details string) error

	// RecordAttempt upserts the progress row for (instanceID, taskID),
	// incrementing attempts and stamping last_attempt_at, and returns the
	// updated row.
	RecordAttempt(ctx context.Context, instanceID, taskID string, at time.Time) (*model.TaskProgress, error)

	// CompleteTask flips the completed ratchet and awards the score. Returns
	// ErrAlreadyCompleted if another writer won the ratchet first.
	CompleteTask(ctx context.Context, instanceID, taskID string, score int) error

	// GetProgress retrieves the progress row for (instanceID, taskID).
	GetProgress(ctx context.Context, instanceID, taskID string) (*model.TaskProgress, error)

	// ListProgress returns all progress rows for an instance.
	ListProgress(ctx context.Context, instanceID string) ([]model.TaskProgress, error)

	// InstanceStats returns aggregate counts across all instances.
	InstanceStats(ctx context.Context) (*InstanceStats, error)

	Close() error
}
