// Package catalog provides read-only lab environment definitions: each
// environment's ordered task list with points, hints, and verifier specs.
// Definitions are immutable per deployment, so lookups are served from memory.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"labengine/internal/model"
)

// ErrUnknownEnvironment is returned when an environment id is not in the catalog.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Catalog resolves environment definitions for the engine.
type Catalog interface {
	// Environment returns the definition for the given id, with tasks sorted
	// by order. Returns ErrUnknownEnvironment if the id is not known.
	Environment(environmentID string) (*model.LabEnvironment, error)

	// Environments returns all definitions sorted by id for a stable listing.
	Environments() []*model.LabEnvironment
}

// Static is an in-memory Catalog built from a fixed set of environments.
type Static struct {
	environments map[string]*model.LabEnvironment
}

// NewStatic builds a catalog from the given environments, validating each
// definition: task orders must be unique within an environment and points
// must be non-negative.
func NewStatic(envs []model.LabEnvironment) (*Static, error) {
	byID := make(map[string]*model.LabEnvironment, len(envs))
	for i := range envs {
		env := envs[i]
		if env.ID == "" {
			return nil, fmt.Errorf("environment %d: missing id", i)
		}
		if _, dup := byID[env.ID]; dup {
			return nil, fmt.Errorf("environment %q: duplicate id", env.ID)
		}
		if err := validateTasks(&env); err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.ID, err)
		}
		sort.Slice(env.Tasks, func(a, b int) bool {
			return env.Tasks[a].Order < env.Tasks[b].Order
		})
		byID[env.ID] = &env
	}
	return &Static{environments: byID}, nil
}

// LoadFile reads a JSON catalog document from disk and builds a Static catalog.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc struct {
		Environments []model.LabEnvironment `json:"environments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	return NewStatic(doc.Environments)
}

func validateTasks(env *model.LabEnvironment) error {
	orders := make(map[int]string, len(env.Tasks))
	ids := make(map[string]bool, len(env.Tasks))
	for i := range env.Tasks {
		task := &env.Tasks[i]
		if task.ID == "" {
			return fmt.Errorf("task %d: missing id", i)
		}
		if ids[task.ID] {
			return fmt.Errorf("task %q: duplicate id", task.ID)
		}
		ids[task.ID] = true
		if task.Points < 0 {
			return fmt.Errorf("task %q: negative points", task.ID)
		}
		if other, taken := orders[task.Order]; taken {
			return fmt.Errorf("task %q: order %d already used by %q", task.ID, task.Order, other)
		}
		orders[task.Order] = task.ID
		if task.Verifier.Kind == "" {
			return fmt.Errorf("task %q: missing verifier kind", task.ID)
		}
		task.EnvironmentID = env.ID
	}
	return nil
}

// Environment implements Catalog.
func (c *Static) Environment(environmentID string) (*model.LabEnvironment, error) {
	env, ok := c.environments[environmentID]
	if !ok {
		return nil, ErrUnknownEnvironment
	}
	return env, nil
}

// Environments implements Catalog.
func (c *Static) Environments() []*model.LabEnvironment {
	envs := make([]*model.LabEnvironment, 0, len(c.environments))
	for _, env := range c.environments {
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })
	return envs
}
