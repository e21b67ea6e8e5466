package engine

import (
	"context"
	"fmt"
	"math"

	"labengine/internal/model"
)

// Progress is the derived completion summary for an instance.
type Progress struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percentage     int `json:"percentage"`
	TotalScore     int `json:"total_score"`
}

// GetProgress derives the instance's completion summary from its progress
// rows. Percentage is 0 for an environment with no tasks.
func (e *Engine) GetProgress(ctx context.Context, instanceID string) (*Progress, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	env, err := e.catalog.Environment(inst.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}

	rows, err := e.store.ListProgress(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	p := &Progress{TotalCount: len(env.Tasks)}
	for _, row := range rows {
		if row.Completed {
			p.CompletedCount++
			p.TotalScore += row.Score
		}
	}
	if p.TotalCount > 0 {
		p.Percentage = int(math.Round(float64(p.CompletedCount) / float64(p.TotalCount) * 100))
	}
	return p, nil
}

// NextTask selects the lowest-order task whose progress is not completed. If
// every task is complete, it returns the lowest-order task so a finished lab
// still has a sensible default view. Returns nil for an environment with no
// tasks. Selection depends only on task order, never on submission timing.
func (e *Engine) NextTask(ctx context.Context, instanceID string) (*model.LabTask, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	env, err := e.catalog.Environment(inst.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}
	if len(env.Tasks) == 0 {
		return nil, nil
	}

	rows, err := e.store.ListProgress(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	completed := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.Completed {
			completed[row.TaskID] = true
		}
	}

	// Tasks are kept sorted by order by the catalog.
	for i := range env.Tasks {
		if !completed[env.Tasks[i].ID] {
			return &env.Tasks[i], nil
		}
	}
	return &env.Tasks[0], nil
}
