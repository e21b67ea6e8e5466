package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labengine/internal/model"
	"labengine/internal/store"
	"labengine/internal/verify"
)

// ErrInstanceNotRunning is returned when a submission targets an instance
// whose state does not accept verification traffic.
var ErrInstanceNotRunning = errors.New("instance is not running")

// ErrUnknownTask is returned when a task id does not belong to the instance's
// environment.
var ErrUnknownTask = errors.New("unknown task")

// VerificationResult reports the outcome of one solution submission.
type VerificationResult struct {
	InstanceID string `json:"instance_id"`
	TaskID     string `json:"task_id"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message,omitempty"`
	Attempts   int    `json:"attempts"`
	Completed  bool   `json:"completed"`
	Score      int    `json:"score"`
}

// SubmitSolution verifies a submitted solution against the task's verifier.
// Completion is a one-way ratchet: once a task is completed, further
// submissions fail with store.ErrAlreadyCompleted and are never re-scored.
// A wrong answer is a normal negative result, not an error; a verifier that
// cannot run reports the distinct "unavailable" outcome and may be retried.
func (e *Engine) SubmitSolution(ctx context.Context, instanceID, taskID, solution string) (*VerificationResult, error) {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.State != model.StateRunning {
		return nil, ErrInstanceNotRunning
	}

	env, err := e.catalog.Environment(inst.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}
	task := env.Task(taskID)
	if task == nil {
		return nil, ErrUnknownTask
	}

	if progress, err := e.store.GetProgress(ctx, instanceID, taskID); err == nil && progress.Completed {
		return nil, store.ErrAlreadyCompleted
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up progress: %w", err)
	}

	progress, err := e.store.RecordAttempt(ctx, instanceID, taskID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	res := e.verifier.Verify(ctx, task.Verifier, solution)
	verificationsTotal.WithLabelValues(res.Outcome).Inc()

	result := &VerificationResult{
		InstanceID: instanceID,
		TaskID:     taskID,
		Outcome:    res.Outcome,
		Message:    res.Message,
		Attempts:   progress.Attempts,
	}

	switch res.Outcome {
	case verify.OutcomeSuccess:
		if err := e.store.CompleteTask(ctx, instanceID, taskID, task.Points); err != nil {
			if errors.Is(err, store.ErrAlreadyCompleted) {
				return nil, err
			}
			return nil, fmt.Errorf("complete task: %w", err)
		}
		result.Completed = true
		result.Score = task.Points
		if result.Message == "" {
			result.Message = fmt.Sprintf("task %q completed", task.Title)
		}
		e.console.Append(instanceID, model.ConsoleSuccess,
			fmt.Sprintf("task %q completed (+%d points)", task.Title, task.Points))

	case verify.OutcomeWrong:
		e.console.Append(instanceID, model.ConsoleError,
			fmt.Sprintf("task %q attempt %d failed: %s", task.Title, progress.Attempts, res.Message))

	case verify.OutcomeUnavailable:
		e.console.Append(instanceID, model.ConsoleInfo,
			fmt.Sprintf("verifier for task %q unavailable: %s", task.Title, res.Message))
	}

	return result, nil
}

// TaskView is a task as disclosed to a learner: the verifier internals are
// withheld, and the solution text only appears once the task is completed.
type TaskView struct {
	ID           string `json:"id"`
	Order        int    `json:"order"`
	Title        string `json:"title"`
	Points       int    `json:"points"`
	HintText     string `json:"hint_text,omitempty"`
	Completed    bool   `json:"completed"`
	Attempts     int    `json:"attempts"`
	SolutionText string `json:"solution_text,omitempty"`
}

// InstanceTasks returns the instance's task list in order, merged with its
// progress, with solutions disclosed only for completed tasks.
func (e *Engine) InstanceTasks(ctx context.Context, instanceID string) ([]TaskView, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	env, err := e.catalog.Environment(inst.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve environment: %w", err)
	}

	progress, err := e.store.ListProgress(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	byTask := make(map[string]*model.TaskProgress, len(progress))
	for i := range progress {
		byTask[progress[i].TaskID] = &progress[i]
	}

	views := make([]TaskView, 0, len(env.Tasks))
	for i := range env.Tasks {
		task := &env.Tasks[i]
		view := TaskView{
			ID:       task.ID,
			Order:    task.Order,
			Title:    task.Title,
			Points:   task.Points,
			HintText: task.HintText,
		}
		if p, ok := byTask[task.ID]; ok {
			view.Completed = p.Completed
			view.Attempts = p.Attempts
			if p.Completed {
				view.SolutionText = task.SolutionText
			}
		}
		views = append(views, view)
	}
	return views, nil
}
