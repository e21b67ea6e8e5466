package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"labengine/internal/catalog"
	"labengine/internal/model"
	"labengine/internal/provisioner"
	"labengine/internal/store"
	"labengine/internal/verify"
)

// Default timeouts for background provisioning and teardown work.
const (
	DefaultProvisionTimeout = 5 * time.Minute
	DefaultTeardownTimeout  = 2 * time.Minute
)

// Engine orchestrates the lab instance lifecycle and task verification.
type Engine struct {
	store    store.Store
	catalog  catalog.Catalog
	prov     provisioner.Provisioner
	verifier *verify.Dispatcher
	logger   *slog.Logger
	console  *ConsoleBroker

	provisionTimeout time.Duration
	teardownTimeout  time.Duration

	wg    sync.WaitGroup
	locks *keyedMutex

	// inflight tracks cancellation handles for provisioning goroutines so a
	// terminate request can cancel and await them before tearing down.
	mu       sync.Mutex
	inflight map[string]*provisionHandle
}

type provisionHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Options tunes engine timeouts. Zero values fall back to the defaults.
type Options struct {
	ProvisionTimeout time.Duration
	TeardownTimeout  time.Duration
}

// New creates an engine.
func New(s store.Store, cat catalog.Catalog, prov provisioner.Provisioner, verifier *verify.Dispatcher, logger *slog.Logger, opts Options) *Engine {
	if opts.ProvisionTimeout <= 0 {
		opts.ProvisionTimeout = DefaultProvisionTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	return &Engine{
		store:            s,
		catalog:          cat,
		prov:             prov,
		verifier:         verifier,
		logger:           logger,
		console:          NewConsoleBroker(),
		provisionTimeout: opts.ProvisionTimeout,
		teardownTimeout:  opts.TeardownTimeout,
		locks:            newKeyedMutex(),
		inflight:         make(map[string]*provisionHandle),
	}
}

// Console returns the engine's console broker for snapshot and SSE access.
func (e *Engine) Console() *ConsoleBroker {
	return e.console
}

// Wait blocks until all in-flight background goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// StartInstance returns the user's live instance for the environment, creating
// one in the provisioning state and launching background provisioning if none
// exists. Idempotent: a second call while an instance is live returns that
// instance unchanged.
func (e *Engine) StartInstance(ctx context.Context, userID, environmentID string) (*model.LabInstance, error) {
	env, err := e.catalog.Environment(environmentID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock("start:" + userID + "/" + environmentID)
	defer unlock()

	existing, err := e.store.ActiveInstance(ctx, userID, environmentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up active instance: %w", err)
	}

	inst := &model.LabInstance{
		ID:            model.NewID(),
		UserID:        userID,
		EnvironmentID: env.ID,
		State:         model.StateProvisioning,
		StateDetails:  "provisioning requested",
		Attempt:       1,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateInstance(ctx, inst); err != nil {
		if errors.Is(err, store.ErrDuplicateInstance) {
			// Lost a create race; the winner's instance is the caller's instance.
			return e.store.ActiveInstance(ctx, userID, environmentID)
		}
		return nil, fmt.Errorf("create instance: %w", err)
	}

	transitionsTotal.WithLabelValues(model.StateProvisioning).Inc()
	e.console.Append(inst.ID, model.ConsoleInfo, fmt.Sprintf("provisioning environment %q", env.Name))
	e.startProvisioning(inst.ID, env.ID)

	return inst, nil
}

// GetInstance retrieves an instance by id. Clients poll this while the
// instance is in a transient state.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*model.LabInstance, error) {
	return e.store.GetInstance(ctx, instanceID)
}

// ListUserInstances returns a page of the user's instances, newest first.
func (e *Engine) ListUserInstances(ctx context.Context, userID string, limit, offset int) ([]*model.LabInstance, int, error) {
	return e.store.ListUserInstances(ctx, userID, limit, offset)
}

// TerminateInstance moves an instance into deprovisioning and launches
// background teardown. A no-op when the instance is already deprovisioning or
// terminated. Terminating a provisioning instance cancels the in-flight
// provisioning work; teardown waits for it to settle so the underlying
// resource is never leaked.
func (e *Engine) TerminateInstance(ctx context.Context, instanceID string) (*model.LabInstance, error) {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if inst.State == model.StateDeprovisioning || inst.State == model.StateTerminated {
		return inst, nil
	}

	if err := e.store.TransitionInstance(ctx, instanceID, inst.State, model.StateDeprovisioning, "terminate requested"); err != nil {
		return nil, fmt.Errorf("transition to deprovisioning: %w", err)
	}
	transitionsTotal.WithLabelValues(model.StateDeprovisioning).Inc()
	e.console.Append(instanceID, model.ConsoleInfo, "terminate requested")

	e.mu.Lock()
	h := e.inflight[instanceID]
	e.mu.Unlock()
	if h != nil {
		h.cancel()
	}

	e.wg.Go(func() {
		e.teardown(instanceID, h)
	})

	return e.store.GetInstance(ctx, instanceID)
}

// RetryProvisioning re-enters provisioning from the failed state, incrementing
// the attempt counter. Any other state is an invalid transition.
func (e *Engine) RetryProvisioning(ctx context.Context, instanceID string) (*model.LabInstance, error) {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	if err := e.store.RetryInstance(ctx, instanceID, "provisioning retry requested"); err != nil {
		return nil, err
	}

	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(model.StateProvisioning).Inc()
	e.console.Append(instanceID, model.ConsoleInfo, fmt.Sprintf("retrying provisioning (attempt %d)", inst.Attempt))
	e.startProvisioning(instanceID, inst.EnvironmentID)

	return inst, nil
}

// startProvisioning launches the background provisioning goroutine and
// registers its cancellation handle.
func (e *Engine) startProvisioning(instanceID, environmentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.provisionTimeout)
	h := &provisionHandle{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.inflight[instanceID] = h
	e.mu.Unlock()

	e.wg.Go(func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			e.mu.Lock()
			delete(e.inflight, instanceID)
			e.mu.Unlock()
		}()
		e.provision(ctx, instanceID, environmentID)
	})
}

// provision runs one provisioning attempt: provisioning→running on success,
// provisioning→failed on error or timeout. If termination raced the attempt,
// the compare-and-set update loses and the teardown path owns the instance.
func (e *Engine) provision(ctx context.Context, instanceID, environmentID string) {
	res, err := e.prov.Provision(ctx, instanceID, environmentID)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Terminate raced provisioning; teardown owns the instance now.
			e.console.Append(instanceID, model.ConsoleInfo, "provisioning cancelled")
			return
		}

		reason := fmt.Sprintf("provisioning failed: %v", err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("provisioning timed out after %s", e.provisionTimeout)
		}
		e.console.Append(instanceID, model.ConsoleError, reason)

		if err := e.store.TransitionInstance(context.Background(), instanceID, model.StateProvisioning, model.StateFailed, reason); err != nil {
			if !errors.Is(err, store.ErrInvalidTransition) {
				e.logger.Error("failed to record provisioning failure", "instance_id", instanceID, "error", err)
			}
			return
		}
		transitionsTotal.WithLabelValues(model.StateFailed).Inc()
		e.logger.Warn("provisioning failed", "instance_id", instanceID, "reason", reason)
		return
	}

	if err := e.store.MarkRunning(context.Background(), instanceID, res.AccessURL, res.Credentials); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Terminate won the race after the resource came up; teardown
			// waits on this goroutine and will destroy it.
			return
		}
		e.logger.Error("failed to mark instance running", "instance_id", instanceID, "error", err)
		return
	}

	transitionsTotal.WithLabelValues(model.StateRunning).Inc()
	e.console.Append(instanceID, model.ConsoleSuccess, fmt.Sprintf("environment ready at %s", res.AccessURL))
	e.logger.Info("instance running", "instance_id", instanceID, "access_url", res.AccessURL)
}

// teardown destroys the instance's infrastructure and finishes the
// deprovisioning→terminated transition. When provisioning was still in
// flight, it waits for that goroutine to settle first.
func (e *Engine) teardown(instanceID string, inflight *provisionHandle) {
	if inflight != nil {
		<-inflight.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.teardownTimeout)
	defer cancel()

	details := "terminated"
	if err := e.prov.Deprovision(ctx, instanceID); err != nil {
		details = fmt.Sprintf("terminated; teardown reported: %v", err)
		e.console.Append(instanceID, model.ConsoleError, fmt.Sprintf("teardown error: %v", err))
		e.logger.Error("teardown failed", "instance_id", instanceID, "error", err)
	}

	if err := e.store.TransitionInstance(context.Background(), instanceID, model.StateDeprovisioning, model.StateTerminated, details); err != nil {
		e.logger.Error("failed to record termination", "instance_id", instanceID, "error", err)
	} else {
		transitionsTotal.WithLabelValues(model.StateTerminated).Inc()
	}

	e.console.Append(instanceID, model.ConsoleInfo, "environment terminated")
	e.console.Close(instanceID)
}
