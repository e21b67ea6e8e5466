package provisioner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-process Provisioner for development and tests. It simulates
// provisioning latency and supports failure injection. Safe for concurrent use.
type Fake struct {
	// ProvisionDelay and DeprovisionDelay simulate infrastructure latency.
	// Set before first use.
	ProvisionDelay   time.Duration
	DeprovisionDelay time.Duration

	// BaseURL is the prefix for generated access URLs.
	BaseURL string

	mu             sync.Mutex
	provisionErr   error
	deprovisionErr error
	active         map[string]bool
}

// NewFake creates a fake provisioner with no latency and no failures.
func NewFake() *Fake {
	return &Fake{
		BaseURL: "https://labs.local",
		active:  make(map[string]bool),
	}
}

// SetProvisionErr injects (or clears) a provisioning failure.
func (f *Fake) SetProvisionErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionErr = err
}

// SetDeprovisionErr injects (or clears) a teardown failure.
func (f *Fake) SetDeprovisionErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deprovisionErr = err
}

// Provision implements Provisioner. It waits out the configured delay (or the
// context, whichever ends first), then either fails with the injected error or
// returns generated access details.
func (f *Fake) Provision(ctx context.Context, instanceID, environmentID string) (Result, error) {
	if err := f.wait(ctx, f.ProvisionDelay); err != nil {
		return Result{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.provisionErr != nil {
		provisionsTotal.WithLabelValues(outcomeError).Inc()
		return Result{}, f.provisionErr
	}

	f.active[instanceID] = true
	provisionsTotal.WithLabelValues(outcomeOK).Inc()
	return Result{
		AccessURL: fmt.Sprintf("%s/%s/%s", f.BaseURL, environmentID, instanceID),
		Credentials: map[string]string{
			"username": "student",
			"password": uuid.NewString(),
		},
	}, nil
}

// Deprovision implements Provisioner. Unknown instance ids are treated as
// already destroyed.
func (f *Fake) Deprovision(ctx context.Context, instanceID string) error {
	if err := f.wait(ctx, f.DeprovisionDelay); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deprovisionErr != nil {
		deprovisionsTotal.WithLabelValues(outcomeError).Inc()
		return f.deprovisionErr
	}

	delete(f.active, instanceID)
	deprovisionsTotal.WithLabelValues(outcomeOK).Inc()
	return nil
}

// Active reports whether the fake currently holds infrastructure for the
// given instance. Used by tests to assert nothing leaks.
func (f *Fake) Active(instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[instanceID]
}

func (f *Fake) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
