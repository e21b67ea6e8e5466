// Package provisioner defines the contract between the lifecycle engine and
// whatever actually creates and destroys lab infrastructure. The engine only
// ever sees this interface; real cloud implementations plug in behind it.
package provisioner

import "context"

// Result holds the connection details of a successfully provisioned instance.
type Result struct {
	AccessURL   string            `json:"access_url"`
	Credentials map[string]string `json:"credentials"`
}

// Provisioner creates and destroys the infrastructure backing lab instances.
// Both operations respect context cancellation and deadlines; the engine
// enforces timeouts via the context.
type Provisioner interface {
	// Provision creates the infrastructure for an instance and returns its
	// access details once ready.
	Provision(ctx context.Context, instanceID, environmentID string) (Result, error)

	// Deprovision destroys the infrastructure for an instance. Deprovisioning
	// an instance that was never fully provisioned must succeed.
	Deprovision(ctx context.Context, instanceID string) error
}
