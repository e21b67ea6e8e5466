// Package engine orchestrates the lab instance lifecycle and task
// verification. It owns the instance state machine, runs provisioning and
// teardown as background tasks with enforced timeouts, serializes mutation
// per instance, applies the task verifier to submissions with a
// completed-once scoring ratchet, and derives per-instance progress.
package engine
