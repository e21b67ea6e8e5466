// Package verify checks submitted solutions against a task's verifier spec.
// Verifiers are polymorphic over the spec kind: exact text comparison, regular
// expression match, or a delegated external check. The dispatcher is agnostic
// to the check's internals.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"labengine/internal/model"
)

// Verification outcome constants. Wrong is an expected negative result, not a
// system error; Unavailable means the check itself could not run and the same
// submission may be retried.
const (
	OutcomeSuccess     = "success"
	OutcomeWrong       = "wrong"
	OutcomeUnavailable = "unavailable"
)

// Result is the outcome of checking one submission.
type Result struct {
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// ExternalChecker runs a delegated infrastructure check identified by ref
// against the submitted solution. A non-nil error means the check could not
// run; ok reports whether the solution passed.
type ExternalChecker func(ctx context.Context, ref, solution string) (ok bool, detail string, err error)

// Dispatcher resolves verifier specs to concrete checks. Compiled patterns
// are cached since catalog definitions are immutable per deployment.
type Dispatcher struct {
	external ExternalChecker

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewDispatcher creates a dispatcher. external may be nil, in which case
// external-kind verifiers report Unavailable.
func NewDispatcher(external ExternalChecker) *Dispatcher {
	return &Dispatcher{
		external: external,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Verify checks solution against spec and returns the outcome. Infrastructure
// trouble (unknown kind, bad pattern, failing external check) is reported as
// OutcomeUnavailable rather than an error so callers can distinguish "retry"
// from "fix your answer".
func (d *Dispatcher) Verify(ctx context.Context, spec model.VerifierSpec, solution string) Result {
	switch spec.Kind {
	case model.VerifierExact:
		return d.verifyExact(spec, solution)
	case model.VerifierRegexp:
		return d.verifyRegexp(spec, solution)
	case model.VerifierExternal:
		return d.verifyExternal(ctx, spec, solution)
	default:
		return Result{
			Outcome: OutcomeUnavailable,
			Message: fmt.Sprintf("unsupported verifier kind %q", spec.Kind),
		}
	}
}

func (d *Dispatcher) verifyExact(spec model.VerifierSpec, solution string) Result {
	if strings.TrimSpace(solution) == strings.TrimSpace(spec.Value) {
		return Result{Outcome: OutcomeSuccess}
	}
	return Result{Outcome: OutcomeWrong, Message: wrongMessage(spec)}
}

func (d *Dispatcher) verifyRegexp(spec model.VerifierSpec, solution string) Result {
	re, err := d.pattern(spec.Value)
	if err != nil {
		return Result{
			Outcome: OutcomeUnavailable,
			Message: fmt.Sprintf("invalid verifier pattern: %v", err),
		}
	}
	if re.MatchString(strings.TrimSpace(solution)) {
		return Result{Outcome: OutcomeSuccess}
	}
	return Result{Outcome: OutcomeWrong, Message: wrongMessage(spec)}
}

func (d *Dispatcher) verifyExternal(ctx context.Context, spec model.VerifierSpec, solution string) Result {
	if d.external == nil {
		return Result{
			Outcome: OutcomeUnavailable,
			Message: "external verification is not configured",
		}
	}

	ok, detail, err := d.external(ctx, spec.Value, solution)
	if err != nil {
		return Result{
			Outcome: OutcomeUnavailable,
			Message: fmt.Sprintf("external check failed to run: %v", err),
		}
	}
	if ok {
		return Result{Outcome: OutcomeSuccess, Message: detail}
	}
	if detail == "" {
		detail = wrongMessage(spec)
	}
	return Result{Outcome: OutcomeWrong, Message: detail}
}

// pattern compiles value as a full-match anchored regexp, caching the result.
func (d *Dispatcher) pattern(value string) (*regexp.Regexp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if re, ok := d.patterns[value]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + value + ")$")
	if err != nil {
		return nil, err
	}
	d.patterns[value] = re
	return re, nil
}

func wrongMessage(spec model.VerifierSpec) string {
	if spec.Message != "" {
		return spec.Message
	}
	return "solution does not match the expected result"
}
