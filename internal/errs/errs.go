// Package errs defines the error kinds the engine distinguishes (§7).
//
// These are sentinel values meant to be wrapped with fmt.Errorf("...: %w", ...)
// at the point of failure and matched with errors.Is at the boundary that
// needs to react differently per kind (the caller-facing API, the
// consolidation worker's retry loop, the Reflect loop).
package errs

import "errors"

var (
	// ErrInvalidInput covers a malformed bank id, empty/over-length text, or a
	// fact_type outside the allowed set. Never retried.
	ErrInvalidInput = errors.New("invalid_input")

	// ErrUpstreamUnavailable covers an LLM or embedding provider call failure.
	// Retain/Reflect fail fast; Consolidation logs and continues with the next fact.
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")

	// ErrConcurrencyConflict covers a unique-index violation recoverable by
	// reloading and returning the winner's row (e.g. two concurrent mental
	// model generations for the same entity).
	ErrConcurrencyConflict = errors.New("concurrency_conflict")

	// ErrGuardrailRejected covers Reflect's `done` guardrails: cited ids
	// stripped to nothing, or a directive post-check failure.
	ErrGuardrailRejected = errors.New("guardrail_rejected")

	// ErrTimeout covers a Reflect invocation that exceeded its wall clock.
	ErrTimeout = errors.New("timeout")

	// ErrFatal covers an invariant violation. The process should abort and
	// alert; this is never expected in normal operation.
	ErrFatal = errors.New("fatal")
)
