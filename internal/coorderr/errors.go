// Package coorderr implements the coordinator's error taxonomy (spec.md
// §7). Each kind is realized as its own type so callers can use errors.As
// to decide how to react: return to the client, log and continue, or abort
// the event loop.
package coorderr

import (
	"fmt"
	"log/slog"
)

// PlanError is returned to the client unchanged: a statement the planner
// rejected (out of scope to construct here, spec.md §1, but the type the
// planner package wraps its own errors in so C8 can recognize them).
type PlanError struct {
	Stmt string
	Err  error
}

func (e *PlanError) Error() string { return fmt.Sprintf("plan error for %q: %v", e.Stmt, e.Err) }
func (e *PlanError) Unwrap() error { return e.Err }

// CatalogConflictError is returned to the client: the statement conflicted
// with a concurrent catalog change (e.g. CREATE TABLE IF NOT EXISTS racing
// another session).
type CatalogConflictError struct {
	Err error
}

func (e *CatalogConflictError) Error() string { return fmt.Sprintf("catalog conflict: %v", e.Err) }
func (e *CatalogConflictError) Unwrap() error { return e.Err }

// TimestampUnavailableError is returned to the client: no timestamp in the
// requested range is both valid (>= since) and complete (< upper) yet, or
// the read depends on a relation that no index materializes at all.
type TimestampUnavailableError struct {
	RelationID string
	Reason     string
}

func (e *TimestampUnavailableError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "since has not yet reached a readable point"
	}
	return fmt.Sprintf("timestamp unavailable for %s: %s", e.RelationID, reason)
}

// FrontierCorrectedError is logged, not returned to the caller: a dataflow
// about to be shipped had an as_of (ReportedSince) below the least valid
// since of its imports (ReportedUpper), and the coordinator raised the
// as_of in place (spec.md §7).
type FrontierCorrectedError struct {
	ID             string
	ReportedSince  string
	ReportedUpper  string
}

func (e *FrontierCorrectedError) Error() string {
	return fmt.Sprintf("corrected frontier for %s: as_of=%s was below least valid since=%s", e.ID, e.ReportedSince, e.ReportedUpper)
}

// Log records a FrontierCorrectedError at warn level, matching spec.md §7's "logged, not returned to the caller" handling.
func (e *FrontierCorrectedError) Log(logger *slog.Logger) {
	logger.Warn("frontier corrected", "id", e.ID, "reported_since", e.ReportedSince, "reported_upper", e.ReportedUpper)
}

// ExternalSideEffectError wraps a failure from the sink builder or source
// cacher collaborator (spec.md §6): these may have created durable external
// state before failing, so the caller must treat the operation as retried,
// not aborted (the collaborators are contracted to be idempotent on retry).
type ExternalSideEffectError struct {
	Collaborator string
	Err          error
}

func (e *ExternalSideEffectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}
func (e *ExternalSideEffectError) Unwrap() error { return e.Err }

// FatalInvariantError indicates state the coordinator cannot recover from
// (e.g. a corrupt catalog, an id counter going backwards). Constructing one
// logs at error level immediately; the caller is expected to route it
// through the internal-command stream as a Shutdown request rather than
// calling os.Exit directly, so the event loop's drain phase still runs
// (spec.md §5, §7).
type FatalInvariantError struct {
	Reason string
	Err    error
}

func NewFatalInvariantError(logger *slog.Logger, reason string, err error) *FatalInvariantError {
	logger.Error("fatal invariant violated", "reason", reason, "err", err)
	return &FatalInvariantError{Reason: reason, Err: err}
}

func (e *FatalInvariantError) Error() string {
	return fmt.Sprintf("fatal invariant violated: %s: %v", e.Reason, e.Err)
}
func (e *FatalInvariantError) Unwrap() error { return e.Err }
