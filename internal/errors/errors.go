package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - malformed input (missing story id, empty content)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - referenced resource does not exist (story, chapter, anchor)
	ErrNotFound = errors.New("not found")

	// ErrConflict - resource already exists (graph namespace taken by another story)
	ErrConflict = errors.New("already exists")

	// ErrOrdering - internal ordering invariant violated; should never surface
	ErrOrdering = errors.New("ordering error")

	// ErrPartialCommit - chapter row persisted but graph sync failed; the
	// chapter is usable, its entity index is stale and may be retried
	ErrPartialCommit = errors.New("partial commit")

	// ErrApprovalRequired - a sensitive tool call was intercepted and awaits a decision
	ErrApprovalRequired = errors.New("approval required")

	// ErrApprovalState - resume called with no pending action, or double-resume
	ErrApprovalState = errors.New("approval state error")

	// ErrTransient - transient failure (network, rate limit); safe to retry
	ErrTransient = errors.New("transient error")

	// ErrInvalidModelOutput - extraction or query model returned malformed output
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrInternal - everything else
	ErrInternal = errors.New("internal error")
)
