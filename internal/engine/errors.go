package engine

import (
	"fmt"

	"labelline/internal/domain"
)

// ForbiddenError means the caller is authenticated but not allowed to act
// on this record.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string { return e.Reason }

// InvalidStateError means the operation does not apply to the record's
// current lifecycle state.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string { return e.Reason }

// ConflictError means a concurrent actor won the race for the record.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// VersionConflictError rejects a stale annotation write and carries the
// authoritative state so the caller can rebase without a second read.
type VersionConflictError struct {
	CurrentVersion int
	Current        domain.Annotation
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("annotation moved on, current version is %d", e.CurrentVersion)
}
