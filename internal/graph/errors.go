package graph

import (
	"fmt"
	"strings"
)

// ReferentialIntegrityError indicates a dependency on an action missing from the collection.
type ReferentialIntegrityError struct {
	ActionID  string
	MissingID string
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("action %s depends on unknown action %s", e.ActionID, e.MissingID)
}

// CycleError reports a dependency cycle. From -> To is the back-edge that closed it and
// IDs lists the cycle starting at To.
type CycleError struct {
	From string
	To   string
	IDs  []string
}

func (e CycleError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("dependency cycle detected: %s -> %s", strings.Join(e.IDs, " -> "), e.To)
	}
	return fmt.Sprintf("dependency cycle detected between %s and %s", e.From, e.To)
}

// DependentActionsExistError blocks removal of an action that others still depend on.
type DependentActionsExistError struct {
	ActionID     string
	DependentIDs []string
}

func (e DependentActionsExistError) Error() string {
	return fmt.Sprintf("action %s is required by %s", e.ActionID, strings.Join(e.DependentIDs, ", "))
}

// UnsatisfiedDependencyError blocks completion while dependencies are incomplete.
type UnsatisfiedDependencyError struct {
	ActionID   string
	MissingIDs []string
}

func (e UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("action %s has incomplete dependencies: %s", e.ActionID, strings.Join(e.MissingIDs, ", "))
}

// DependentsAlreadyCompletedError blocks reverting an action whose dependents are completed.
type DependentsAlreadyCompletedError struct {
	ActionID     string
	DependentIDs []string
}

func (e DependentsAlreadyCompletedError) Error() string {
	return fmt.Sprintf("action %s cannot be reverted; completed dependents: %s", e.ActionID, strings.Join(e.DependentIDs, ", "))
}

// ActionNotFoundError names an action id absent from the collection.
type ActionNotFoundError struct {
	ID string
}

func (e ActionNotFoundError) Error() string {
	return fmt.Sprintf("action %s not found", e.ID)
}

// DuplicateActionError reports an id used by more than one action.
type DuplicateActionError struct {
	ID string
}

func (e DuplicateActionError) Error() string {
	return fmt.Sprintf("duplicate action id %s", e.ID)
}

// InvalidActionError is returned for structurally unusable actions, such as an empty id.
type InvalidActionError struct {
	Reason string
}

func (e InvalidActionError) Error() string {
	return "invalid action: " + e.Reason
}
