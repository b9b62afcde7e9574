package engine

import "fmt"

// InvalidInputError rejects a request before any state is read.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransitionError is an invalid task status change.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}

// TaskLockedError rejects graph edits on approved or archived tasks.
type TaskLockedError struct {
	TaskID string
	Status string
}

func (e TaskLockedError) Error() string {
	return fmt.Sprintf("task %s is %s and can no longer change", e.TaskID, e.Status)
}

// ActionTypeNotAllowedError is returned when an action type is outside the project's catalog.
type ActionTypeNotAllowedError struct {
	ActionID string
	Type     string
}

func (e ActionTypeNotAllowedError) Error() string {
	return fmt.Sprintf("action %s: type %q is not allowed in this project", e.ActionID, e.Type)
}
