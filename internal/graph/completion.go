package graph

import (
	"time"

	"actionflow/internal/domain"
)

// Completion is the result of completing an action.
type Completion struct {
	Actions []domain.Action
	// NewlyAvailable holds the actions unlocked by this completion.
	NewlyAvailable []domain.Action
}

// Complete marks actionID completed, stamping it from meta. Every dependency must already be
// completed. Completing an already completed action returns an unchanged copy.
func Complete(actions []domain.Action, actionID string, meta domain.CompletionMeta) (Completion, error) {
	idx := indexOf(actions, actionID)
	if idx < 0 {
		return Completion{}, ActionNotFoundError{ID: actionID}
	}
	if actions[idx].Completed {
		return Completion{Actions: domain.CloneActions(actions), NewlyAvailable: []domain.Action{}}, nil
	}
	done := completedSet(actions)
	var missing []string
	for _, dep := range UniqueIDs(actions[idx].DependsOn) {
		if !done[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return Completion{}, UnsatisfiedDependencyError{ActionID: actionID, MissingIDs: missing}
	}

	next := domain.CloneActions(actions)
	at := meta.At.UTC().Format(time.RFC3339)
	actor := meta.ActorID
	target := &next[idx]
	target.Completed = true
	target.CompletedAt = &at
	target.CompletedBy = &actor
	if len(meta.Attachments) > 0 {
		target.Attachments = append([]string(nil), meta.Attachments...)
	}
	if meta.ApprovalStatus != "" {
		target.ApprovalStatus = meta.ApprovalStatus
	}

	done[actionID] = true
	unlocked := []domain.Action{}
	for _, a := range next {
		if a.Completed || !dependsOn(a, actionID) {
			continue
		}
		if stateOf(a, done) == StateAvailable {
			unlocked = append(unlocked, a.Clone())
		}
	}
	return Completion{Actions: next, NewlyAvailable: unlocked}, nil
}

// Uncomplete reverts actionID to incomplete and clears the state tied to its completion.
// It is refused while any completed action depends on actionID.
func Uncomplete(actions []domain.Action, actionID string) ([]domain.Action, error) {
	idx := indexOf(actions, actionID)
	if idx < 0 {
		return nil, ActionNotFoundError{ID: actionID}
	}
	if !actions[idx].Completed {
		return domain.CloneActions(actions), nil
	}
	var completedDependents []string
	for _, a := range actions {
		if a.Completed && dependsOn(a, actionID) {
			completedDependents = append(completedDependents, a.ID)
		}
	}
	if len(completedDependents) > 0 {
		return nil, DependentsAlreadyCompletedError{ActionID: actionID, DependentIDs: completedDependents}
	}
	next := domain.CloneActions(actions)
	target := &next[idx]
	target.Completed = false
	target.CompletedAt = nil
	target.CompletedBy = nil
	target.Attachments = nil
	target.ApprovalStatus = ""
	return next, nil
}

// AllCompleted reports whether a non-empty collection is fully completed.
func AllCompleted(actions []domain.Action) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if !a.Completed {
			return false
		}
	}
	return true
}

func dependsOn(a domain.Action, id string) bool {
	for _, dep := range a.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}
