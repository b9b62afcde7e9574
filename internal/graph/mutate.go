package graph

import "actionflow/internal/domain"

// AddAction returns a new collection with action appended, after validating the result.
func AddAction(actions []domain.Action, action domain.Action) ([]domain.Action, error) {
	added := action.Clone()
	added.DependsOn = UniqueIDs(added.DependsOn)
	next := append(domain.CloneActions(actions), added)
	if err := Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}

// RemoveAction returns a new collection without id. Removal is refused while any other
// action still depends on id.
func RemoveAction(actions []domain.Action, id string) ([]domain.Action, error) {
	idx := indexOf(actions, id)
	if idx < 0 {
		return nil, ActionNotFoundError{ID: id}
	}
	var dependents []string
	for _, a := range actions {
		if a.ID == id {
			continue
		}
		for _, dep := range a.DependsOn {
			if dep == id {
				dependents = append(dependents, a.ID)
				break
			}
		}
	}
	if len(dependents) > 0 {
		return nil, DependentActionsExistError{ActionID: id, DependentIDs: dependents}
	}
	next := make([]domain.Action, 0, len(actions)-1)
	for i, a := range actions {
		if i == idx {
			continue
		}
		next = append(next, a.Clone())
	}
	return next, nil
}

// SetDependencies replaces the dependency set of actionID. The whole hypothetical
// collection is validated before it is returned.
func SetDependencies(actions []domain.Action, actionID string, dependsOn []string) ([]domain.Action, error) {
	idx := indexOf(actions, actionID)
	if idx < 0 {
		return nil, ActionNotFoundError{ID: actionID}
	}
	next := domain.CloneActions(actions)
	next[idx].DependsOn = UniqueIDs(dependsOn)
	if err := Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}

// UniqueIDs drops repeated ids, keeping the first occurrence of each.
func UniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
