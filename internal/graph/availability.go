package graph

import "actionflow/internal/domain"

// State classifies an action against the current completion snapshot.
type State string

const (
	StateCompleted State = "completed"
	StateAvailable State = "available"
	StateBlocked   State = "blocked"
)

// Availability splits a snapshot into its three disjoint classes, each in collection order.
type Availability struct {
	Completed []domain.Action `json:"completed"`
	Available []domain.Action `json:"available"`
	Blocked   []domain.Action `json:"blocked"`
}

// Classify evaluates every action. A dependency id missing from the snapshot counts as
// incomplete.
func Classify(actions []domain.Action) Availability {
	done := completedSet(actions)
	res := Availability{
		Completed: []domain.Action{},
		Available: []domain.Action{},
		Blocked:   []domain.Action{},
	}
	for _, a := range actions {
		switch stateOf(a, done) {
		case StateCompleted:
			res.Completed = append(res.Completed, a.Clone())
		case StateAvailable:
			res.Available = append(res.Available, a.Clone())
		default:
			res.Blocked = append(res.Blocked, a.Clone())
		}
	}
	return res
}

// Available returns incomplete actions whose dependencies are all completed.
func Available(actions []domain.Action) []domain.Action {
	return Classify(actions).Available
}

// Blocked returns incomplete actions with at least one incomplete dependency.
func Blocked(actions []domain.Action) []domain.Action {
	return Classify(actions).Blocked
}

// StateOf classifies a single action.
func StateOf(actions []domain.Action, id string) (State, error) {
	idx := indexOf(actions, id)
	if idx < 0 {
		return "", ActionNotFoundError{ID: id}
	}
	return stateOf(actions[idx], completedSet(actions)), nil
}

func stateOf(a domain.Action, done map[string]bool) State {
	if a.Completed {
		return StateCompleted
	}
	for _, dep := range a.DependsOn {
		if !done[dep] {
			return StateBlocked
		}
	}
	return StateAvailable
}

func completedSet(actions []domain.Action) map[string]bool {
	done := make(map[string]bool, len(actions))
	for _, a := range actions {
		if a.Completed {
			done[a.ID] = true
		}
	}
	return done
}
