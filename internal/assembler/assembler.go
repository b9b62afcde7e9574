// Package assembler converts between a flat action collection and the ordered steps view
// used by authoring tools. Steps are derived from levels; they never carry dependencies.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"actionflow/internal/domain"
	"actionflow/internal/graph"
)

type Step struct {
	Index     int      `json:"index"`
	Title     string   `json:"title"`
	ActionIDs []string `json:"action_ids"`
}

// UnplacedActionsError reports actions known to the caller that no step references.
type UnplacedActionsError struct {
	IDs []string
}

func (e UnplacedActionsError) Error() string {
	return fmt.Sprintf("actions not placed in any step: %s", strings.Join(e.IDs, ", "))
}

// ToSteps groups actions into one step per level.
func ToSteps(actions []domain.Action) ([]Step, error) {
	levels, err := graph.Levels(actions)
	if err != nil {
		return nil, err
	}
	return FromLevels(levels), nil
}

// FromLevels builds steps from already computed levels.
func FromLevels(levels []graph.Level) []Step {
	steps := make([]Step, 0, len(levels))
	for i, level := range levels {
		steps = append(steps, Step{
			Index:     i,
			Title:     fmt.Sprintf("Step %d", i+1),
			ActionIDs: level.IDs(),
		})
	}
	return steps
}

// FromSteps flattens steps back into a collection in step order. Dependencies are taken
// from actionsByID as-is and never inferred from step adjacency.
func FromSteps(steps []Step, actionsByID map[string]domain.Action) ([]domain.Action, error) {
	seen := make(map[string]bool, len(actionsByID))
	out := make([]domain.Action, 0, len(actionsByID))
	for _, step := range steps {
		for _, id := range step.ActionIDs {
			a, ok := actionsByID[id]
			if !ok {
				return nil, graph.ActionNotFoundError{ID: id}
			}
			if seen[id] {
				return nil, graph.DuplicateActionError{ID: id}
			}
			seen[id] = true
			out = append(out, a.Clone())
		}
	}
	if len(seen) < len(actionsByID) {
		var missing []string
		for id := range actionsByID {
			if !seen[id] {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		return nil, UnplacedActionsError{IDs: missing}
	}
	if err := graph.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SequenceSteps rewrites legacy step lists authored before explicit dependencies: every
// action of step k gains a dependency on every action of step k-1. Existing edges are kept.
func SequenceSteps(steps []Step, actionsByID map[string]domain.Action) ([]domain.Action, error) {
	linked := make(map[string]domain.Action, len(actionsByID))
	for id, a := range actionsByID {
		linked[id] = a.Clone()
	}
	var prev []string
	for _, step := range steps {
		for _, id := range step.ActionIDs {
			a, ok := linked[id]
			if !ok {
				return nil, graph.ActionNotFoundError{ID: id}
			}
			for _, dep := range prev {
				if !contains(a.DependsOn, dep) {
					a.DependsOn = append(a.DependsOn, dep)
				}
			}
			linked[id] = a
		}
		if len(step.ActionIDs) > 0 {
			prev = step.ActionIDs
		}
	}
	return FromSteps(steps, linked)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
