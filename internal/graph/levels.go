package graph

import "actionflow/internal/domain"

// Level is one wave of actions whose dependencies all sit in earlier levels.
type Level []domain.Action

// IDs returns the action ids of the level in order.
func (l Level) IDs() []string {
	ids := make([]string, len(l))
	for i, a := range l {
		ids[i] = a.ID
	}
	return ids
}

// Levels partitions actions into ordered levels. Level 0 holds actions without
// dependencies; level k+1 holds every unplaced action whose dependencies are all placed in
// levels 0..k. Ties keep collection order.
func Levels(actions []domain.Action) ([]Level, error) {
	g, err := Build(actions)
	if err != nil {
		return nil, err
	}
	placed := make(map[string]bool, len(actions))
	levels := []Level{}
	for len(placed) < len(actions) {
		var level Level
		for _, a := range actions {
			if placed[a.ID] {
				continue
			}
			ready := true
			for _, dep := range g.deps[a.ID] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, a.Clone())
			}
		}
		if len(level) == 0 {
			if err := g.FindCycle(); err != nil {
				return nil, err
			}
			// unreachable for a graph that passed Build
			return nil, CycleError{}
		}
		// mark after the scan so an action never lands in the same level as its dependency
		for _, a := range level {
			placed[a.ID] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// LevelIndex returns a map from action id to level number.
func LevelIndex(levels []Level) map[string]int {
	idx := make(map[string]int)
	for i, level := range levels {
		for _, a := range level {
			idx[a.ID] = i
		}
	}
	return idx
}

// CurrentLevel returns the index of the first level holding an incomplete action, or
// len(levels) once every action is completed.
func CurrentLevel(levels []Level) int {
	for i, level := range levels {
		for _, a := range level {
			if !a.Completed {
				return i
			}
		}
	}
	return len(levels)
}

// Progress is the workflow stage display: Current of Total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ProgressOf reports the current level and the level count. Current equals Total once
// every action is completed.
func ProgressOf(levels []Level) Progress {
	return Progress{Current: CurrentLevel(levels), Total: len(levels)}
}
