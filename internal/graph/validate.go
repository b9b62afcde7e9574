package graph

import "actionflow/internal/domain"

type color uint8

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// Validate checks referential integrity and acyclicity of actions.
func Validate(actions []domain.Action) error {
	g, err := Build(actions)
	if err != nil {
		return err
	}
	return g.FindCycle()
}

// FindCycle runs a three-color DFS rooted at every unvisited action, in collection order,
// and returns a CycleError for the first back-edge found.
func (g *Graph) FindCycle() error {
	colors := make(map[string]color, len(g.order))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = gray
		path = append(path, id)
		for _, dep := range g.deps[id] {
			switch colors[dep] {
			case gray:
				return CycleError{From: id, To: dep, IDs: cycleFrom(path, dep)}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		colors[id] = black
		return nil
	}

	for _, id := range g.order {
		if colors[id] != white {
			continue
		}
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// cycleFrom returns the suffix of path starting at start.
func cycleFrom(path []string, start string) []string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == start {
			return append([]string(nil), path[i:]...)
		}
	}
	return []string{start}
}
