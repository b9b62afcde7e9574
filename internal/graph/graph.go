// Package graph is the action dependency engine: it validates that an action collection
// forms a DAG, orders it into levels, evaluates availability and applies completion
// transitions. Every function is a pure transform over a snapshot; inputs are never mutated.
package graph

import "actionflow/internal/domain"

// Graph is an adjacency view over one action collection, keyed by action id.
// Dependencies and dependents keep the input order of the collection.
type Graph struct {
	order      []string
	actions    map[string]domain.Action
	deps       map[string][]string
	dependents map[string][]string
}

// Build indexes actions and checks referential integrity.
func Build(actions []domain.Action) (*Graph, error) {
	g := &Graph{
		order:      make([]string, 0, len(actions)),
		actions:    make(map[string]domain.Action, len(actions)),
		deps:       make(map[string][]string, len(actions)),
		dependents: make(map[string][]string, len(actions)),
	}
	for _, a := range actions {
		if a.ID == "" {
			return nil, InvalidActionError{Reason: "id is required"}
		}
		if _, ok := g.actions[a.ID]; ok {
			return nil, DuplicateActionError{ID: a.ID}
		}
		g.order = append(g.order, a.ID)
		g.actions[a.ID] = a
	}
	for _, a := range actions {
		seen := make(map[string]bool, len(a.DependsOn))
		for _, dep := range a.DependsOn {
			if _, ok := g.actions[dep]; !ok {
				return nil, ReferentialIntegrityError{ActionID: a.ID, MissingID: dep}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.deps[a.ID] = append(g.deps[a.ID], dep)
		}
	}
	// second pass so dependents follow collection order rather than edge order
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	return g, nil
}

// Len returns the number of actions.
func (g *Graph) Len() int { return len(g.order) }

// IDs returns action ids in collection order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Has reports whether id is part of the collection.
func (g *Graph) Has(id string) bool {
	_, ok := g.actions[id]
	return ok
}

// Action returns the action stored under id.
func (g *Graph) Action(id string) (domain.Action, bool) {
	a, ok := g.actions[id]
	return a, ok
}

// DependenciesOf returns the distinct ids that id depends on.
func (g *Graph) DependenciesOf(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// DependentsOf returns the ids of actions that depend directly on id.
func (g *Graph) DependentsOf(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

func indexOf(actions []domain.Action, id string) int {
	for i, a := range actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}
