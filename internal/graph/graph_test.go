package graph_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"actionflow/internal/domain"
	"actionflow/internal/graph"
)

func action(id string, deps ...string) domain.Action {
	return domain.Action{ID: id, Title: "Action " + id, Type: domain.ActionText, DependsOn: deps}
}

// diamond is A <- B, A <- C, {B,C} <- D.
func diamond() []domain.Action {
	return []domain.Action{
		action("A"),
		action("B", "A"),
		action("C", "A"),
		action("D", "B", "C"),
	}
}

func ids(actions []domain.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.ID)
	}
	return out
}

func TestBuildIndexesBothDirections(t *testing.T) {
	g, err := graph.Build(diamond())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Len() != 4 {
		t.Fatalf("expected 4 actions, got %d", g.Len())
	}
	if diff := cmp.Diff([]string{"B", "C"}, g.DependentsOf("A")); diff != "" {
		t.Fatalf("dependents of A (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B", "C"}, g.DependenciesOf("D")); diff != "" {
		t.Fatalf("dependencies of D (-want +got):\n%s", diff)
	}
	if !g.Has("C") || g.Has("Z") {
		t.Fatalf("unexpected membership")
	}
}

func TestBuildRejectsDanglingDependency(t *testing.T) {
	_, err := graph.Build([]domain.Action{action("A"), action("B", "X")})
	var ref graph.ReferentialIntegrityError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferentialIntegrityError, got %v", err)
	}
	if ref.ActionID != "B" || ref.MissingID != "X" {
		t.Fatalf("unexpected error fields: %+v", ref)
	}
}

func TestBuildRejectsDuplicateAndEmptyIDs(t *testing.T) {
	_, err := graph.Build([]domain.Action{action("A"), action("A")})
	var dup graph.DuplicateActionError
	if !errors.As(err, &dup) || dup.ID != "A" {
		t.Fatalf("expected duplicate A, got %v", err)
	}
	_, err = graph.Build([]domain.Action{action("")})
	var inv graph.InvalidActionError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvalidActionError, got %v", err)
	}
}

func TestValidateAcceptsDAG(t *testing.T) {
	if err := graph.Validate(diamond()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := graph.Validate(nil); err != nil {
		t.Fatalf("empty collection should validate: %v", err)
	}
}

func TestValidateFindsCycleInDisconnectedComponent(t *testing.T) {
	// C and D come first and have no edges; the A/B cycle must still be reported.
	actions := []domain.Action{
		action("C"),
		action("D"),
		action("A", "B"),
		action("B", "A"),
	}
	err := graph.Validate(actions)
	var cyc graph.CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, cyc.IDs); diff != "" {
		t.Fatalf("cycle ids (-want +got):\n%s", diff)
	}
	if cyc.From != "B" || cyc.To != "A" {
		t.Fatalf("unexpected back-edge %s -> %s", cyc.From, cyc.To)
	}
}

func TestValidateDetectsCycleFromAnyStartOrder(t *testing.T) {
	base := []domain.Action{action("A", "C"), action("B", "A"), action("C", "B"), action("E")}
	for shift := 0; shift < len(base); shift++ {
		rotated := append(append([]domain.Action{}, base[shift:]...), base[:shift]...)
		var cyc graph.CycleError
		if err := graph.Validate(rotated); !errors.As(err, &cyc) {
			t.Fatalf("rotation %d: expected cycle, got %v", shift, err)
		}
		if len(cyc.IDs) != 3 {
			t.Fatalf("rotation %d: expected 3 ids in cycle, got %v", shift, cyc.IDs)
		}
	}
}

func TestValidateSelfDependency(t *testing.T) {
	err := graph.Validate([]domain.Action{action("A", "A")})
	var cyc graph.CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if cyc.From != "A" || cyc.To != "A" {
		t.Fatalf("unexpected back-edge %+v", cyc)
	}
}

func TestSetDependenciesRejectsCycle(t *testing.T) {
	actions := diamond()
	_, err := graph.SetDependencies(actions, "A", []string{"D"})
	var cyc graph.CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	seen := map[string]bool{}
	for _, id := range cyc.IDs {
		seen[id] = true
	}
	if !seen["A"] || !seen["D"] {
		t.Fatalf("cycle should cite A and D, got %v", cyc.IDs)
	}
	// input untouched
	if len(actions[0].DependsOn) != 0 {
		t.Fatalf("input mutated: %v", actions[0].DependsOn)
	}
}

func TestSetDependenciesReturnsNewCollection(t *testing.T) {
	actions := diamond()
	next, err := graph.SetDependencies(actions, "D", []string{"B", "B"})
	if err != nil {
		t.Fatalf("set deps: %v", err)
	}
	if diff := cmp.Diff([]string{"B"}, next[3].DependsOn); diff != "" {
		t.Fatalf("deps (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B", "C"}, actions[3].DependsOn); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
	if _, err := graph.SetDependencies(actions, "Z", nil); !errors.As(err, new(graph.ActionNotFoundError)) {
		t.Fatalf("expected ActionNotFoundError, got %v", err)
	}
	if _, err := graph.SetDependencies(actions, "D", []string{"Q"}); !errors.As(err, new(graph.ReferentialIntegrityError)) {
		t.Fatalf("expected ReferentialIntegrityError, got %v", err)
	}
}

func TestSequentialSetDependenciesStayAcyclic(t *testing.T) {
	actions := []domain.Action{action("A"), action("B"), action("C"), action("D"), action("E")}
	edits := []struct {
		id   string
		deps []string
	}{
		{"B", []string{"A"}},
		{"C", []string{"B"}},
		{"A", []string{"C"}}, // closes a cycle; must fail and leave state untouched
		{"D", []string{"A", "C"}},
		{"E", []string{"D"}},
		{"A", []string{"E"}},
		{"B", nil},
		{"A", []string{"E"}},
	}
	for _, edit := range edits {
		next, err := graph.SetDependencies(actions, edit.id, edit.deps)
		if err != nil {
			continue
		}
		actions = next
		if err := graph.Validate(actions); err != nil {
			t.Fatalf("engine produced invalid graph after %s=%v: %v", edit.id, edit.deps, err)
		}
	}
}

func TestRemoveAction(t *testing.T) {
	actions := diamond()
	_, err := graph.RemoveAction(actions, "A")
	var dep graph.DependentActionsExistError
	if !errors.As(err, &dep) {
		t.Fatalf("expected DependentActionsExistError, got %v", err)
	}
	if diff := cmp.Diff([]string{"B", "C"}, dep.DependentIDs); diff != "" {
		t.Fatalf("dependents (-want +got):\n%s", diff)
	}
	next, err := graph.RemoveAction(actions, "D")
	if err != nil {
		t.Fatalf("remove D: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, ids(next)); diff != "" {
		t.Fatalf("remaining (-want +got):\n%s", diff)
	}
	if len(actions) != 4 {
		t.Fatalf("input mutated")
	}
	if _, err := graph.RemoveAction(actions, "nope"); !errors.As(err, new(graph.ActionNotFoundError)) {
		t.Fatalf("expected ActionNotFoundError, got %v", err)
	}
}

func TestAddAction(t *testing.T) {
	next, err := graph.AddAction(diamond(), action("E", "D"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(next) != 5 {
		t.Fatalf("expected 5 actions, got %d", len(next))
	}
	if _, err := graph.AddAction(diamond(), action("E", "missing")); !errors.As(err, new(graph.ReferentialIntegrityError)) {
		t.Fatalf("expected ReferentialIntegrityError, got %v", err)
	}
	if _, err := graph.AddAction(diamond(), action("A")); !errors.As(err, new(graph.DuplicateActionError)) {
		t.Fatalf("expected DuplicateActionError, got %v", err)
	}
	next, err = graph.AddAction(diamond(), action("E", "D", "B", "D"))
	if err != nil {
		t.Fatalf("add with repeated deps: %v", err)
	}
	if diff := cmp.Diff([]string{"D", "B"}, next[4].DependsOn); diff != "" {
		t.Fatalf("depends_on (-want +got):\n%s", diff)
	}
}
