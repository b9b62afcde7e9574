package assembler_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"actionflow/internal/assembler"
	"actionflow/internal/domain"
	"actionflow/internal/graph"
)

func action(id string, deps ...string) domain.Action {
	return domain.Action{ID: id, Title: "Action " + id, Type: domain.ActionText, DependsOn: deps}
}

func diamond() []domain.Action {
	return []domain.Action{
		action("A"),
		action("B", "A"),
		action("C", "A"),
		action("D", "B", "C"),
	}
}

func index(actions []domain.Action) map[string]domain.Action {
	m := make(map[string]domain.Action, len(actions))
	for _, a := range actions {
		m[a.ID] = a
	}
	return m
}

func TestToSteps(t *testing.T) {
	steps, err := assembler.ToSteps(diamond())
	if err != nil {
		t.Fatalf("to steps: %v", err)
	}
	want := []assembler.Step{
		{Index: 0, Title: "Step 1", ActionIDs: []string{"A"}},
		{Index: 1, Title: "Step 2", ActionIDs: []string{"B", "C"}},
		{Index: 2, Title: "Step 3", ActionIDs: []string{"D"}},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Fatalf("steps (-want +got):\n%s", diff)
	}
}

func TestToStepsRejectsCycle(t *testing.T) {
	_, err := assembler.ToSteps([]domain.Action{action("A", "B"), action("B", "A")})
	if !errors.As(err, new(graph.CycleError)) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestRoundTripPreservesEdges(t *testing.T) {
	actions := diamond()
	steps, err := assembler.ToSteps(actions)
	if err != nil {
		t.Fatalf("to steps: %v", err)
	}
	back, err := assembler.FromSteps(steps, index(actions))
	if err != nil {
		t.Fatalf("from steps: %v", err)
	}
	if diff := cmp.Diff(actions, back); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestFromStepsDoesNotInferDependencies(t *testing.T) {
	actions := []domain.Action{action("A"), action("B")}
	steps := []assembler.Step{
		{Index: 0, Title: "Prepare", ActionIDs: []string{"A"}},
		{Index: 1, Title: "Ship", ActionIDs: []string{"B"}},
	}
	flat, err := assembler.FromSteps(steps, index(actions))
	if err != nil {
		t.Fatalf("from steps: %v", err)
	}
	if len(flat[1].DependsOn) != 0 {
		t.Fatalf("B should keep no dependencies, got %v", flat[1].DependsOn)
	}
	// recomputed steps collapse to a single level since nothing links A and B
	again, err := assembler.ToSteps(flat)
	if err != nil {
		t.Fatalf("to steps: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("expected one step, got %+v", again)
	}
}

func TestFromStepsErrors(t *testing.T) {
	byID := index(diamond())

	_, err := assembler.FromSteps([]assembler.Step{{ActionIDs: []string{"A", "X"}}}, byID)
	if !errors.As(err, new(graph.ActionNotFoundError)) {
		t.Fatalf("expected ActionNotFoundError, got %v", err)
	}

	_, err = assembler.FromSteps([]assembler.Step{{ActionIDs: []string{"A", "B"}}, {ActionIDs: []string{"A", "C", "D"}}}, byID)
	if !errors.As(err, new(graph.DuplicateActionError)) {
		t.Fatalf("expected DuplicateActionError, got %v", err)
	}

	_, err = assembler.FromSteps([]assembler.Step{{ActionIDs: []string{"A", "B"}}}, byID)
	var unplaced assembler.UnplacedActionsError
	if !errors.As(err, &unplaced) {
		t.Fatalf("expected UnplacedActionsError, got %v", err)
	}
	if diff := cmp.Diff([]string{"C", "D"}, unplaced.IDs); diff != "" {
		t.Fatalf("unplaced (-want +got):\n%s", diff)
	}
}

func TestSequenceStepsLinksAdjacentSteps(t *testing.T) {
	actions := []domain.Action{action("brief"), action("shoot"), action("edit"), action("audio")}
	steps := []assembler.Step{
		{Title: "Plan", ActionIDs: []string{"brief"}},
		{Title: "Produce", ActionIDs: []string{"shoot"}},
		{Title: "Post", ActionIDs: []string{"edit", "audio"}},
	}
	flat, err := assembler.SequenceSteps(steps, index(actions))
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	got := map[string][]string{}
	for _, a := range flat {
		got[a.ID] = a.DependsOn
	}
	want := map[string][]string{
		"brief": nil,
		"shoot": {"brief"},
		"edit":  {"shoot"},
		"audio": {"shoot"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("depends_on (-want +got):\n%s", diff)
	}
	if len(actions[1].DependsOn) != 0 {
		t.Fatalf("input mutated")
	}
}
