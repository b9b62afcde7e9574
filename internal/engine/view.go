package engine

import (
	"context"

	"actionflow/internal/assembler"
	"actionflow/internal/domain"
	"actionflow/internal/graph"
)

// GraphEdge points from a dependency (Source) to the action that needs it (Target).
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GraphView is everything a client needs to render a task graph.
type GraphView struct {
	Levels       []graph.Level
	Steps        []assembler.Step
	Availability graph.Availability
	Progress     graph.Progress
	Edges        []GraphEdge
}

// BuildGraphView validates actions and derives levels, steps, availability and edges.
func BuildGraphView(actions []domain.Action) (GraphView, error) {
	if err := graph.Validate(actions); err != nil {
		return GraphView{}, err
	}
	levels, err := graph.Levels(actions)
	if err != nil {
		return GraphView{}, err
	}
	edges := []GraphEdge{}
	for _, a := range actions {
		for _, dep := range graph.UniqueIDs(a.DependsOn) {
			edges = append(edges, GraphEdge{Source: dep, Target: a.ID})
		}
	}
	return GraphView{
		Levels:       levels,
		Steps:        assembler.FromLevels(levels),
		Availability: graph.Classify(actions),
		Progress:     graph.ProgressOf(levels),
		Edges:        edges,
	}, nil
}

// TaskGraph loads a task and builds its graph view.
func (e Engine) TaskGraph(ctx context.Context, projectID, taskID string) (domain.Task, GraphView, error) {
	t, err := e.GetTask(ctx, projectID, taskID)
	if err != nil {
		return t, GraphView{}, err
	}
	view, err := BuildGraphView(t.Actions)
	if err != nil {
		return t, GraphView{}, err
	}
	return t, view, nil
}
