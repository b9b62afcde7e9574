package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionflow/internal/config"
	"actionflow/internal/engine"
	"actionflow/internal/repo"
)

func graphCmd() *cobra.Command {
	g := &cobra.Command{Use: "graph", Short: "Work with action graphs without storing them"}
	g.AddCommand(graphValidateCmd())
	return g
}

func graphValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a steps YAML file and print its levels",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.TemplateFromFile(filePath)
			if err != nil {
				return err
			}
			actions, err := engine.TemplateFileActions(f)
			if err != nil {
				return err
			}
			view, err := engine.BuildGraphView(actions)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(view)
			}
			fmt.Printf("%s: %d actions in %d levels\n", f.Name, len(actions), len(view.Levels))
			renderGraph(view)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to steps YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, repo.EventFilters{
					ProjectID:  projectID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (project, task, action, template)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}
