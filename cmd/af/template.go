package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionflow/internal/assembler"
	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/engine"
	"actionflow/internal/repo"
)

func templateCmd() *cobra.Command {
	tmpl := &cobra.Command{Use: "template", Short: "Manage task templates"}
	tmpl.AddCommand(templateImportCmd())
	tmpl.AddCommand(templateListCmd())
	tmpl.AddCommand(templateGetCmd())
	tmpl.AddCommand(templateInstantiateCmd())
	return tmpl
}

func templateImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a template YAML file; re-importing the same name replaces it",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.TemplateFromFile(filePath)
			if err != nil {
				return err
			}
			closeDB, e, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			t, err := e.ImportTemplate(cmd.Context(), f, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printTemplate(t)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to template YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Actions", "Version", "Updated"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Name, len(t.Actions), t.Version, t.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func templateGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Show a template as steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTemplate(ctx, args[0])
				if err != nil {
					if t, err = r.GetTemplateByName(ctx, args[0]); err != nil {
						return err
					}
				}
				return printTemplate(t)
			})
		},
	}
}

func templateInstantiateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "instantiate <id>",
		Short: "Create a task in the active project from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.InstantiateTemplate(ctx, engine.InstantiateOptions{
					TemplateID:  args[0],
					ProjectID:   projectID,
					Title:       title,
					Description: desc,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title (defaults to the template name)")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	return cmd
}

func printTemplate(t domain.Template) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	steps, err := assembler.ToSteps(t.Actions)
	if err != nil {
		return err
	}
	fmt.Printf("Template %s: %s (v%d)\n", t.ID, t.Name, t.Version)
	titles := map[string]string{}
	for _, a := range t.Actions {
		titles[a.ID] = a.Title
	}
	tw := newTable(table.Row{"#", "Step", "Actions"})
	for _, s := range steps {
		names := make([]string, 0, len(s.ActionIDs))
		for _, id := range s.ActionIDs {
			names = append(names, fmt.Sprintf("%s (%s)", titles[id], id))
		}
		tw.AppendRow(table.Row{s.Index + 1, s.Title, strings.Join(names, ", ")})
	}
	tw.Render()
	return nil
}
