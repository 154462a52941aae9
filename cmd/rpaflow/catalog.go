package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/kernel/commands"
	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Export the script JSON Schema to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := script.GenerateJSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(data))
			return nil
		},
	}
}

func (a *app) commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List every built-in command with its block role",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printCatalog(a, commands.NewRegistry().Specs())
		},
	}
}

func printCatalog(a *app, specs []*engine.Spec) {
	kindWidth := 0
	for _, s := range specs {
		kindWidth = max(kindWidth, len(s.Kind))
	}
	group := ""
	for _, s := range specs {
		if s.Group != group {
			if group != "" {
				fmt.Fprintln(a.stdout)
			}
			group = s.Group
			fmt.Fprintln(a.stdout, headerStyle.Render(group))
		}
		role := ""
		if s.Role != engine.RoleLeaf {
			role = fmt.Sprintf("%s %s", s.Family, s.Role)
		}
		fmt.Fprintf(a.stdout, "  %s  %s  %s\n",
			column(s.Kind, kindWidth), dimStyle.Render(column(role, 14)), s.Description)
	}
}
