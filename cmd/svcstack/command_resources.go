package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/svcstack/internal/render"
)

var resourceView string

var resourcesCmd = &cobra.Command{
	Use:     "resources",
	Aliases: []string{"resource"},
	Short:   "Show the synthesized resource graph",
	Long:    "Show synthesized resources grouped by unit, their dependencies, the stack outputs, or one resource (--view resource=ID).",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, envs, err := loadEnvironments()
		if err != nil {
			return err
		}
		results, err := synthesizeAll(cmd.Context(), envs)
		if err != nil {
			return err
		}

		for _, res := range results {
			viewer, err := render.NewResourceViewer(res.Template)
			if err != nil {
				return err
			}
			out, err := viewer.View(resourceView)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s (%s)\n\n%s\n", res.Environment.StackName, res.Environment.Name, out)
		}
		return nil
	},
}

func registerResourcesCommand(root *cobra.Command) {
	root.AddCommand(resourcesCmd)

	resourcesCmd.Flags().StringVarP(&resourceView, "view", "v", render.ViewTree, "View (tree/dependencies/outputs/resource=ID)")
}
