package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the stack configuration and synthesize without writing",
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
			fmt.Printf("  %s (%s): %d resources, %d outputs\n",
				res.Environment.StackName, res.Environment.Name, len(res.Template.Resources), len(res.Template.Outputs))
		}
		fmt.Println("✓ Configuration is valid")
		return nil
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug output")
}
