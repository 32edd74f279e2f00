package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/svcstack/internal/expand"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show each environment's overrides and effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return debugConfig()
	},
}

func registerDebugCommand(root *cobra.Command) {
	root.AddCommand(debugCmd)
}

func debugConfig() error {
	doc, envs, err := loadEnvironments()
	if err != nil {
		return err
	}

	analyzer := expand.NewAnalyzer(doc.Config)
	for _, env := range envs {
		overrides, err := analyzer.Overrides(env.Name)
		if err != nil {
			return err
		}

		fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Printf("Environment: %s (stack %s)\n", env.Name, env.StackName)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

		fmt.Printf("Overrides:\n")
		if len(overrides) == 0 {
			fmt.Printf("  (none, defaults only)\n")
		}
		for _, path := range overrides {
			fmt.Printf("  • %s\n", path)
		}

		data, err := yaml.Marshal(env.Settings)
		if err != nil {
			return fmt.Errorf("failed to render settings: %w", err)
		}
		fmt.Printf("\nEffective settings:\n%s\n", data)
	}
	return nil
}
