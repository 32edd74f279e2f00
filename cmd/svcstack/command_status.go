package main

import (
	"os"

	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/spf13/cobra"

	"github.com/sourceplane/svcstack/internal/lookup"
	"github.com/sourceplane/svcstack/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report certificate validation and pipeline state",
	Long:  "Report certificate validation against the configured timeout and the latest pipeline execution. Read-only: nothing is retried or approved.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, envs, err := loadEnvironments()
		if err != nil {
			return err
		}

		for _, env := range envs {
			awsCfg, err := lookup.LoadAWSConfig(ctx, env.Settings.Region)
			if err != nil {
				return err
			}
			reporter := status.NewReporter(acm.NewFromConfig(awsCfg), codepipeline.NewFromConfig(awsCfg))

			report, err := reporter.Report(ctx, env)
			if err != nil {
				return err
			}
			status.Print(os.Stdout, report)
		}
		return nil
	},
}

func registerStatusCommand(root *cobra.Command) {
	root.AddCommand(statusCmd)
}
