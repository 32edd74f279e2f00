package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/svcstack/internal/git"
	"github.com/sourceplane/svcstack/internal/runner"
)

const sourceVersionVar = "CODEBUILD_RESOLVED_SOURCE_VERSION"

var (
	buildExecute bool
	buildWorkDir string
	changedOnly  bool
	baseBranch   string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the pipeline's build spec locally",
	Long:  "Run the rendered build spec phases in order, similar to the pipeline's build stage. Dry-run unless --execute is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd)
	},
}

func registerBuildCommand(root *cobra.Command) {
	root.AddCommand(buildCmd)

	buildCmd.Flags().BoolVarP(&buildExecute, "execute", "x", false, "Actually execute commands (default is dry-run)")
	buildCmd.Flags().StringVar(&buildWorkDir, "workdir", ".", "Source checkout to build in")
	buildCmd.Flags().BoolVar(&changedOnly, "changed", false, "Skip the build when nothing under the build context changed (requires git)")
	buildCmd.Flags().StringVar(&baseBranch, "base", "main", "Base branch for change detection")
}

func runBuild(cmd *cobra.Command) error {
	_, envs, err := loadEnvironments()
	if err != nil {
		return err
	}
	if len(envs) != 1 {
		return fmt.Errorf("build needs exactly one environment, got %d (use --env)", len(envs))
	}

	results, err := synthesizeAll(cmd.Context(), envs)
	if err != nil {
		return err
	}
	res := results[0]
	cfg := res.Environment.Settings

	if changedOnly {
		buildContext := cfg.Pipeline.Build.Context
		if buildContext == "" {
			buildContext = "."
		}
		changed, err := git.NewChangeDetector(buildWorkDir, baseBranch).ChangedUnder(buildContext)
		if err != nil {
			return fmt.Errorf("change detection failed: %w", err)
		}
		if !changed {
			fmt.Printf("✓ No changes under %s since %s, skipping build\n", buildContext, baseBranch)
			return nil
		}
	}

	env := []string{
		"AWS_REGION=" + cfg.Region,
		"AWS_ACCOUNT_ID=" + cfg.Account,
		fmt.Sprintf("REPOSITORY_URI=%s.dkr.ecr.%s.amazonaws.com/%s", cfg.Account, cfg.Region, cfg.Registry.Name),
		"CONTAINER_NAME=" + res.Service.ContainerName,
	}
	if os.Getenv(sourceVersionVar) == "" {
		rev, err := git.HeadRevision(buildWorkDir)
		if err != nil {
			return fmt.Errorf("cannot resolve source version: %w", err)
		}
		env = append(env, sourceVersionVar+"="+rev)
	}

	dryRun := !buildExecute
	if dryRun {
		fmt.Println("□ Dry-run mode enabled. Use --execute to run commands.")
	}

	r := runner.NewRunner(buildWorkDir, os.Stdout, os.Stderr, dryRun)
	r.Env = env
	r.Log = logger
	if err := r.Run(res.BuildSpec); err != nil {
		return err
	}

	if dryRun {
		fmt.Println("✓ Dry-run complete")
		return nil
	}

	if err := r.ValidateOutput(res.Service.ContainerName); err != nil {
		return err
	}
	fmt.Println("✓ Build complete")
	return nil
}
