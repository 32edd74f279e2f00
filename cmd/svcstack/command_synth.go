package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/svcstack/internal/render"
	"github.com/sourceplane/svcstack/internal/schema"
	"github.com/sourceplane/svcstack/internal/watch"
)

var (
	outDir       string
	outputFormat string
	watchConfig  bool
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Synthesize CloudFormation templates and the assembly manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchConfig {
			return watchSynth(cmd.Context())
		}
		return synth(cmd.Context())
	},
}

func registerSynthCommand(root *cobra.Command) {
	root.AddCommand(synthCmd)

	synthCmd.Flags().StringVarP(&outDir, "out", "o", "cdk.out", "Assembly output directory")
	synthCmd.Flags().StringVarP(&outputFormat, "format", "f", render.FormatJSON, "Template format (json/yaml)")
	synthCmd.Flags().BoolVarP(&watchConfig, "watch", "w", false, "Re-synthesize when the config file changes")
	synthCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug output")
}

func synth(ctx context.Context) error {
	doc, envs, err := loadEnvironments()
	if err != nil {
		return err
	}

	results, err := synthesizeAll(ctx, envs)
	if err != nil {
		return err
	}

	fmt.Println("□ Writing assembly...")
	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}
	renderer := render.NewRenderer(validator)
	assembly, err := renderer.WriteAssembly(outDir, doc.Config.Metadata, results, outputFormat)
	if err != nil {
		return err
	}

	if debugMode {
		fmt.Println("\n" + renderer.DebugDump(assembly))
	}

	fmt.Printf("✓ Synthesized %d stacks to %s\n", len(assembly.Stacks), outDir)
	return nil
}

func watchSynth(ctx context.Context) error {
	if err := synth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
	}

	changes, err := watch.Changes(ctx, configFile, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	fmt.Printf("□ Watching %s for changes (Ctrl+C to stop)\n", configFile)

	for range changes {
		fmt.Printf("\n□ %s changed, re-synthesizing...\n", configFile)
		if err := synth(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		}
	}
	return nil
}
