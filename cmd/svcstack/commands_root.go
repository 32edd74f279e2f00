package main

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/sourceplane/svcstack/internal/loader"
	"github.com/sourceplane/svcstack/internal/logging"
	"github.com/sourceplane/svcstack/internal/lookup"
)

var (
	configFile   string
	environments []string
	contextFile  string
	lookups      bool
	debugMode    bool
	logLevel     string
	logFormat    string

	logger = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "svcstack",
	Short: "Synthesizer: service stack config → CloudFormation assembly",
	Long: "svcstack composes an image registry, network cluster, load-balanced gRPC service and delivery pipeline " +
		"into deterministic CloudFormation templates for every environment of a service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		factory, err := logging.NewLogFactory(logging.Options{
			Level:  logLevel,
			Format: logFormat,
			Writer: os.Stderr,
		})
		if err != nil {
			return err
		}
		logger = factory.Logger()
		cmd.SetContext(logr.NewContext(cmd.Context(), logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", loader.DefaultConfigFile, "Stack configuration file")
	rootCmd.PersistentFlags().StringSliceVarP(&environments, "env", "e", nil, "Environments to process (default: all)")
	rootCmd.PersistentFlags().StringVar(&contextFile, "context", lookup.DefaultContextFile, "Lookup context file")
	rootCmd.PersistentFlags().BoolVar(&lookups, "lookups", false, "Query AWS for hosted zones missing from the context file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")

	registerSynthCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerDebugCommand(rootCmd)
	registerResourcesCommand(rootCmd)
	registerBuildCommand(rootCmd)
	registerStatusCommand(rootCmd)
	registerVersionCommand(rootCmd)
}
