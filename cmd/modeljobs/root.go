package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swind/go-model-jobs/config"
	"github.com/Swind/go-model-jobs/core"
	"github.com/Swind/go-model-jobs/logging"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger core.Logger
)

// newRootCmd creates the root cobra command for the modeljobs CLI.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modeljobs",
		Short: "Session-scoped model job scheduler tooling",
		Long:  "modeljobs drives and inspects a per-session mutex job scheduler.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			loaded.ApplyEnv()
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flagLogFormat
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			l, err := logging.NewLogger(loaded.Log.Level, loaded.Log.Format)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = l
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json, zap)")

	root.AddCommand(
		newSoakCmd(),
		newConfigCmd(),
	)

	return root
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
