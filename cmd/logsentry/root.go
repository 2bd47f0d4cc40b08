package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "logsentry",
		Short: "Container log analysis daemon",
		Long: `LogSentry - container log analysis daemon

LogSentry periodically samples the logs of a fixed set of containers,
asks a local language model for a short diagnostic summary, and writes
one timestamped text report per running container and cycle.

Configuration comes from an optional TOML or YAML file and the
environment (OLLAMA_HOST, MODEL, INTERVAL, ANALYSIS_TIMEOUT,
CONTAINER_NAMES, REPORTS_DIR, LOG_LEVEL, ...).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LOGSENTRY_CONFIG"), "Path to a .toml or .yaml config file")
	rootCmd.SetVersionTemplate(`LogSentry {{.Version}} - container log analysis daemon
`)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logsentry %s\n", version)
		},
	})
}
