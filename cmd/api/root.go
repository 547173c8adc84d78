package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "docshelf",
	Short:        "Document upload service",
	Long:         `docshelf stores titled documents in object storage and serves them over an HTTP API.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file (environment variables override it)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
