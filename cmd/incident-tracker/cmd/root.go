// Package cmd contains the incident-tracker commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/bissquit/incident-tracker/internal/app"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incident-tracker",
	Short: "Incident, problem and SLA record keeper",
	Long: `incident-tracker records IT incidents with their timeline, groups them into
problems and reports MTTR, MTTA and SLA compliance per session.

Configuration is read from an optional YAML file and then from
INCIDENT_TRACKER_* environment variables (nested keys use "__", for
example INCIDENT_TRACKER_DATABASE__URL).

Examples:
  # Apply migrations and start the API
  incident-tracker migrate up
  incident-tracker serve --config config.yaml

  # Load demo data into a session
  incident-tracker seed --session demo`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(app.InitLogger(cfg.Log))
	return cfg, nil
}
