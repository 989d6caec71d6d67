package cmd

import (
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/bissquit/incident-tracker/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

func migrateRun(direction postgres.MigrateDirection) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return postgres.Migrate(migrations.FS, cfg.Database.URL, direction)
	}
}

func init() {
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  migrateRun(postgres.MigrateUp),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE:  migrateRun(postgres.MigrateDown),
		},
	)
	rootCmd.AddCommand(migrateCmd)
}
