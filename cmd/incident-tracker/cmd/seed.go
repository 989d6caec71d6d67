package cmd

import (
	"fmt"
	"os"

	"github.com/bissquit/incident-tracker/internal/app"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/seed"
	"github.com/spf13/cobra"
)

var (
	seedSession string
	seedFile    string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo incidents, problems and SLA targets into a session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ds, err := loadDataset(seedFile)
		if err != nil {
			return err
		}

		db, err := app.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := app.NewServices(db)
		seeder := seed.NewSeeder(svc.IncidentsRepo, svc.ProblemsRepo, svc.SLARepo, svc.Allocator)

		res, err := seeder.Seed(cmd.Context(), seedSession, ds)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "seeded session %s: %d SLA targets, %d problems, %d incidents\n",
			seedSession, res.Targets, res.Problems, res.Incidents)
		return nil
	},
}

func loadDataset(path string) (*seed.Dataset, error) {
	if path == "" {
		return seed.Demo()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return seed.Parse(data)
}

func init() {
	seedCmd.Flags().StringVarP(&seedSession, "session", "s", domain.DefaultSessionID, "session to seed")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML dataset to load instead of the built-in demo")
	rootCmd.AddCommand(seedCmd)
}
