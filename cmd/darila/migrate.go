package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erazemk/darila/internal/db"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := opts.startLogging(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.EnsureSchema(database); err != nil {
				return err
			}
			slog.Info("schema up to date", slog.String("driver", database.Dialect.String()))
			return nil
		},
	}
}
