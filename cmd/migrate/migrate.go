// Package migrate implements the migrate command.
package migrate

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/re-search/cmd/common"
	"github.com/jonesrussell/re-search/internal/database"
	"github.com/jonesrussell/re-search/internal/logger"
)

// Command returns the migrate command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := common.LoadConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.IsEnabled() {
				return errors.New("database is disabled in configuration")
			}
			log, err := common.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewPostgresConnection(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err = database.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("Schema applied", logger.String("database", cfg.Database.DBName))
			return nil
		},
	}
}
