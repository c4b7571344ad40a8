// Package cleanup implements the cleanup command, a one-off run of the
// retention job.
package cleanup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/re-search/cmd/common"
)

// Command returns the cleanup command.
func Command() *cobra.Command {
	var retention string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete inactive opportunities past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := common.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if retention != "" {
				d, parseErr := parseRetention(retention)
				if parseErr != nil {
					return parseErr
				}
				app.Config.Crawl.Retention = d
			}

			deleted, err := app.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d inactive opportunities\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&retention, "retention", "", "override the retention window (e.g. 90d, 720h)")
	return cmd
}
