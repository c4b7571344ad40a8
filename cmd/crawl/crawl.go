// Package crawl implements the crawl command: one run over the given URLs, or
// the configured targets, printed as a table.
package crawl

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/re-search/cmd/common"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/domain"
)

// Command returns the crawl command.
func Command() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Run one crawl and print the results",
		Long: `Fetches every URL (or the configured targets when none are given),
extracts opportunities and reconciles them into the record store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range args {
				if err := config.ValidateCrawlURL(u); err != nil {
					return err
				}
			}

			app, err := common.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Services.Orchestrator.RunCrawl(cmd.Context(), args)
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			RenderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print run statistics as JSON")
	return cmd
}

// RenderStats writes the per-URL table and the run summary to w.
func RenderStats(w io.Writer, stats *domain.RunStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"URL", "Status", "Extractor", "Found", "New", "Updated", "Missing", "Removed", "Duration"})

	for i := range stats.PerURLResults {
		r := &stats.PerURLResults[i]
		status := r.Status
		if r.Error != "" {
			status += ": " + r.Error
		}
		t.AppendRow(table.Row{
			r.URL,
			status,
			r.ExtractorUsed,
			r.OpportunitiesFound,
			r.Counts.New,
			r.Counts.Updated,
			r.Counts.Missing,
			r.Counts.Removed,
			r.Duration.Round(time.Millisecond),
		})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d succeeded", stats.Succeeded, stats.Total),
		fmt.Sprintf("%.0f%%", stats.SuccessRate*100),
		usageSummary(stats.ScraperUsage),
		"",
		stats.NewCount,
		stats.UpdatedCount,
		stats.MissingCount,
		stats.RemovedCount,
		stats.AverageDuration.Round(time.Millisecond),
	})
	t.Render()
}

func usageSummary(usage map[string]int) string {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, usage[name]))
	}
	return strings.Join(parts, " ")
}
