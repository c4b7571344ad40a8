// Package httpd implements the httpd command: the HTTP API plus the scheduled
// crawl and retention jobs.
package httpd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/re-search/cmd/common"
	"github.com/jonesrussell/re-search/internal/api"
	"github.com/jonesrussell/re-search/internal/bootstrap"
	"github.com/jonesrussell/re-search/internal/scheduler"
)

// Scheduled job names.
const (
	JobCrawl   = "crawl"
	JobCleanup = "retention-cleanup"
)

// Command returns the httpd command.
func Command() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "httpd",
		Short: "Serve the HTTP API and run scheduled crawls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := common.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			return Start(cmd.Context(), app, !noSchedule)
		},
	}

	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without scheduled jobs")
	return cmd
}

// Start serves until ctx is done. With schedule set the crawl and retention
// jobs run on their configured cron expressions.
func Start(ctx context.Context, app *bootstrap.App, schedule bool) error {
	var sched *scheduler.Scheduler
	if schedule {
		var err error
		if sched, err = NewScheduler(app); err != nil {
			return err
		}
	}

	handler := api.NewHandler(ctx, app.HandlerDeps())
	server := api.NewServer(&app.Config.Server, handler, app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	return g.Wait()
}

// NewScheduler registers the crawl and retention jobs for app.
func NewScheduler(app *bootstrap.App) (*scheduler.Scheduler, error) {
	sched := scheduler.New(app.Logger)
	crawl := app.Config.Crawl

	if err := sched.Add(scheduler.Job{
		Name:     JobCrawl,
		Schedule: crawl.Schedule,
		Run: func(ctx context.Context) error {
			_, err := app.Services.Orchestrator.RunCrawl(ctx, nil)
			return err
		},
	}); err != nil {
		return nil, fmt.Errorf("schedule crawl: %w", err)
	}

	if err := sched.Add(scheduler.Job{
		Name:     JobCleanup,
		Schedule: crawl.CleanupSchedule,
		Run: func(ctx context.Context) error {
			_, err := app.Cleanup(ctx)
			return err
		},
	}); err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}

	return sched, nil
}
