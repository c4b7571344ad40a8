// Package scheduler runs the periodic crawl and retention jobs on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/re-search/internal/logger"
)

// Parser accepts standard five-field expressions and descriptors such as
// @daily.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler fires jobs on their schedules. A job still running when its next
// tick arrives is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	log     logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New builds a stopped Scheduler.
func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.Component("scheduler"))
	adapter := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
			cron.WithLogger(adapter),
		),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("schedule %s: run func is nil", job.Name)
	}
	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("schedule %s: job already registered", job.Name)
	}

	schedule, err := Parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.entries[job.Name] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(job) }))

	s.log.Info("Job scheduled",
		logger.String("job", job.Name),
		logger.String("schedule", job.Schedule),
		logger.Time("next_run", schedule.Next(time.Now())),
	)
	return nil
}

// Next returns the next activation of the named job after now, or the zero
// time for an unknown job.
func (s *Scheduler) Next(name string, now time.Time) time.Time {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Schedule.Next(now)
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	log := s.log.With(logger.String("job", job.Name))
	log.Info("Scheduled job started")

	if err := job.Run(s.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Scheduled job cancelled", logger.Duration("duration", time.Since(start)))
			return
		}
		log.Error("Scheduled job failed", logger.Error(err), logger.Duration("duration", time.Since(start)))
		return
	}
	log.Info("Scheduled job finished", logger.Duration("duration", time.Since(start)))
}

// Run starts the scheduler and blocks until ctx is done. Running jobs are
// cancelled and awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
