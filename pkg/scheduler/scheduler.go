package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/app"
)

// Runner is the part of the application the scheduled jobs drive
type Runner interface {
	RunFullScan(ctx context.Context) (*app.Result, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Options configures a Scheduler. An empty spec disables that job.
type Options struct {
	ScanSpec      string
	RetentionSpec string
	Retention     time.Duration // scans older than this are pruned
	Log           *logrus.Logger
	Now           func() time.Time
}

// Scheduler runs periodic scans and retention cleanup on cron schedules
type Scheduler struct {
	runner    Runner
	cron      *cron.Cron
	retention time.Duration
	log       *logrus.Logger
	now       func() time.Time
	ctx       context.Context
}

// New creates a scheduler and registers the configured jobs
func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := cronLogger{log: opts.Log}
	s := &Scheduler{
		runner: runner,
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		retention: opts.Retention,
		log:       opts.Log,
		now:       opts.Now,
		ctx:       context.Background(),
	}

	if opts.ScanSpec != "" {
		if _, err := s.cron.AddFunc(opts.ScanSpec, func() { s.RunScan(s.ctx) }); err != nil {
			return nil, fmt.Errorf("failed to schedule scans: %w", err)
		}
	}
	if opts.RetentionSpec != "" && opts.Retention > 0 {
		if _, err := s.cron.AddFunc(opts.RetentionSpec, func() { s.RunRetention(s.ctx) }); err != nil {
			return nil, fmt.Errorf("failed to schedule retention cleanup: %w", err)
		}
	}

	return s, nil
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the cron scheduler in the background. Jobs use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.WithField("jobs", s.Jobs()).Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// RunScan runs one scheduled scan
func (s *Scheduler) RunScan(ctx context.Context) {
	s.log.Info("Starting scheduled scan")

	result, err := s.runner.RunFullScan(ctx)
	if err != nil {
		s.log.WithError(err).WithField("code", app.DiagnosticCode(err)).Error("Scheduled scan failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"snapshot_id": result.Snapshot.ID,
		"cached":      result.Cached,
	}).Info("Scheduled scan completed")
}

// RunRetention prunes scans older than the retention period
func (s *Scheduler) RunRetention(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)

	n, err := s.runner.Prune(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Retention cleanup failed")
		return
	}
	s.log.WithField("removed", n).Info("Retention cleanup completed")
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	log *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
