package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs reconciliation every five minutes.
const DefaultSchedule = "@every 5m"

// Reconciler repairs interviews left behind by a failed completion.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileJob runs a Reconciler on a cron schedule.
type ReconcileJob struct {
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	cron       *cron.Cron
}

// NewReconcileJob creates a job. An empty schedule uses DefaultSchedule.
func NewReconcileJob(r Reconciler, schedule string) *ReconcileJob {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &ReconcileJob{
		reconciler: r,
		schedule:   schedule,
		timeout:    time.Minute,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
	}
}

// Start schedules the job. It does not block.
func (j *ReconcileJob) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			slog.Error("reconciliation pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", j.schedule, err)
	}
	j.cron.Start()
	slog.Info("reconciliation job started", "schedule", j.schedule)
	return nil
}

// Run starts the job and blocks until ctx is done, then waits for a running
// pass to finish.
func (j *ReconcileJob) Run(ctx context.Context) error {
	if err := j.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	j.Stop()
	return nil
}

// Stop halts scheduling and waits for a running pass.
func (j *ReconcileJob) Stop() {
	<-j.cron.Stop().Done()
	slog.Info("reconciliation job stopped")
}

// RunOnce performs a single reconciliation pass.
func (j *ReconcileJob) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.reconciler.Reconcile(ctx)
}
