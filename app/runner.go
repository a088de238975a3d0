package app

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pulse-insights/helpers"
)

// CycleReport summarises one analysis cycle
type CycleReport struct {
	RunID     string
	Date      time.Time
	Users     int
	Failed    int
	Insights  int
	Admitted  int
	Published int
	Elapsed   time.Duration
}

// UserLister finds the users a cycle should analyse
type UserLister interface {
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Runner fans the pipeline out over active users
type Runner struct {
	users          UserLister
	pipeline       *Pipeline
	metrics        *Metrics
	concurrency    int
	userTimeout    time.Duration
	activeUserDays int
}

// NewRunner creates a cycle runner; concurrency < 1 runs users one at a time
func NewRunner(users UserLister, pipeline *Pipeline, metrics *Metrics, concurrency int, userTimeout time.Duration, activeUserDays int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if activeUserDays < 1 {
		activeUserDays = 1
	}
	return &Runner{
		users:          users,
		pipeline:       pipeline,
		metrics:        metrics,
		concurrency:    concurrency,
		userTimeout:    userTimeout,
		activeUserDays: activeUserDays,
	}
}

// RunCycle analyses every active user for date.
// Only a failure to list users is returned; per-user failures are logged and counted.
func (r *Runner) RunCycle(ctx context.Context, date time.Time) (CycleReport, error) {
	start := time.Now()
	date = helpers.DateOnly(date)
	report := CycleReport{RunID: uuid.NewString(), Date: date}

	users, err := r.users.ListActiveUsers(ctx, helpers.AddDays(date, -r.activeUserDays))
	if err != nil {
		return report, fmt.Errorf("list active users: %w", err)
	}
	report.Users = len(users)
	log.Printf("🚀 Cycle %s started for %s: %d active users", report.RunID, date.Format("2006-01-02"), len(users))

	ctx = WithRunID(ctx, report.RunID)

	var failed, total, admitted, published atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, userID := range users {
		userID := userID // per-iteration copy (go.mod targets go 1.21)
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			tally, err := r.runUser(gCtx, userID, date)
			r.metrics.userDone(err != nil)
			if err != nil {
				failed.Add(1)
				log.Printf("⚠️  User %s failed in cycle %s: %v", userID, report.RunID, err)
				// never fail the group; other users keep running
				return nil
			}

			total.Add(int64(tally.total))
			admitted.Add(int64(tally.admitted))
			published.Add(int64(tally.published))
			return nil
		})
	}
	_ = g.Wait()

	report.Failed = int(failed.Load())
	report.Insights = int(total.Load())
	report.Admitted = int(admitted.Load())
	report.Published = int(published.Load())
	report.Elapsed = time.Since(start)
	r.metrics.cycleFinished(report.Users, report.Elapsed)

	log.Printf("✅ Cycle %s finished in %s: %d users, %d failed, %d insights (%d admitted, %d published)",
		report.RunID, report.Elapsed.Round(time.Millisecond), report.Users, report.Failed,
		report.Insights, report.Admitted, report.Published)
	return report, nil
}

type userTally struct {
	total     int
	admitted  int
	published int
}

// runUser runs one pipeline under the per-user deadline, turning panics into errors
func (r *Runner) runUser(ctx context.Context, userID string, date time.Time) (tally userTally, err error) {
	if r.userTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.userTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	for _, in := range r.pipeline.Run(ctx, userID, date) {
		tally.total++
		if in.Admitted {
			tally.admitted++
		}
		if in.Published {
			tally.published++
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		log.Printf("⏱️  User %s hit the %s deadline, results may be partial", userID, r.userTimeout)
	}
	return tally, nil
}
