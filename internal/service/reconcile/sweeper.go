// Package reconcile runs the daily sweep that settles every running streak
// for the previous day.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/errs"
	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/retry"
	"github.com/aimd54/streakd/internal/service/habits"
	"github.com/aimd54/streakd/pkg/logger"
)

// ErrSweepRunning is returned when a sweep is started while another one runs
// in the same process.
var ErrSweepRunning = errors.New("sweep already in progress")

// HabitLister pages through habits with a running streak.
type HabitLister interface {
	ListActiveAfter(ctx context.Context, cursor string, limit int) ([]models.Habit, error)
}

// HabitReconciler applies the missed-day transition to one habit. Today is
// the current engine day, the latest as-of a sweep may run for.
type HabitReconciler interface {
	Today() calendar.Date
	ReconcileHabit(ctx context.Context, habitID string, asOf calendar.Date) (*habits.ReconcileResult, error)
}

// HabitFailure is a habit the sweep could not settle.
type HabitFailure struct {
	HabitID string `json:"habit_id"`
	Error   string `json:"error"`
}

// SweepReport summarises one sweep run. Processed counts every habit visited,
// failed ones included.
type SweepReport struct {
	Date      calendar.Date  `json:"date"`
	Processed int            `json:"processed"`
	Frozen    int            `json:"frozen"`
	Broken    int            `json:"broken"`
	Skipped   int            `json:"skipped"`
	Failed    []HabitFailure `json:"failed"`
	Resumed   bool           `json:"resumed"`
	Cancelled bool           `json:"cancelled"`
	Duration  time.Duration  `json:"duration"`
}

func (r *SweepReport) record(habitID string, result *habits.ReconcileResult, err error) {
	r.Processed++
	if err != nil {
		r.Failed = append(r.Failed, HabitFailure{HabitID: habitID, Error: err.Error()})
		prommetrics.RecordSweepHabit("failed")
		return
	}
	switch result.Outcome {
	case habits.ReconcileFrozen:
		r.Frozen++
	case habits.ReconcileBroken:
		r.Broken++
	default:
		r.Skipped++
	}
	prommetrics.RecordSweepHabit(string(result.Outcome))
}

func (r *SweepReport) status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "success"
	}
}

// Sweeper walks all running streaks in id order, one page at a time, with a
// bounded number of habits in flight.
type Sweeper struct {
	habits     HabitLister
	reconciler HabitReconciler
	cursor     CursorStore
	workers    int
	batchSize  int
	retry      retry.Policy
	running    atomic.Bool
	log        *logger.Logger
}

// NewSweeper creates a new sweeper.
func NewSweeper(
	lister HabitLister,
	reconciler HabitReconciler,
	cursor CursorStore,
	cfg *config.SchedulerConfig,
	policy retry.Policy,
	log *logger.Logger,
) *Sweeper {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 100
	}
	if cursor == nil {
		cursor = NewMemoryCursorStore()
	}
	return &Sweeper{
		habits:     lister,
		reconciler: reconciler,
		cursor:     cursor,
		workers:    workers,
		batchSize:  batchSize,
		retry:      policy,
		log:        log,
	}
}

// RunDailySweep settles asOf-1 for every non-archived habit with a running
// streak. A failing habit is reported and never aborts the run. Cancelling ctx
// stops the sweep after the habits already in flight; the cursor then points
// at the last fully processed page so a rerun for the same date resumes there.
// An asOf after the engine's today fails with errs.ErrInvalidDate.
func (s *Sweeper) RunDailySweep(ctx context.Context, asOf calendar.Date) (*SweepReport, error) {
	if today := s.reconciler.Today(); asOf.After(today) {
		return nil, errs.InvalidDate("reconcile.RunDailySweep", "", "as-of %s is after today %s", asOf, today)
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepRunning
	}
	defer s.running.Store(false)

	start := time.Now()
	prommetrics.SetSweepInProgress(true)
	defer prommetrics.SetSweepInProgress(false)

	report := &SweepReport{Date: asOf, Failed: []HabitFailure{}}

	cursor, err := s.cursor.Load(ctx, asOf)
	if err != nil {
		s.log.Warn().Err(err).Str("date", asOf.String()).Msg("Failed to load sweep cursor, starting from the beginning")
		cursor = ""
	}
	report.Resumed = cursor != ""

	s.log.Info().
		Str("date", asOf.String()).
		Str("cursor", cursor).
		Int("workers", s.workers).
		Int("batch_size", s.batchSize).
		Msg("Starting daily sweep")

	for {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		var page []models.Habit
		err := retry.Do(ctx, s.retry, func() error {
			var err error
			page, err = s.habits.ListActiveAfter(ctx, cursor, s.batchSize)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
				break
			}
			report.Duration = time.Since(start)
			prommetrics.RecordSweepRun("failed")
			return report, fmt.Errorf("failed to list habits after %q: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		if !s.runPage(ctx, asOf, page, report) {
			report.Cancelled = true
			break
		}

		cursor = page[len(page)-1].ID
		if err := s.cursor.Save(ctx, asOf, cursor); err != nil {
			s.log.Warn().Err(err).Str("cursor", cursor).Msg("Failed to save sweep cursor")
		}
		if len(page) < s.batchSize {
			break
		}
	}

	if !report.Cancelled {
		if err := s.cursor.Clear(context.WithoutCancel(ctx), asOf); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear sweep cursor")
		}
		prommetrics.SetSweepLastRun()
	}

	report.Duration = time.Since(start)
	prommetrics.ObserveSweepDuration(report.Duration)
	prommetrics.RecordSweepRun(report.status())

	s.log.Info().
		Str("date", asOf.String()).
		Int("processed", report.Processed).
		Int("frozen", report.Frozen).
		Int("broken", report.Broken).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Bool("resumed", report.Resumed).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("Daily sweep finished")

	return report, nil
}

// runPage reconciles one page and reports whether every habit of it was
// handed to a worker. Work already started runs on a context detached from
// cancellation so no habit is left half done.
func (s *Sweeper) runPage(ctx context.Context, asOf calendar.Date, page []models.Habit, report *SweepReport) bool {
	sem := semaphore.NewWeighted(int64(s.workers))
	g, _ := errgroup.WithContext(ctx)
	work := context.WithoutCancel(ctx)

	var mu sync.Mutex
	complete := true
	for _, habit := range page {
		if err := sem.Acquire(ctx, 1); err != nil {
			complete = false
			break
		}
		// Acquire may succeed on a cancelled context.
		if ctx.Err() != nil {
			sem.Release(1)
			complete = false
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			result, err := s.reconciler.ReconcileHabit(work, habit.ID, asOf)
			if err != nil {
				s.log.Error().
					Err(err).
					Str("habit_id", habit.ID).
					Str("date", asOf.String()).
					Msg("Failed to reconcile habit")
			}

			mu.Lock()
			report.record(habit.ID, result, err)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return complete
}
