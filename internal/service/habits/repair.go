package habits

import (
	"context"
	"fmt"

	"github.com/aimd54/streakd/internal/calendar"
	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/streak"
)

// RepairReport compares the cached counters of a habit with a ledger replay.
type RepairReport struct {
	HabitID           string             `json:"habit_id"`
	ReconciledThrough calendar.Date      `json:"reconciled_through"`
	MissedDays        []streak.MissedDay `json:"missed_days,omitempty"`
	Cached            streak.Counters    `json:"cached"`
	Replayed          streak.Counters    `json:"replayed"`
	Drift             []string           `json:"drift,omitempty"`
	DryRun            bool               `json:"dry_run"`
	Repaired          bool               `json:"repaired"`
}

// Repair reconciles habitID, replays its ledger and overwrites the cached
// counters when they drifted. With dryRun nothing is written. Archived habits
// are replayed as of the day before they were archived.
func (s *Service) Repair(ctx context.Context, habitID string, dryRun bool) (*RepairReport, error) {
	today := s.Today()

	var (
		report   *RepairReport
		unlocked []models.Achievement
	)
	err := s.mutate(ctx, "repair", habitID, func(tx *repository.Store) error {
		var err error
		report, unlocked, err = s.repair(ctx, tx, habitID, today, dryRun)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repair of habit %s failed: %w", habitID, err)
	}

	s.achievements.Committed(unlocked)
	if !dryRun {
		s.recordMissedDays(report.MissedDays, "repair")
	}
	if len(report.Drift) > 0 {
		prommetrics.RecordDriftDetected()
		s.log.Warn().
			Str("habit_id", habitID).
			Strs("drift", report.Drift).
			Bool("dry_run", dryRun).
			Msg("Habit counters drifted from ledger")
	}
	return report, nil
}

func (s *Service) repair(ctx context.Context, tx *repository.Store, habitID string, today calendar.Date, dryRun bool) (*RepairReport, []models.Achievement, error) {
	habit, err := tx.Habits.Get(ctx, habitID)
	if err != nil {
		return nil, nil, err
	}
	records, err := tx.Ledger.ListByHabit(ctx, habitID)
	if err != nil {
		return nil, nil, err
	}

	var unlocked []models.Achievement
	report := &RepairReport{HabitID: habitID, DryRun: dryRun}

	if habit.IsArchived && habit.ArchivedAt != nil {
		report.ReconciledThrough = calendar.FromTime(*habit.ArchivedAt, s.opts.Location).AddDays(-1)
	} else {
		report.ReconciledThrough = today.AddDays(-1)
		if dryRun {
			// Reconcile a copy and replay the freeze records it would write.
			clone := *habit
			report.MissedDays = streak.Reconcile(&clone, report.ReconciledThrough)
			records = append(records, freezeRecords(habitID, report.MissedDays)...)
			habit = &clone
		} else {
			report.MissedDays, unlocked, err = s.applyMissedDays(ctx, tx, habit, report.ReconciledThrough)
			if err != nil {
				return nil, nil, err
			}
			if len(report.MissedDays) > 0 {
				records, err = tx.Ledger.ListByHabit(ctx, habitID)
				if err != nil {
					return nil, nil, err
				}
			}
		}
	}

	report.Cached = streak.CountersOf(habit)
	report.Replayed = streak.Replay(records, report.ReconciledThrough)
	report.Drift = report.Cached.Diff(report.Replayed)

	if dryRun || len(report.Drift) == 0 {
		return report, unlocked, nil
	}
	report.Replayed.Apply(habit)
	if habit.BestStreak < habit.CurrentStreak {
		habit.BestStreak = habit.CurrentStreak
	}
	if err := tx.Habits.Save(ctx, habit); err != nil {
		return nil, nil, err
	}
	report.Repaired = true
	return report, unlocked, nil
}

func freezeRecords(habitID string, days []streak.MissedDay) []models.CompletionRecord {
	var out []models.CompletionRecord
	for _, day := range days {
		if day.Outcome == streak.OutcomeFrozen {
			out = append(out, models.CompletionRecord{HabitID: habitID, Date: day.Date, UsedFreeze: true})
		}
	}
	return out
}
