package habits

import (
	"context"
	"fmt"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/internal/streak"
)

// ReconcileOutcome summarises what the sweep did to one habit.
type ReconcileOutcome string

const (
	ReconcileSkipped ReconcileOutcome = "skipped"
	ReconcileFrozen  ReconcileOutcome = "frozen"
	ReconcileBroken  ReconcileOutcome = "broken"
)

// ReconcileResult is the sweep's per-habit result.
type ReconcileResult struct {
	HabitID string             `json:"habit_id"`
	Outcome ReconcileOutcome   `json:"outcome"`
	Days    []streak.MissedDay `json:"days,omitempty"`
}

// ReconcileHabit applies the missed-day transition to habitID for every day
// up to asOf-1 that is not yet accounted for. A habit that already has a
// ledger record for asOf-1 is left alone, so running it twice is a no-op.
// An asOf after today is rejected: only days that are over can be settled.
func (s *Service) ReconcileHabit(ctx context.Context, habitID string, asOf calendar.Date) (*ReconcileResult, error) {
	if today := s.Today(); asOf.After(today) {
		return nil, errs.InvalidDate("habits.ReconcileHabit", habitID, "as-of %s is after today %s", asOf, today)
	}

	yesterday := asOf.AddDays(-1)
	result := &ReconcileResult{HabitID: habitID, Outcome: ReconcileSkipped}

	var unlocked []models.Achievement
	err := s.mutate(ctx, "reconcile", habitID, func(tx *repository.Store) error {
		result.Days, unlocked = nil, nil

		habit, err := tx.Habits.Get(ctx, habitID)
		if err != nil {
			return err
		}
		if habit.IsArchived || habit.CurrentStreak == 0 {
			return nil
		}
		covered, err := tx.Ledger.Exists(ctx, habitID, yesterday)
		if err != nil {
			return err
		}
		if covered {
			return nil
		}

		result.Days, unlocked, err = s.applyMissedDays(ctx, tx, habit, yesterday)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.achievements.Committed(unlocked)
	s.recordMissedDays(result.Days, "sweep")
	result.Outcome = outcomeOf(result.Days)

	if result.Outcome != ReconcileSkipped {
		s.log.Info().
			Str("habit_id", habitID).
			Str("as_of", asOf.String()).
			Str("outcome", string(result.Outcome)).
			Int("days", len(result.Days)).
			Msg("Habit reconciled")
	}
	return result, nil
}

func outcomeOf(days []streak.MissedDay) ReconcileOutcome {
	if len(days) == 0 {
		return ReconcileSkipped
	}
	if days[len(days)-1].Outcome == streak.OutcomeReset {
		return ReconcileBroken
	}
	return ReconcileFrozen
}

// applyMissedDays reconciles habit through the given day, writes a freeze record
// for every covered day and persists the habit when anything changed.
func (s *Service) applyMissedDays(ctx context.Context, tx *repository.Store, habit *models.Habit, through calendar.Date) ([]streak.MissedDay, []models.Achievement, error) {
	before := streak.Snap(habit)
	days := streak.Reconcile(habit, through)
	if len(days) == 0 {
		return nil, nil, nil
	}

	frozen := false
	for _, day := range days {
		if day.Outcome != streak.OutcomeFrozen {
			continue
		}
		frozen = true
		rec := &models.CompletionRecord{
			HabitID:     habit.ID,
			Date:        day.Date,
			CompletedAt: s.opts.Clock.Now().UTC(),
			UsedFreeze:  true,
			TimeZone:    s.opts.Location.String(),
		}
		if err := tx.Ledger.Append(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("failed to record freeze for %s: %w", day.Date, err)
		}
	}
	if err := tx.Habits.Save(ctx, habit); err != nil {
		return nil, nil, err
	}
	if !frozen {
		return days, nil, nil
	}

	in := achievements.Input{
		Event:  achievements.EventFreezeConsumed,
		Before: before,
		After:  streak.Snap(habit),
	}
	created, err := s.achievements.Persist(ctx, tx.Achievements, habit.UserID, habit.ID, s.achievements.Candidates(habit.UserID, in))
	if err != nil {
		return nil, nil, err
	}
	return days, created, nil
}

func (s *Service) recordMissedDays(days []streak.MissedDay, source string) {
	for _, day := range days {
		switch day.Outcome {
		case streak.OutcomeFrozen:
			prommetrics.RecordFreezeConsumed(source)
		case streak.OutcomeReset:
			prommetrics.RecordStreakReset(source)
		}
	}
}

// ArchiveHabit reconciles the habit through yesterday and freezes its counters.
func (s *Service) ArchiveHabit(ctx context.Context, userID, habitID string) (*models.Habit, error) {
	const op = "habits.ArchiveHabit"

	today := s.Today()
	var (
		habit    *models.Habit
		days     []streak.MissedDay
		unlocked []models.Achievement
	)
	err := s.mutate(ctx, "archive", habitID, func(tx *repository.Store) error {
		var err error
		habit, err = ownedHabit(ctx, tx, op, userID, habitID)
		if err != nil {
			return err
		}
		if habit.IsArchived {
			return errs.Archived(op, habitID)
		}
		days, unlocked, err = s.applyMissedDays(ctx, tx, habit, today.AddDays(-1))
		if err != nil {
			return err
		}

		now := s.opts.Clock.Now().UTC()
		habit.IsArchived = true
		habit.ArchivedAt = &now
		return tx.Habits.Save(ctx, habit)
	})
	if err != nil {
		return nil, err
	}

	s.achievements.Committed(unlocked)
	s.recordMissedDays(days, "inline")
	s.log.Info().
		Str("user_id", userID).
		Str("habit_id", habitID).
		Int("current_streak", habit.CurrentStreak).
		Msg("Habit archived")
	return habit, nil
}

// SetFreezeMode toggles automatic freeze use. Days missed before the change
// are settled under the previous mode first.
func (s *Service) SetFreezeMode(ctx context.Context, userID, habitID string, enabled bool) (*models.Habit, error) {
	const op = "habits.SetFreezeMode"

	today := s.Today()
	var (
		habit    *models.Habit
		days     []streak.MissedDay
		unlocked []models.Achievement
	)
	err := s.mutate(ctx, "freeze_mode", habitID, func(tx *repository.Store) error {
		var err error
		habit, err = ownedHabit(ctx, tx, op, userID, habitID)
		if err != nil {
			return err
		}
		if habit.IsArchived {
			return errs.Archived(op, habitID)
		}
		days, unlocked, err = s.applyMissedDays(ctx, tx, habit, today.AddDays(-1))
		if err != nil {
			return err
		}
		if habit.FreezeMode == enabled {
			return nil
		}
		habit.FreezeMode = enabled
		return tx.Habits.Save(ctx, habit)
	})
	if err != nil {
		return nil, err
	}

	s.achievements.Committed(unlocked)
	s.recordMissedDays(days, "inline")
	s.log.Info().
		Str("user_id", userID).
		Str("habit_id", habitID).
		Bool("freeze_mode", enabled).
		Msg("Freeze mode updated")
	return habit, nil
}
