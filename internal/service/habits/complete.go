package habits

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/internal/streak"
)

// manualRunLookback bounds the manual-run lookback. It is one past the
// perfect-month length so the run equals 30 only on the day it gets there.
const manualRunLookback = 31

// CompletionResult describes the effect of one CompleteHabit call.
type CompletionResult struct {
	Habit        streak.Snapshot          `json:"habit"`
	Record       *models.CompletionRecord `json:"record"`
	Outcome      streak.Outcome           `json:"outcome"`
	FreezeEarned bool                     `json:"freeze_earned"`
	MissedDays   []streak.MissedDay       `json:"missed_days,omitempty"`
	Achievements []models.Achievement     `json:"achievements"`
}

// CompleteHabit records a manual completion of habitID for date. A zero date
// means today in the engine time zone. Repeating a completion for a day that
// already has a manual record succeeds without changing anything.
func (s *Service) CompleteHabit(ctx context.Context, userID, habitID string, date calendar.Date, note string) (*CompletionResult, error) {
	const op = "habits.CompleteHabit"

	if utf8.RuneCountInString(note) > models.MaxNoteLength {
		return nil, errs.InvalidInput(op, "note exceeds %d characters", models.MaxNoteLength)
	}
	today := s.Today()
	if date.IsZero() {
		date = today
	}

	var result *CompletionResult
	err := s.mutate(ctx, "complete", habitID, func(tx *repository.Store) error {
		var err error
		result, err = s.complete(ctx, tx, userID, habitID, date, today, note)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			prommetrics.RecordLedgerConflict("rejected")
		}
		s.log.Debug().
			Err(err).
			Str("user_id", userID).
			Str("habit_id", habitID).
			Str("date", date.String()).
			Msg("Completion rejected")
		return nil, err
	}

	s.achievements.Committed(result.Achievements)
	s.recordMissedDays(result.MissedDays, "inline")
	prommetrics.RecordCompletion(string(result.Outcome))
	if result.FreezeEarned {
		prommetrics.RecordFreezeEarned()
	}
	if result.Outcome == streak.OutcomeUnchanged {
		prommetrics.RecordLedgerConflict("idempotent")
	}

	s.log.Info().
		Str("user_id", userID).
		Str("habit_id", habitID).
		Str("date", date.String()).
		Str("outcome", string(result.Outcome)).
		Int("current_streak", result.Habit.CurrentStreak).
		Int("freezes_available", result.Habit.FreezesAvailable).
		Msg("Habit completed")

	return result, nil
}

func (s *Service) complete(ctx context.Context, tx *repository.Store, userID, habitID string, date, today calendar.Date, note string) (*CompletionResult, error) {
	const op = "habits.CompleteHabit"

	habit, err := ownedHabit(ctx, tx, op, userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit.IsArchived {
		return nil, errs.Archived(op, habitID)
	}
	if err := streak.ValidateWindow(habitID, date, today, s.opts.GraceDays); err != nil {
		return nil, err
	}

	existing, err := tx.Ledger.Get(ctx, habitID, date)
	switch {
	case err == nil && existing.IsManual:
		return &CompletionResult{
			Habit:   streak.Snap(habit),
			Record:  existing,
			Outcome: streak.OutcomeUnchanged,
		}, nil
	case err == nil:
		return nil, errs.Conflict(op, habitID, "%s was already covered by a freeze", date)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	if err := streak.ValidateCompletionDate(habit, date, today, s.opts.GraceDays); err != nil {
		return nil, err
	}

	missed, unlocked, err := s.applyMissedDays(ctx, tx, habit, date.AddDays(-1))
	if err != nil {
		return nil, err
	}

	before := streak.Snap(habit)
	userBefore, err := tx.Habits.SumCompletionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	outcome, earned := streak.ApplyCompletion(habit, date)

	rec := &models.CompletionRecord{
		HabitID:     habitID,
		Date:        date,
		CompletedAt: s.opts.Clock.Now().UTC(),
		IsManual:    true,
		Note:        note,
		TimeZone:    s.opts.Location.String(),
	}
	if err := tx.Ledger.Append(ctx, rec); err != nil {
		return nil, err
	}
	if err := tx.Habits.Save(ctx, habit); err != nil {
		return nil, err
	}

	run, err := tx.Ledger.ManualRunEndingAt(ctx, habitID, date, manualRunLookback)
	if err != nil {
		return nil, err
	}
	in := achievements.Input{
		Event:                 achievements.EventCompletion,
		Before:                before,
		After:                 streak.Snap(habit),
		UserCompletionsBefore: userBefore,
		UserCompletionsAfter:  userBefore + 1,
		ManualRun:             run,
	}
	created, err := s.achievements.Persist(ctx, tx.Achievements, userID, habitID, s.achievements.Candidates(userID, in))
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		Habit:        streak.Snap(habit),
		Record:       rec,
		Outcome:      outcome,
		FreezeEarned: earned,
		MissedDays:   missed,
		Achievements: append(unlocked, created...),
	}, nil
}
