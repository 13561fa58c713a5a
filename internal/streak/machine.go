// Package streak holds the per-habit streak state machine and freeze bank.
//
// Every function here is pure over a *models.Habit: callers load the habit,
// apply transitions under the habit lock and persist the result together with
// any ledger records the transitions ask for.
package streak

import (
	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
)

// State is the persisted condition of a habit.
type State string

const (
	StateActive State = "ACTIVE"
	StateBroken State = "BROKEN"
)

// Outcome is the result of one transition.
type Outcome string

const (
	OutcomeExtended  Outcome = "EXTENDED"
	OutcomeStarted   Outcome = "STARTED"
	OutcomeUnchanged Outcome = "UNCHANGED"
	OutcomeFrozen    Outcome = "FROZEN"
	OutcomeReset     Outcome = "RESET"
)

// StateOf derives the state from the counters.
func StateOf(h *models.Habit) State {
	if h.CurrentStreak > 0 {
		return StateActive
	}
	return StateBroken
}

// AtRisk reports whether an active streak still needs today's completion.
func AtRisk(h *models.Habit, today calendar.Date) bool {
	return !h.IsArchived && StateOf(h) == StateActive && h.LastCompletedDate() != today
}

// Snapshot is an immutable view of a habit's counters.
type Snapshot struct {
	HabitID          string        `json:"habit_id"`
	UserID           string        `json:"user_id"`
	State            State         `json:"state"`
	CurrentStreak    int           `json:"current_streak"`
	BestStreak       int           `json:"best_streak"`
	TotalCompletions int           `json:"total_completions"`
	TotalFreezesUsed int           `json:"total_freezes_used"`
	FreezesAvailable int           `json:"freezes_available"`
	FreezeMode       bool          `json:"freeze_mode"`
	LastCompleted    calendar.Date `json:"last_completed_date,omitempty"`
	IsArchived       bool          `json:"is_archived"`
}

// Snap captures h.
func Snap(h *models.Habit) Snapshot {
	return Snapshot{
		HabitID:          h.ID,
		UserID:           h.UserID,
		State:            StateOf(h),
		CurrentStreak:    h.CurrentStreak,
		BestStreak:       h.BestStreak,
		TotalCompletions: h.TotalCompletions,
		TotalFreezesUsed: h.TotalFreezesUsed,
		FreezesAvailable: h.FreezesAvailable,
		FreezeMode:       h.FreezeMode,
		LastCompleted:    h.LastCompletedDate(),
		IsArchived:       h.IsArchived,
	}
}

// ValidateCompletionDate checks a manual completion for d against the habit and
// the backfill window. It does not look at the ledger: the caller handles an
// existing record for d before calling this.
func ValidateCompletionDate(h *models.Habit, d, today calendar.Date, graceDays int) error {
	const op = "streak.ValidateCompletionDate"

	if err := ValidateWindow(h.ID, d, today, graceDays); err != nil {
		return err
	}

	last := h.LastCompletedDate()
	if last.IsZero() {
		return nil
	}
	if d.Before(last) {
		return errs.InvalidDate(op, h.ID, "date %s precedes last completed date %s", d, last)
	}
	if StateOf(h) == StateBroken && d == last.AddDays(1) {
		return errs.InvalidDate(op, h.ID, "date %s was already reconciled as missed", d)
	}
	return nil
}

// ValidateWindow rejects dates in the future or older than the backfill window.
func ValidateWindow(habitID string, d, today calendar.Date, graceDays int) error {
	const op = "streak.ValidateWindow"

	if d.After(today) {
		return errs.InvalidDate(op, habitID, "date %s is in the future", d)
	}
	if today.DaysSince(d) > graceDays {
		return errs.InvalidDate(op, habitID, "date %s is outside the %d day backfill window", d, graceDays)
	}
	return nil
}

// MissedDay is one reconciled day.
type MissedDay struct {
	Date    calendar.Date
	Outcome Outcome // OutcomeFrozen or OutcomeReset
}

// HasPendingGap reports whether days before through are unaccounted for on an
// active streak.
func HasPendingGap(h *models.Habit, through calendar.Date) bool {
	last := h.LastCompletedDate()
	return h.CurrentStreak > 0 && !last.IsZero() && last.Before(through)
}

// ApplyMissedDay handles the first day after the last covered one. With freeze
// mode on and a freeze available the day is covered and the streak preserved;
// otherwise the streak resets and the day stays empty.
func ApplyMissedDay(h *models.Habit) MissedDay {
	missed := h.LastCompletedDate().AddDays(1)

	if h.FreezeMode && TryConsume(h) {
		h.TotalFreezesUsed++
		h.LastCompleted = missed.Ptr()
		return MissedDay{Date: missed, Outcome: OutcomeFrozen}
	}

	h.CurrentStreak = 0
	return MissedDay{Date: missed, Outcome: OutcomeReset}
}

// Reconcile walks forward from the last covered day until through is covered or
// the streak breaks. Each frozen day must be written to the ledger by the caller.
func Reconcile(h *models.Habit, through calendar.Date) []MissedDay {
	var days []MissedDay
	for HasPendingGap(h, through) {
		day := ApplyMissedDay(h)
		days = append(days, day)
		if day.Outcome == OutcomeReset {
			break
		}
	}
	return days
}

// ApplyCompletion applies a manual completion for d, which must already be
// validated and reconciled up to d-1. It reports whether a freeze was earned.
func ApplyCompletion(h *models.Habit, d calendar.Date) (Outcome, bool) {
	last := h.LastCompletedDate()
	if last == d {
		return OutcomeUnchanged, false
	}

	outcome := OutcomeStarted
	if h.CurrentStreak > 0 && !last.IsZero() && d == last.AddDays(1) {
		h.CurrentStreak++
		outcome = OutcomeExtended
	} else {
		h.CurrentStreak = 1
	}

	if h.CurrentStreak > h.BestStreak {
		h.BestStreak = h.CurrentStreak
	}
	h.TotalCompletions++
	h.LastCompleted = d.Ptr()

	return outcome, TryEarn(h)
}
