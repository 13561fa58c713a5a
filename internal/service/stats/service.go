// Package stats derives read-only statistics from habits and their ledger.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/streak"
	"github.com/aimd54/streakd/pkg/logger"
)

// MaxHistoryDays bounds a history query.
const MaxHistoryDays = 366

// HabitRepository interface for habit reads.
type HabitRepository interface {
	Get(ctx context.Context, id string) (*models.Habit, error)
	ListByUser(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error)
}

// LedgerRepository interface for ledger reads.
type LedgerRepository interface {
	Exists(ctx context.Context, habitID string, date calendar.Date) (bool, error)
	ListRange(ctx context.Context, habitID string, from, to calendar.Date) ([]models.CompletionRecord, error)
}

// AchievementCounter counts a user's unlocked achievements.
type AchievementCounter interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// HabitStats is the read model of one habit.
type HabitStats struct {
	HabitID          string        `json:"habit_id"`
	Name             string        `json:"name"`
	State            streak.State  `json:"state"`
	CurrentStreak    int           `json:"current_streak"`
	BestStreak       int           `json:"best_streak"`
	TotalCompletions int           `json:"total_completions"`
	TotalFreezesUsed int           `json:"total_freezes_used"`
	FreezesAvailable int           `json:"freezes_available"`
	FreezeMode       bool          `json:"freeze_mode"`
	StreakGoal       int           `json:"streak_goal"`
	LastCompleted    calendar.Date `json:"last_completed_date,omitempty"`
	IsArchived       bool          `json:"is_archived"`
	CompletionRate   float64       `json:"completion_rate"`
	ProgressToGoal   float64       `json:"progress_to_goal"`
	AtRisk           bool          `json:"at_risk"`
	CompletedToday   bool          `json:"completed_today"`
	CanEarnFreeze    bool          `json:"can_earn_freeze"`
}

// UserStats aggregates every habit of one user.
type UserStats struct {
	UserID               string       `json:"user_id"`
	ActiveHabits         int          `json:"active_habits"`
	ArchivedHabits       int          `json:"archived_habits"`
	TotalCompletions     int          `json:"total_completions"`
	TotalFreezesUsed     int          `json:"total_freezes_used"`
	BestStreak           int          `json:"best_streak"`
	HabitsAtRisk         int          `json:"habits_at_risk"`
	CompletedToday       int          `json:"completed_today"`
	AchievementsUnlocked int64        `json:"achievements_unlocked"`
	Habits               []HabitStats `json:"habits"`
}

// Service computes statistics.
type Service struct {
	habits       HabitRepository
	ledger       LedgerRepository
	achievements AchievementCounter
	loc          *time.Location
	log          *logger.Logger
}

// NewService creates a new stats service. loc is the zone habit creation
// times are converted in.
func NewService(habits HabitRepository, ledger LedgerRepository, achievements AchievementCounter, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		habits:       habits,
		ledger:       ledger,
		achievements: achievements,
		loc:          loc,
		log:          log,
	}
}

// GetHabitStats returns the statistics of habitID as of today.
func (s *Service) GetHabitStats(ctx context.Context, habitID string, today calendar.Date) (*HabitStats, error) {
	habit, err := s.habits.Get(ctx, habitID)
	if err != nil {
		return nil, err
	}
	return s.habitStats(ctx, habit, today)
}

func (s *Service) habitStats(ctx context.Context, habit *models.Habit, today calendar.Date) (*HabitStats, error) {
	completedToday := habit.LastCompletedDate() == today
	if !completedToday && habit.LastCompletedDate().After(today) {
		// A later ledger entry means today can only be looked up directly.
		exists, err := s.ledger.Exists(ctx, habit.ID, today)
		if err != nil {
			return nil, fmt.Errorf("failed to check today's completion: %w", err)
		}
		completedToday = exists
	}

	return &HabitStats{
		HabitID:          habit.ID,
		Name:             habit.Name,
		State:            streak.StateOf(habit),
		CurrentStreak:    habit.CurrentStreak,
		BestStreak:       habit.BestStreak,
		TotalCompletions: habit.TotalCompletions,
		TotalFreezesUsed: habit.TotalFreezesUsed,
		FreezesAvailable: habit.FreezesAvailable,
		FreezeMode:       habit.FreezeMode,
		StreakGoal:       habit.StreakGoal,
		LastCompleted:    habit.LastCompletedDate(),
		IsArchived:       habit.IsArchived,
		CompletionRate:   CompletionRate(habit.TotalCompletions, habit.CreatedDate(s.loc), today),
		ProgressToGoal:   ProgressToGoal(habit.CurrentStreak, habit.StreakGoal),
		AtRisk:           streak.AtRisk(habit, today),
		CompletedToday:   completedToday,
		CanEarnFreeze:    streak.CanEarn(habit),
	}, nil
}

// GetUserStats aggregates all habits of userID, archived ones included.
func (s *Service) GetUserStats(ctx context.Context, userID string, today calendar.Date) (*UserStats, error) {
	list, err := s.habits.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	unlocked, err := s.achievements.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count achievements: %w", err)
	}

	out := &UserStats{
		UserID:               userID,
		AchievementsUnlocked: unlocked,
		Habits:               make([]HabitStats, 0, len(list)),
	}
	for i := range list {
		hs, err := s.habitStats(ctx, &list[i], today)
		if err != nil {
			return nil, err
		}

		if hs.IsArchived {
			out.ArchivedHabits++
		} else {
			out.ActiveHabits++
		}
		out.TotalCompletions += hs.TotalCompletions
		out.TotalFreezesUsed += hs.TotalFreezesUsed
		if hs.BestStreak > out.BestStreak {
			out.BestStreak = hs.BestStreak
		}
		if hs.AtRisk {
			out.HabitsAtRisk++
		}
		if hs.CompletedToday {
			out.CompletedToday++
		}
		out.Habits = append(out.Habits, *hs)
	}

	s.log.Debug().
		Str("user_id", userID).
		Int("habits", len(list)).
		Msg("User stats computed")

	return out, nil
}

// GetHistory returns the ledger of habitID between from and to inclusive.
func (s *Service) GetHistory(ctx context.Context, habitID string, from, to calendar.Date) ([]models.CompletionRecord, error) {
	const op = "stats.GetHistory"

	if from.IsZero() || to.IsZero() {
		return nil, errs.InvalidInput(op, "from and to are required")
	}
	if from.After(to) {
		return nil, errs.InvalidInput(op, "from %s is after to %s", from, to)
	}
	if to.DaysSince(from) >= MaxHistoryDays {
		return nil, errs.InvalidInput(op, "range exceeds %d days", MaxHistoryDays)
	}
	if _, err := s.habits.Get(ctx, habitID); err != nil {
		return nil, err
	}

	records, err := s.ledger.ListRange(ctx, habitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return records, nil
}
