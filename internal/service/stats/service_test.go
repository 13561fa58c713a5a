package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/lock"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/retry"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/internal/service/habits"
	"github.com/aimd54/streakd/internal/streak"
	"github.com/aimd54/streakd/internal/testutil"
	"github.com/aimd54/streakd/pkg/logger"
)

var day1 = calendar.MustParse("2024-01-01")

func TestCompletionRate(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		created calendar.Date
		today   calendar.Date
		want    float64
	}{
		{"created today and completed", 1, day1, day1, 100},
		{"created today not completed", 0, day1, day1, 0},
		{"half", 2, day1, day1.AddDays(3), 50},
		{"rounded", 3, day1, day1.AddDays(6), 42.86},
		{"capped", 10, day1, day1.AddDays(1), 100},
		{"clock before creation", 1, day1, day1.AddDays(-5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompletionRate(tt.total, tt.created, tt.today))
		})
	}
}

func TestProgressToGoal(t *testing.T) {
	tests := []struct {
		current int
		goal    int
		want    float64
	}{
		{0, 7, 0},
		{3, 7, 42.86},
		{7, 7, 100},
		{30, 7, 100},
		{0, 0, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ProgressToGoal(tt.current, tt.goal), "current=%d goal=%d", tt.current, tt.goal)
	}
}

type statsEnv struct {
	stats  *Service
	habits *habits.Service
	store  *repository.Store
	clock  *calendar.FixedClock
}

func newStatsEnv(t *testing.T) *statsEnv {
	t.Helper()
	store := testutil.NewStore(t)
	ach, err := achievements.NewService(store.Achievements, 16, logger.Nop())
	require.NoError(t, err)
	clock := calendar.NewFixedClockOn(day1)

	habitSvc := habits.NewService(store, lock.NewLocalLocker(), ach, habits.Options{
		Location:    time.UTC,
		GraceDays:   1,
		RetryPolicy: retry.NoRetry,
		Clock:       clock,
	}, logger.Nop())

	return &statsEnv{
		stats:  NewService(store.Habits, store.Ledger, store.Achievements, time.UTC, logger.Nop()),
		habits: habitSvc,
		store:  store,
		clock:  clock,
	}
}

func TestGetHabitStats(t *testing.T) {
	e := newStatsEnv(t)
	ctx := context.Background()

	habit, err := e.habits.CreateHabit(ctx, "u1", habits.NewHabit{Name: "Stretch"})
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := e.habits.CompleteHabit(ctx, "u1", habit.ID, calendar.Date(""), "")
		require.NoError(t, err)
		e.clock.AdvanceDays(1)
	}
	today := e.habits.Today() // day 8, not completed yet

	s, err := e.stats.GetHabitStats(ctx, habit.ID, today)
	require.NoError(t, err)

	assert.Equal(t, streak.StateActive, s.State)
	assert.Equal(t, 7, s.CurrentStreak)
	assert.Equal(t, 1, s.FreezesAvailable)
	assert.Equal(t, 87.5, s.CompletionRate)
	assert.Equal(t, float64(100), s.ProgressToGoal)
	assert.True(t, s.AtRisk)
	assert.False(t, s.CompletedToday)
	assert.True(t, s.CanEarnFreeze, "streak 7 with one freeze banked still satisfies the earn rule")

	_, err = e.habits.CompleteHabit(ctx, "u1", habit.ID, calendar.Date(""), "")
	require.NoError(t, err)

	s, err = e.stats.GetHabitStats(ctx, habit.ID, today)
	require.NoError(t, err)
	assert.False(t, s.AtRisk)
	assert.True(t, s.CompletedToday)
	assert.False(t, s.CanEarnFreeze)

	_, err = e.stats.GetHabitStats(ctx, "missing", today)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestGetUserStats(t *testing.T) {
	e := newStatsEnv(t)
	ctx := context.Background()

	read, err := e.habits.CreateHabit(ctx, "u1", habits.NewHabit{Name: "Read"})
	require.NoError(t, err)
	walk, err := e.habits.CreateHabit(ctx, "u1", habits.NewHabit{Name: "Walk"})
	require.NoError(t, err)
	_, err = e.habits.CreateHabit(ctx, "u2", habits.NewHabit{Name: "Other user"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.habits.CompleteHabit(ctx, "u1", read.ID, calendar.Date(""), "")
		require.NoError(t, err)
		e.clock.AdvanceDays(1)
	}
	_, err = e.habits.CompleteHabit(ctx, "u1", walk.ID, calendar.Date(""), "")
	require.NoError(t, err)
	_, err = e.habits.ArchiveHabit(ctx, "u1", walk.ID)
	require.NoError(t, err)

	us, err := e.stats.GetUserStats(ctx, "u1", e.habits.Today())
	require.NoError(t, err)

	assert.Equal(t, 1, us.ActiveHabits)
	assert.Equal(t, 1, us.ArchivedHabits)
	assert.Equal(t, 4, us.TotalCompletions)
	assert.Equal(t, 3, us.BestStreak)
	assert.Equal(t, 1, us.HabitsAtRisk)
	assert.Equal(t, 1, us.CompletedToday)
	assert.Equal(t, int64(2), us.AchievementsUnlocked) // first_habit, first_completion
	assert.Len(t, us.Habits, 2)
}

func TestGetHistory(t *testing.T) {
	e := newStatsEnv(t)
	ctx := context.Background()

	habit, err := e.habits.CreateHabit(ctx, "u1", habits.NewHabit{Name: "Journal"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := e.habits.CompleteHabit(ctx, "u1", habit.ID, calendar.Date(""), "")
		require.NoError(t, err)
		e.clock.AdvanceDays(1)
	}

	records, err := e.stats.GetHistory(ctx, habit.ID, day1.AddDays(1), day1.AddDays(3))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, day1.AddDays(1), records[0].Date)
	assert.Equal(t, day1.AddDays(3), records[2].Date)

	_, err = e.stats.GetHistory(ctx, habit.ID, day1.AddDays(3), day1)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	_, err = e.stats.GetHistory(ctx, habit.ID, day1, day1.AddDays(MaxHistoryDays))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	_, err = e.stats.GetHistory(ctx, "missing", day1, day1)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
