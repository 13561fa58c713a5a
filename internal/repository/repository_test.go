package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/pkg/logger"
)

// setupTestStore creates an in-memory SQLite database for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())},
	}
	db, err := NewDB(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db)
}

func createTestHabit(t *testing.T, s *Store, userID string, streak int) *models.Habit {
	t.Helper()

	habit := &models.Habit{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          "Read",
		StreakGoal:    7,
		FreezeMode:    true,
		CurrentStreak: streak,
		BestStreak:    streak,
	}
	require.NoError(t, s.Habits.Create(context.Background(), habit))
	return habit
}

func completion(habitID string, date calendar.Date, manual bool) *models.CompletionRecord {
	return &models.CompletionRecord{
		HabitID:     habitID,
		Date:        date,
		CompletedAt: time.Now(),
		IsManual:    manual,
		UsedFreeze:  !manual,
		TimeZone:    "UTC",
	}
}

func TestHabitRepository_GetNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Habits.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestHabitRepository_SaveRoundTripsLastCompleted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	habit.LastCompleted = calendar.Date("2024-06-01").Ptr()
	habit.CurrentStreak = 1
	habit.BestStreak = 1
	require.NoError(t, s.Habits.Save(ctx, habit))

	got, err := s.Habits.Get(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.Date("2024-06-01"), got.LastCompletedDate())
	assert.Equal(t, 1, got.CurrentStreak)
}

func TestHabitRepository_ListActiveAfter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	active := []*models.Habit{
		createTestHabit(t, s, "u1", 3),
		createTestHabit(t, s, "u1", 1),
		createTestHabit(t, s, "u2", 9),
	}
	createTestHabit(t, s, "u2", 0)
	archived := createTestHabit(t, s, "u3", 4)
	archived.IsArchived = true
	require.NoError(t, s.Habits.Save(ctx, archived))

	first, err := s.Habits.ListActiveAfter(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := s.Habits.ListActiveAfter(ctx, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	seen := map[string]bool{}
	for _, h := range append(first, rest...) {
		seen[h.ID] = true
	}
	for _, h := range active {
		assert.True(t, seen[h.ID], "habit %s missing from sweep pages", h.ID)
	}
	assert.Less(t, first[0].ID, first[1].ID)
	assert.Less(t, first[1].ID, rest[0].ID)
}

func TestHabitRepository_UserAggregates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := createTestHabit(t, s, "u1", 0)
	a.TotalCompletions = 4
	require.NoError(t, s.Habits.Save(ctx, a))
	b := createTestHabit(t, s, "u1", 0)
	b.TotalCompletions = 6
	b.IsArchived = true
	require.NoError(t, s.Habits.Save(ctx, b))
	createTestHabit(t, s, "u2", 0)

	count, err := s.Habits.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sum, err := s.Habits.SumCompletionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, sum)

	none, err := s.Habits.SumCompletionsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, none)

	live, err := s.Habits.ListByUser(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestCompletionRepository_AppendConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, "2024-06-01", true)))

	err := s.Ledger.Append(ctx, completion(habit.ID, "2024-06-01", false))
	assert.True(t, errors.Is(err, errs.ErrConflict))

	exists, err := s.Ledger.Exists(ctx, habit.ID, "2024-06-01")
	require.NoError(t, err)
	assert.True(t, exists)

	rec, err := s.Ledger.Get(ctx, habit.ID, "2024-06-01")
	require.NoError(t, err)
	assert.True(t, rec.IsManual, "first writer wins")
}

func TestCompletionRepository_ConcurrentAppendSingleWinner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Ledger.Append(ctx, completion(habit.ID, "2024-06-01", true))
		}()
	}
	wg.Wait()
	close(results)

	ok, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)

	count, err := s.Ledger.CountByHabit(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCompletionRepository_LatestAndRange(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	latest, err := s.Ledger.Latest(ctx, habit.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, d := range []calendar.Date{"2024-06-03", "2024-06-01", "2024-06-02"} {
		require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, d, true)))
	}

	latest, err = s.Ledger.Latest(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.Date("2024-06-03"), latest.Date)

	all, err := s.Ledger.ListByHabit(ctx, habit.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, calendar.Date("2024-06-01"), all[0].Date)

	window, err := s.Ledger.ListRange(ctx, habit.ID, "2024-06-02", "2024-06-30")
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestCompletionRepository_ManualRunEndingAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	// 06-01..06-03 manual, 06-04 frozen, 06-05..06-07 manual
	for _, d := range []calendar.Date{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-05", "2024-06-06", "2024-06-07"} {
		require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, d, true)))
	}
	require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, "2024-06-04", false)))

	run, err := s.Ledger.ManualRunEndingAt(ctx, habit.ID, "2024-06-07", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, run)

	run, err = s.Ledger.ManualRunEndingAt(ctx, habit.ID, "2024-06-03", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, run)

	run, err = s.Ledger.ManualRunEndingAt(ctx, habit.ID, "2024-06-03", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, run)

	run, err = s.Ledger.ManualRunEndingAt(ctx, habit.ID, "2024-06-10", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, run)
}

func TestCompletionRepository_ManualRunPastThirtyDays(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	start := calendar.MustParse("2024-07-01")
	for i := 0; i < 31; i++ {
		require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, start.AddDays(i), true)))
	}

	run, err := s.Ledger.ManualRunEndingAt(ctx, habit.ID, start.AddDays(29), 31)
	require.NoError(t, err)
	assert.Equal(t, 30, run)

	run, err = s.Ledger.ManualRunEndingAt(ctx, habit.ID, start.AddDays(30), 31)
	require.NoError(t, err)
	assert.Equal(t, 31, run, "day 31 is past the perfect month")
}

func TestCompletionRepository_UpdateNote(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)
	require.NoError(t, s.Ledger.Append(ctx, completion(habit.ID, "2024-06-01", true)))

	rec, err := s.Ledger.UpdateNote(ctx, habit.ID, "2024-06-01", "felt great")
	require.NoError(t, err)
	assert.Equal(t, "felt great", rec.Note)

	_, err = s.Ledger.UpdateNote(ctx, habit.ID, "2024-06-02", "nope")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestAchievementRepository_UnlockIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := &models.Achievement{ID: uuid.NewString(), UserID: "u1", Type: models.AchievementStreak7, UnlockedAt: time.Now()}
	created, err := s.Achievements.Unlock(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.Achievement{ID: uuid.NewString(), UserID: "u1", Type: models.AchievementStreak7, UnlockedAt: time.Now()}
	created, err = s.Achievements.Unlock(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID, "conflict returns the stored record")

	count, err := s.Achievements.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAchievementRepository_SeenLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := &models.Achievement{ID: uuid.NewString(), UserID: "u1", Type: models.AchievementFirstHabit, UnlockedAt: time.Now()}
	_, err := s.Achievements.Unlock(ctx, a)
	require.NoError(t, err)

	unseen, err := s.Achievements.ListUnseen(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unseen, 1)

	_, err = s.Achievements.MarkSeen(ctx, "someone-else", a.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	marked, err := s.Achievements.MarkSeen(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.True(t, marked.Seen)

	_, err = s.Achievements.MarkSeen(ctx, "u1", a.ID)
	require.NoError(t, err)

	unseen, err = s.Achievements.ListUnseen(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unseen)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	habit := createTestHabit(t, s, "u1", 0)

	boom := errs.InvalidInput("test", "abort")
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.Ledger.Append(ctx, completion(habit.ID, "2024-06-01", true)); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	exists, err := s.Ledger.Exists(ctx, habit.ID, "2024-06-01")
	require.NoError(t, err)
	assert.False(t, exists)
}
