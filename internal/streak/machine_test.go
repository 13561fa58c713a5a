package streak

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
)

const day1 = calendar.Date("2024-06-01")

func newHabit() *models.Habit {
	return &models.Habit{ID: "h1", UserID: "u1", FreezeMode: true, StreakGoal: 7}
}

func activeHabit(streak, freezes int, last calendar.Date) *models.Habit {
	h := newHabit()
	h.CurrentStreak = streak
	h.BestStreak = streak
	h.TotalCompletions = streak
	h.FreezesAvailable = freezes
	h.LastCompleted = last.Ptr()
	return h
}

func TestTryEarn(t *testing.T) {
	tests := []struct {
		name       string
		streak     int
		balance    int
		freezeMode bool
		want       bool
	}{
		{"multiple of seven", 7, 0, true, true},
		{"second multiple", 14, 1, true, true},
		{"balance capped", 21, 2, true, false},
		{"not a multiple", 8, 0, true, false},
		{"zero streak", 0, 0, true, false},
		{"freeze mode off", 7, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHabit()
			h.CurrentStreak = tt.streak
			h.FreezesAvailable = tt.balance
			h.FreezeMode = tt.freezeMode

			assert.Equal(t, tt.want, TryEarn(h))
			if tt.want {
				assert.Equal(t, tt.balance+1, h.FreezesAvailable)
			} else {
				assert.Equal(t, tt.balance, h.FreezesAvailable)
			}
			assert.LessOrEqual(t, h.FreezesAvailable, MaxFreezes)
		})
	}
}

func TestTryConsume(t *testing.T) {
	h := newHabit()
	assert.False(t, TryConsume(h))
	assert.Equal(t, 0, h.FreezesAvailable)

	h.FreezesAvailable = 1
	assert.True(t, TryConsume(h))
	assert.Equal(t, 0, h.FreezesAvailable)
}

// Scenario A: seven consecutive completions earn one freeze.
func TestApplyCompletion_SevenDaysEarnFreeze(t *testing.T) {
	h := newHabit()

	var earnedOn []int
	for i := 0; i < 7; i++ {
		outcome, earned := ApplyCompletion(h, day1.AddDays(i))
		if i == 0 {
			assert.Equal(t, OutcomeStarted, outcome)
		} else {
			assert.Equal(t, OutcomeExtended, outcome)
		}
		if earned {
			earnedOn = append(earnedOn, i+1)
		}
	}

	assert.Equal(t, 7, h.CurrentStreak)
	assert.Equal(t, 7, h.BestStreak)
	assert.Equal(t, 7, h.TotalCompletions)
	assert.Equal(t, 1, h.FreezesAvailable)
	assert.Equal(t, []int{7}, earnedOn)
	assert.Equal(t, StateActive, StateOf(h))
}

func TestApplyCompletion_SameDayIsUnchanged(t *testing.T) {
	h := activeHabit(3, 0, day1)

	outcome, earned := ApplyCompletion(h, day1)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.False(t, earned)
	assert.Equal(t, 3, h.CurrentStreak)
	assert.Equal(t, 3, h.TotalCompletions)
}

func TestApplyCompletion_AfterBreakStartsAtOne(t *testing.T) {
	h := activeHabit(0, 0, day1)
	h.BestStreak = 12

	outcome, _ := ApplyCompletion(h, day1.AddDays(3))
	assert.Equal(t, OutcomeStarted, outcome)
	assert.Equal(t, 1, h.CurrentStreak)
	assert.Equal(t, 12, h.BestStreak)
}

// Scenario B: a missed day with a freeze is covered and the streak preserved.
func TestApplyMissedDay_ConsumesFreeze(t *testing.T) {
	h := activeHabit(5, 1, day1.AddDays(4))

	day := ApplyMissedDay(h)

	assert.Equal(t, OutcomeFrozen, day.Outcome)
	assert.Equal(t, day1.AddDays(5), day.Date)
	assert.Equal(t, 0, h.FreezesAvailable)
	assert.Equal(t, 5, h.CurrentStreak)
	assert.Equal(t, 1, h.TotalFreezesUsed)
	assert.Equal(t, day1.AddDays(5), h.LastCompletedDate())
	assert.Equal(t, StateActive, StateOf(h))
}

// Scenario C: without a freeze the streak breaks and no day is covered.
func TestApplyMissedDay_BreaksWithoutFreeze(t *testing.T) {
	h := activeHabit(5, 0, day1.AddDays(4))
	h.BestStreak = 9

	day := ApplyMissedDay(h)

	assert.Equal(t, OutcomeReset, day.Outcome)
	assert.Equal(t, 0, h.CurrentStreak)
	assert.Equal(t, 9, h.BestStreak)
	assert.Equal(t, day1.AddDays(4), h.LastCompletedDate(), "absence is not recorded")
	assert.Equal(t, StateBroken, StateOf(h))
}

func TestApplyMissedDay_FreezeModeOffAlwaysBreaks(t *testing.T) {
	h := activeHabit(5, 2, day1)
	h.FreezeMode = false

	day := ApplyMissedDay(h)

	assert.Equal(t, OutcomeReset, day.Outcome)
	assert.Equal(t, 2, h.FreezesAvailable)
}

func TestReconcile_CatchUp(t *testing.T) {
	tests := []struct {
		name        string
		freezes     int
		gapDays     int
		wantDays    []Outcome
		wantStreak  int
		wantFreezes int
	}{
		{"no gap", 2, 0, nil, 4, 2},
		{"one day one freeze", 1, 1, []Outcome{OutcomeFrozen}, 4, 0},
		{"two days two freezes", 2, 2, []Outcome{OutcomeFrozen, OutcomeFrozen}, 4, 0},
		{"three days two freezes", 2, 3, []Outcome{OutcomeFrozen, OutcomeFrozen, OutcomeReset}, 0, 0},
		{"two days no freeze", 0, 2, []Outcome{OutcomeReset}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := activeHabit(4, tt.freezes, day1)
			through := day1.AddDays(tt.gapDays)

			days := Reconcile(h, through)

			var outcomes []Outcome
			for i, d := range days {
				outcomes = append(outcomes, d.Outcome)
				assert.Equal(t, day1.AddDays(i+1), d.Date)
			}
			assert.Equal(t, tt.wantDays, outcomes)
			assert.Equal(t, tt.wantStreak, h.CurrentStreak)
			assert.Equal(t, tt.wantFreezes, h.FreezesAvailable)
			assert.False(t, HasPendingGap(h, through))
		})
	}
}

func TestReconcile_BrokenHabitIsLeftAlone(t *testing.T) {
	h := activeHabit(0, 2, day1)
	assert.Empty(t, Reconcile(h, day1.AddDays(10)))
	assert.Equal(t, 2, h.FreezesAvailable)
}

func TestValidateCompletionDate(t *testing.T) {
	today := calendar.Date("2024-06-10")

	tests := []struct {
		name    string
		habit   *models.Habit
		date    calendar.Date
		grace   int
		wantErr bool
	}{
		{"today on new habit", newHabit(), today, 1, false},
		{"yesterday within grace", newHabit(), today.AddDays(-1), 1, false},
		{"two days back outside grace", newHabit(), today.AddDays(-2), 1, true},
		{"two days back with wider grace", newHabit(), today.AddDays(-2), 3, false},
		{"future", newHabit(), today.AddDays(1), 1, true},
		{"before last completed", activeHabit(3, 0, today), today.AddDays(-1), 1, true},
		{"day after break", activeHabit(0, 0, today.AddDays(-2)), today.AddDays(-1), 1, true},
		{"two days after break", activeHabit(0, 0, today.AddDays(-2)), today, 1, false},
		{"gap on active habit", activeHabit(3, 0, today.AddDays(-3)), today, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCompletionDate(tt.habit, tt.date, today, tt.grace)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrInvalidDate))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAtRisk(t *testing.T) {
	today := calendar.Date("2024-06-10")

	assert.True(t, AtRisk(activeHabit(3, 0, today.AddDays(-1)), today))
	assert.False(t, AtRisk(activeHabit(3, 0, today), today))
	assert.False(t, AtRisk(activeHabit(0, 0, today.AddDays(-1)), today))

	archived := activeHabit(3, 0, today.AddDays(-1))
	archived.IsArchived = true
	assert.False(t, AtRisk(archived, today))
}

// simulate drives a habit through random days the way the engine does: the
// sweep reconciles yesterday first, then the user may complete today.
func simulate(t *testing.T, seed int64, days int) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	h := newHabit()
	var ledger []models.CompletionRecord

	for i := 0; i < days; i++ {
		today := day1.AddDays(i)

		if rng.Intn(10) == 0 {
			h.FreezeMode = !h.FreezeMode
		}

		for _, d := range Reconcile(h, today.AddDays(-1)) {
			if d.Outcome == OutcomeFrozen {
				ledger = append(ledger, models.CompletionRecord{Date: d.Date, UsedFreeze: true})
			}
		}

		if rng.Intn(10) < 7 {
			require.NoError(t, ValidateCompletionDate(h, today, today, 1))
			ApplyCompletion(h, today)
			ledger = append(ledger, models.CompletionRecord{Date: today, IsManual: true})
		}

		require.GreaterOrEqual(t, h.FreezesAvailable, 0)
		require.LessOrEqual(t, h.FreezesAvailable, MaxFreezes)
		require.GreaterOrEqual(t, h.BestStreak, h.CurrentStreak)

		replayed := Replay(ledger, today.AddDays(-1))
		require.Empty(t, replayed.Diff(CountersOf(h)), "seed %d day %s", seed, today)
	}
}

func TestReplay_ReproducesLiveCounters(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		simulate(t, seed, 120)
	}
}

func TestReplay_TrailingGapBreaks(t *testing.T) {
	ledger := []models.CompletionRecord{
		{Date: day1, IsManual: true},
		{Date: day1.AddDays(1), IsManual: true},
	}

	assert.Equal(t, 2, Replay(ledger, day1.AddDays(1)).CurrentStreak)
	assert.Equal(t, 0, Replay(ledger, day1.AddDays(2)).CurrentStreak)
	assert.Equal(t, 2, Replay(ledger, day1.AddDays(2)).BestStreak)
}

func TestReplay_FreezeDaysPreserveButDoNotExtend(t *testing.T) {
	ledger := []models.CompletionRecord{
		{Date: day1.AddDays(2), IsManual: true},
		{Date: day1, IsManual: true},
		{Date: day1.AddDays(1), UsedFreeze: true},
	}

	c := Replay(ledger, day1.AddDays(2))
	assert.Equal(t, 2, c.CurrentStreak)
	assert.Equal(t, 2, c.TotalCompletions)
	assert.Equal(t, 1, c.TotalFreezesUsed)
	assert.Equal(t, day1.AddDays(2), c.LastCompleted)
}
