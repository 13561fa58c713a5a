package achievements

import (
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/streak"
)

// Event is what triggered an evaluation.
type Event string

const (
	EventHabitCreated     Event = "habit_created"
	EventCompletion       Event = "completion"
	EventFreezeConsumed   Event = "freeze_consumed"
	EventPremiumActivated Event = "premium_activated"
)

// Input is everything a predicate may look at. Evaluation does no I/O.
type Input struct {
	Event  Event
	Before streak.Snapshot
	After  streak.Snapshot

	// Sum of total_completions across the user's habits.
	UserCompletionsBefore int
	UserCompletionsAfter  int
	// Habits the user ever created, this one included.
	UserHabitCount int64
	// Consecutive manual days ending at the completed day.
	ManualRun int
}

type predicate func(in Input) bool

func streakReached(n int) predicate {
	return func(in Input) bool {
		return in.After.CurrentStreak == n && in.Before.CurrentStreak != n
	}
}

// completionsReached holds on every completion at or past n. The user-wide
// total is read under a per-habit lock only, so concurrent completions on two
// habits may both miss the exact crossing; Unlock absorbs the repeats.
func completionsReached(n int) predicate {
	return func(in Input) bool {
		return in.Event == EventCompletion && in.UserCompletionsAfter >= n
	}
}

func manualRunReached(n int) predicate {
	return func(in Input) bool {
		return in.Event == EventCompletion && in.ManualRun == n
	}
}

// predicates has exactly one entry per catalog type.
var predicates = map[models.AchievementType]predicate{
	models.AchievementFirstHabit: func(in Input) bool {
		return in.Event == EventHabitCreated && in.UserHabitCount == 1
	},
	models.AchievementFirstCompletion: func(in Input) bool {
		return in.Event == EventCompletion && in.UserCompletionsBefore == 0 && in.UserCompletionsAfter >= 1
	},
	models.AchievementStreak7:         streakReached(7),
	models.AchievementStreak14:        streakReached(14),
	models.AchievementStreak30:        streakReached(30),
	models.AchievementStreak50:        streakReached(50),
	models.AchievementStreak100:       streakReached(100),
	models.AchievementPerfectWeek:     manualRunReached(7),
	models.AchievementPerfectMonth:    manualRunReached(30),
	models.AchievementCompletions100:  completionsReached(100),
	models.AchievementCompletions500:  completionsReached(500),
	models.AchievementCompletions1000: completionsReached(1000),
	models.AchievementEarnedFirstFreeze: func(in Input) bool {
		return in.Event == EventCompletion && in.After.FreezesAvailable > in.Before.FreezesAvailable
	},
	models.AchievementFreezeSaver: func(in Input) bool {
		return in.Event == EventFreezeConsumed
	},
	models.AchievementPremiumMember: func(in Input) bool {
		return in.Event == EventPremiumActivated
	},
}

// Evaluate returns the achievement types whose predicate holds, in catalog order.
func Evaluate(in Input) []models.AchievementType {
	var out []models.AchievementType
	for _, t := range models.AllAchievementTypes {
		if predicates[t](in) {
			out = append(out, t)
		}
	}
	return out
}
