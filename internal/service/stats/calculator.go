package stats

import (
	"math"

	"github.com/aimd54/streakd/internal/calendar"
)

// CompletionRate returns manual completions per day since creation as a
// percentage capped at 100. The creation day counts as a day.
func CompletionRate(totalCompletions int, created, today calendar.Date) float64 {
	days := today.DaysSince(created) + 1
	if days <= 0 {
		return 0
	}
	return round2(math.Min(100, float64(totalCompletions)/float64(days)*100))
}

// ProgressToGoal returns the current streak as a percentage of the goal,
// capped at 100. A zero goal counts as reached.
func ProgressToGoal(currentStreak, goal int) float64 {
	if goal <= 0 {
		return 100
	}
	return round2(math.Min(100, float64(currentStreak)/float64(goal)*100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
