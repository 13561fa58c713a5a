package streak

import "github.com/aimd54/streakd/internal/models"

const (
	// MaxFreezes caps a habit's freeze balance.
	MaxFreezes = 2
	// FreezeEarnInterval is the streak length, and its multiples, at which a freeze is earned.
	FreezeEarnInterval = 7
)

// CanEarn reports whether h currently satisfies the earn rule.
func CanEarn(h *models.Habit) bool {
	return h.FreezeMode &&
		h.FreezesAvailable < MaxFreezes &&
		h.CurrentStreak > 0 &&
		h.CurrentStreak%FreezeEarnInterval == 0
}

// TryEarn adds one freeze if the earn rule holds.
func TryEarn(h *models.Habit) bool {
	if !CanEarn(h) {
		return false
	}
	h.FreezesAvailable++
	return true
}

// TryConsume spends one freeze if any is available. A false return means the
// streak must break.
func TryConsume(h *models.Habit) bool {
	if h.FreezesAvailable <= 0 {
		return false
	}
	h.FreezesAvailable--
	return true
}
