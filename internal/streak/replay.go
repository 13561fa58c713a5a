package streak

import (
	"fmt"
	"sort"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/models"
)

// Counters are the habit fields that must be derivable from the ledger alone.
type Counters struct {
	CurrentStreak    int           `json:"current_streak"`
	BestStreak       int           `json:"best_streak"`
	TotalCompletions int           `json:"total_completions"`
	TotalFreezesUsed int           `json:"total_freezes_used"`
	LastCompleted    calendar.Date `json:"last_completed_date,omitempty"`
}

// CountersOf extracts the cached counters of h.
func CountersOf(h *models.Habit) Counters {
	return Counters{
		CurrentStreak:    h.CurrentStreak,
		BestStreak:       h.BestStreak,
		TotalCompletions: h.TotalCompletions,
		TotalFreezesUsed: h.TotalFreezesUsed,
		LastCompleted:    h.LastCompletedDate(),
	}
}

// Apply overwrites the counters of h.
func (c Counters) Apply(h *models.Habit) {
	h.CurrentStreak = c.CurrentStreak
	h.BestStreak = c.BestStreak
	h.TotalCompletions = c.TotalCompletions
	h.TotalFreezesUsed = c.TotalFreezesUsed
	h.LastCompleted = c.LastCompleted.Ptr()
}

// Diff lists the fields that differ between c and other, formatted for logs.
func (c Counters) Diff(other Counters) []string {
	var diffs []string
	if c.CurrentStreak != other.CurrentStreak {
		diffs = append(diffs, fmt.Sprintf("current_streak: %d != %d", c.CurrentStreak, other.CurrentStreak))
	}
	if c.BestStreak != other.BestStreak {
		diffs = append(diffs, fmt.Sprintf("best_streak: %d != %d", c.BestStreak, other.BestStreak))
	}
	if c.TotalCompletions != other.TotalCompletions {
		diffs = append(diffs, fmt.Sprintf("total_completions: %d != %d", c.TotalCompletions, other.TotalCompletions))
	}
	if c.TotalFreezesUsed != other.TotalFreezesUsed {
		diffs = append(diffs, fmt.Sprintf("total_freezes_used: %d != %d", c.TotalFreezesUsed, other.TotalFreezesUsed))
	}
	if c.LastCompleted != other.LastCompleted {
		diffs = append(diffs, fmt.Sprintf("last_completed_date: %q != %q", c.LastCompleted, other.LastCompleted))
	}
	return diffs
}

// Replay folds ledger records through the same transitions as live traffic,
// starting from an empty habit. Any day up to reconciledThrough that has no
// record counts as a break, as the daily sweep would have decided.
func Replay(records []models.CompletionRecord, reconciledThrough calendar.Date) Counters {
	sorted := make([]models.CompletionRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	var c Counters
	for _, rec := range sorted {
		if c.CurrentStreak > 0 && rec.Date.After(c.LastCompleted.AddDays(1)) {
			c.CurrentStreak = 0
		}

		if rec.UsedFreeze {
			c.TotalFreezesUsed++
			c.LastCompleted = rec.Date
			continue
		}

		if c.CurrentStreak > 0 && rec.Date == c.LastCompleted.AddDays(1) {
			c.CurrentStreak++
		} else {
			c.CurrentStreak = 1
		}
		if c.CurrentStreak > c.BestStreak {
			c.BestStreak = c.CurrentStreak
		}
		if rec.IsManual {
			c.TotalCompletions++
		}
		c.LastCompleted = rec.Date
	}

	if c.CurrentStreak > 0 && !reconciledThrough.IsZero() && c.LastCompleted.Before(reconciledThrough) {
		c.CurrentStreak = 0
	}
	return c
}
