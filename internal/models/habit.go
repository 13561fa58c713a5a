// Package models defines the persisted domain models of the streak engine.
package models

import (
	"time"

	"github.com/aimd54/streakd/internal/calendar"
)

// Habit defaults.
const (
	DefaultHabitIcon  = "🎯"
	DefaultHabitColor = "#f97316"
	DefaultStreakGoal = 7

	MaxHabitNameLength = 50
	MaxNoteLength      = 500
)

// Habit is a daily commitment owned by one user. Its counters are a cache of the
// completion ledger and can be rebuilt from it.
type Habit struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	UserID           string         `gorm:"not null;index;size:128" json:"user_id"`
	Name             string         `gorm:"not null;size:50" json:"name"`
	Icon             string         `gorm:"size:16" json:"icon"`
	Color            string         `gorm:"size:7" json:"color"`
	StreakGoal       int            `gorm:"not null" json:"streak_goal"`
	FreezeMode       bool           `gorm:"not null" json:"freeze_mode"`
	FreezesAvailable int            `gorm:"not null" json:"freezes_available"`
	CurrentStreak    int            `gorm:"not null;index" json:"current_streak"`
	BestStreak       int            `gorm:"not null" json:"best_streak"`
	TotalCompletions int            `gorm:"not null" json:"total_completions"`
	TotalFreezesUsed int            `gorm:"not null" json:"total_freezes_used"`
	IsArchived       bool           `gorm:"not null;index" json:"is_archived"`
	ArchivedAt       *time.Time     `json:"archived_at,omitempty"`
	LastCompleted    *calendar.Date `gorm:"column:last_completed_date;type:varchar(10)" json:"last_completed_date,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Habit model.
func (Habit) TableName() string {
	return "habits"
}

// LastCompletedDate returns the last covered day, or the zero date.
func (h *Habit) LastCompletedDate() calendar.Date {
	return calendar.Deref(h.LastCompleted)
}

// CreatedDate returns the calendar day the habit was created in loc.
func (h *Habit) CreatedDate(loc *time.Location) calendar.Date {
	return calendar.FromTime(h.CreatedAt, loc)
}
