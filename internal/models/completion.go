package models

import (
	"time"

	"github.com/aimd54/streakd/internal/calendar"
)

// CompletionRecord is one ledger entry for a habit and calendar day.
// Only Note may change after insert.
type CompletionRecord struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	HabitID     string        `gorm:"not null;size:36;uniqueIndex:idx_completions_habit_date,priority:1" json:"habit_id"`
	Date        calendar.Date `gorm:"not null;type:varchar(10);uniqueIndex:idx_completions_habit_date,priority:2" json:"date"`
	CompletedAt time.Time     `gorm:"not null" json:"completed_at"`
	UsedFreeze  bool          `gorm:"not null" json:"used_freeze"`
	IsManual    bool          `gorm:"not null" json:"is_manual"`
	Note        string        `gorm:"size:500" json:"note,omitempty"`
	TimeZone    string        `gorm:"not null;size:64" json:"time_zone"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName specifies the table name for CompletionRecord model.
func (CompletionRecord) TableName() string {
	return "completions"
}
