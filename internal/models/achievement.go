package models

import (
	"time"
)

// AchievementType identifies a milestone in the fixed catalog.
type AchievementType string

// Achievement catalog.
const (
	AchievementFirstHabit        AchievementType = "first_habit"
	AchievementFirstCompletion   AchievementType = "first_completion"
	AchievementStreak7           AchievementType = "streak_7"
	AchievementStreak14          AchievementType = "streak_14"
	AchievementStreak30          AchievementType = "streak_30"
	AchievementStreak50          AchievementType = "streak_50"
	AchievementStreak100         AchievementType = "streak_100"
	AchievementPerfectWeek       AchievementType = "perfect_week"
	AchievementPerfectMonth      AchievementType = "perfect_month"
	AchievementCompletions100    AchievementType = "completions_100"
	AchievementCompletions500    AchievementType = "completions_500"
	AchievementCompletions1000   AchievementType = "completions_1000"
	AchievementEarnedFirstFreeze AchievementType = "earned_first_freeze"
	AchievementFreezeSaver       AchievementType = "freeze_saver"
	AchievementPremiumMember     AchievementType = "premium_member"
)

// AllAchievementTypes lists the catalog in display order.
var AllAchievementTypes = []AchievementType{
	AchievementFirstHabit,
	AchievementFirstCompletion,
	AchievementStreak7,
	AchievementStreak14,
	AchievementStreak30,
	AchievementStreak50,
	AchievementStreak100,
	AchievementPerfectWeek,
	AchievementPerfectMonth,
	AchievementCompletions100,
	AchievementCompletions500,
	AchievementCompletions1000,
	AchievementEarnedFirstFreeze,
	AchievementFreezeSaver,
	AchievementPremiumMember,
}

// Valid reports whether t is part of the catalog.
func (t AchievementType) Valid() bool {
	for _, known := range AllAchievementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Achievement is a milestone unlocked by a user, at most once per type.
type Achievement struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	UserID     string          `gorm:"not null;size:128;uniqueIndex:idx_achievements_user_type,priority:1" json:"user_id"`
	Type       AchievementType `gorm:"not null;size:32;uniqueIndex:idx_achievements_user_type,priority:2" json:"type"`
	HabitID    *string         `gorm:"size:36" json:"habit_id,omitempty"`
	UnlockedAt time.Time       `gorm:"not null" json:"unlocked_at"`
	Seen       bool            `gorm:"not null;index" json:"seen"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}
