package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
)

// AchievementRepository handles achievement-related database operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Unlock inserts achievement unless the user already holds that type.
// On conflict achievement is overwritten with the stored record and created is false.
func (r *AchievementRepository) Unlock(ctx context.Context, achievement *models.Achievement) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(achievement)
	if result.Error != nil {
		return false, storeError("achievements.Unlock", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.Get(ctx, achievement.UserID, achievement.Type)
	if err != nil {
		return false, err
	}
	*achievement = *existing
	return false, nil
}

// Get returns the user's achievement of type t.
func (r *AchievementRepository) Get(ctx context.Context, userID string, t models.AchievementType) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).Where("user_id = ? AND type = ?", userID, t).First(&achievement).Error
	if err != nil {
		return nil, storeError("achievements.Get", err)
	}
	return &achievement, nil
}

// ListByUser returns every achievement the user unlocked, oldest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("unlocked_at ASC, id ASC").Find(&achievements).Error
	if err != nil {
		return nil, storeError("achievements.ListByUser", err)
	}
	return achievements, nil
}

// ListUnseen returns the user's achievements not yet marked seen.
func (r *AchievementRepository) ListUnseen(ctx context.Context, userID string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND seen = ?", userID, false).
		Order("unlocked_at ASC, id ASC").
		Find(&achievements).Error
	if err != nil {
		return nil, storeError("achievements.ListUnseen", err)
	}
	return achievements, nil
}

// MarkSeen flags one of the user's achievements as seen. Marking twice is a no-op.
func (r *AchievementRepository) MarkSeen(ctx context.Context, userID, achievementID string) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", achievementID, userID).First(&achievement).Error
	if err != nil {
		mapped := storeError("achievements.MarkSeen", err)
		if errs.KindOf(mapped) == errs.KindNotFound {
			return nil, errs.NotFound("achievements.MarkSeen", "", "achievement %s not found", achievementID)
		}
		return nil, mapped
	}
	if achievement.Seen {
		return &achievement, nil
	}
	if err := r.db.WithContext(ctx).Model(&achievement).Update("seen", true).Error; err != nil {
		return nil, storeError("achievements.MarkSeen", err)
	}
	achievement.Seen = true
	return &achievement, nil
}

// CountByUser counts the user's unlocked achievements.
func (r *AchievementRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Achievement{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, storeError("achievements.CountByUser", err)
	}
	return count, nil
}
