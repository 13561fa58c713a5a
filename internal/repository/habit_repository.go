package repository

import (
	"context"

	"github.com/aimd54/streakd/internal/models"
)

// HabitRepository handles habit-related database operations.
type HabitRepository struct {
	db *DB
}

// NewHabitRepository creates a new habit repository.
func NewHabitRepository(db *DB) *HabitRepository {
	return &HabitRepository{db: db}
}

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, habit *models.Habit) error {
	return storeError("habits.Create", r.db.WithContext(ctx).Create(habit).Error)
}

// Get retrieves a habit by its ID.
func (r *HabitRepository) Get(ctx context.Context, id string) (*models.Habit, error) {
	var habit models.Habit
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&habit).Error; err != nil {
		return nil, storeError("habits.Get", err)
	}
	return &habit, nil
}

// Save writes every column of habit.
func (r *HabitRepository) Save(ctx context.Context, habit *models.Habit) error {
	return storeError("habits.Save", r.db.WithContext(ctx).Save(habit).Error)
}

// ListActiveAfter returns up to limit non-archived habits with a running streak
// and an id greater than cursor, ordered by id.
func (r *HabitRepository) ListActiveAfter(ctx context.Context, cursor string, limit int) ([]models.Habit, error) {
	var habits []models.Habit
	err := r.db.WithContext(ctx).
		Where("is_archived = ? AND current_streak > 0 AND id > ?", false, cursor).
		Order("id ASC").
		Limit(limit).
		Find(&habits).Error
	if err != nil {
		return nil, storeError("habits.ListActiveAfter", err)
	}
	return habits, nil
}

// ListByUser returns the user's habits, oldest first.
func (r *HabitRepository) ListByUser(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error) {
	var habits []models.Habit
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}
	if err := query.Order("created_at ASC, id ASC").Find(&habits).Error; err != nil {
		return nil, storeError("habits.ListByUser", err)
	}
	return habits, nil
}

// CountByUser counts every habit the user ever created, archived included.
func (r *HabitRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Habit{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, storeError("habits.CountByUser", err)
	}
	return count, nil
}

// SumCompletionsByUser sums total_completions across the user's habits.
func (r *HabitRepository) SumCompletionsByUser(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.Habit{}).
		Select("COALESCE(SUM(total_completions), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, storeError("habits.SumCompletionsByUser", err)
	}
	return total, nil
}
