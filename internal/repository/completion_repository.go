package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
)

// CompletionRepository is the append-only completion ledger.
type CompletionRepository struct {
	db *DB
}

// NewCompletionRepository creates a new ledger repository.
func NewCompletionRepository(db *DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Append inserts rec. The (habit_id, date) unique index decides races: if a record
// already exists the insert is skipped and a conflict error is returned.
func (r *CompletionRepository) Append(ctx context.Context, rec *models.CompletionRecord) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return storeError("ledger.Append", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.Conflict("ledger.Append", rec.HabitID, "record exists for %s", rec.Date)
	}
	return nil
}

// Exists reports whether any record exists for the habit on date.
func (r *CompletionRepository) Exists(ctx context.Context, habitID string, date calendar.Date) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CompletionRecord{}).
		Where("habit_id = ? AND date = ?", habitID, date).
		Count(&count).Error
	if err != nil {
		return false, storeError("ledger.Exists", err)
	}
	return count > 0, nil
}

// Get returns the record for the habit on date.
func (r *CompletionRepository) Get(ctx context.Context, habitID string, date calendar.Date) (*models.CompletionRecord, error) {
	var rec models.CompletionRecord
	err := r.db.WithContext(ctx).Where("habit_id = ? AND date = ?", habitID, date).First(&rec).Error
	if err != nil {
		return nil, storeError("ledger.Get", err)
	}
	return &rec, nil
}

// Latest returns the most recent record for the habit, or nil if the ledger is empty.
func (r *CompletionRepository) Latest(ctx context.Context, habitID string) (*models.CompletionRecord, error) {
	var rec models.CompletionRecord
	err := r.db.WithContext(ctx).Where("habit_id = ?", habitID).Order("date DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("ledger.Latest", err)
	}
	return &rec, nil
}

// ListByHabit returns every record of the habit in date order.
func (r *CompletionRepository) ListByHabit(ctx context.Context, habitID string) ([]models.CompletionRecord, error) {
	var records []models.CompletionRecord
	err := r.db.WithContext(ctx).Where("habit_id = ?", habitID).Order("date ASC").Find(&records).Error
	if err != nil {
		return nil, storeError("ledger.ListByHabit", err)
	}
	return records, nil
}

// ListRange returns the habit's records with from <= date <= to, in date order.
func (r *CompletionRepository) ListRange(ctx context.Context, habitID string, from, to calendar.Date) ([]models.CompletionRecord, error) {
	var records []models.CompletionRecord
	err := r.db.WithContext(ctx).
		Where("habit_id = ? AND date >= ? AND date <= ?", habitID, from, to).
		Order("date ASC").
		Find(&records).Error
	if err != nil {
		return nil, storeError("ledger.ListRange", err)
	}
	return records, nil
}

// ManualRunEndingAt counts consecutive days ending at date that each carry a manual
// record, looking back at most limit days. Freeze records end the run.
func (r *CompletionRepository) ManualRunEndingAt(ctx context.Context, habitID string, date calendar.Date, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	records, err := r.ListRange(ctx, habitID, date.AddDays(-(limit - 1)), date)
	if err != nil {
		return 0, err
	}

	run := 0
	want := date
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Date != want || !rec.IsManual {
			break
		}
		run++
		want = want.AddDays(-1)
	}
	return run, nil
}

// UpdateNote replaces the note of an existing record.
func (r *CompletionRepository) UpdateNote(ctx context.Context, habitID string, date calendar.Date, note string) (*models.CompletionRecord, error) {
	rec, err := r.Get(ctx, habitID, date)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(rec).Update("note", note).Error; err != nil {
		return nil, storeError("ledger.UpdateNote", err)
	}
	rec.Note = note
	return rec, nil
}

// CountByHabit returns the number of records, freeze records included.
func (r *CompletionRepository) CountByHabit(ctx context.Context, habitID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CompletionRecord{}).Where("habit_id = ?", habitID).Count(&count).Error
	if err != nil {
		return 0, storeError("ledger.CountByHabit", err)
	}
	return count, nil
}
