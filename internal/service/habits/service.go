// Package habits drives the streak state machine against the store: every
// mutation of a habit runs under its lock and inside one transaction.
package habits

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/lock"
	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/retry"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/pkg/logger"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Options tune the engine behaviour of the service.
type Options struct {
	Location    *time.Location
	GraceDays   int
	LockWait    time.Duration
	RetryPolicy retry.Policy
	Clock       calendar.Clock
}

// OptionsFromConfig builds Options from the engine section.
func OptionsFromConfig(cfg *config.EngineConfig) (Options, error) {
	loc, err := cfg.GetLocation()
	if err != nil {
		return Options{}, fmt.Errorf("invalid engine timezone: %w", err)
	}
	return Options{
		Location:    loc,
		GraceDays:   cfg.BackfillGraceDays,
		LockWait:    cfg.Lock.WaitTimeout(),
		RetryPolicy: retry.FromConfig(cfg.Retry),
		Clock:       calendar.SystemClock{},
	}, nil
}

// Service owns every write path of habits and their ledger.
type Service struct {
	store        *repository.Store
	locker       lock.Locker
	achievements *achievements.Service
	opts         Options
	log          *logger.Logger
}

// NewService creates a new habit service.
func NewService(store *repository.Store, locker lock.Locker, ach *achievements.Service, opts Options, log *logger.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = calendar.SystemClock{}
	}
	if opts.RetryPolicy.MaxAttempts < 1 {
		opts.RetryPolicy = retry.NoRetry
	}
	return &Service{
		store:        store,
		locker:       locker,
		achievements: ach,
		opts:         opts,
		log:          log,
	}
}

// Today returns the current calendar day in the engine time zone.
func (s *Service) Today() calendar.Date {
	return calendar.Today(s.opts.Clock, s.opts.Location)
}

// Location returns the engine time zone.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// NewHabit holds the fields a caller may set on creation. Nil pointers take
// the defaults.
type NewHabit struct {
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	Color      string `json:"color"`
	StreakGoal *int   `json:"streak_goal"`
	FreezeMode *bool  `json:"freeze_mode"`
}

// CreateHabit validates and stores a new habit and evaluates first_habit.
func (s *Service) CreateHabit(ctx context.Context, userID string, in NewHabit) (*models.Habit, error) {
	const op = "habits.CreateHabit"

	habit, err := s.buildHabit(userID, in)
	if err != nil {
		return nil, err
	}

	var created []models.Achievement
	err = s.withRetry(ctx, "create_habit", func() error {
		created = nil
		return s.store.Transaction(ctx, func(tx *repository.Store) error {
			if err := tx.Habits.Create(ctx, habit); err != nil {
				return err
			}
			count, err := tx.Habits.CountByUser(ctx, userID)
			if err != nil {
				return err
			}
			in := achievements.Input{Event: achievements.EventHabitCreated, UserHabitCount: count}
			created, err = s.achievements.Persist(ctx, tx.Achievements, userID, habit.ID, s.achievements.Candidates(userID, in))
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.achievements.Committed(created)

	s.log.Info().
		Str("user_id", userID).
		Str("habit_id", habit.ID).
		Str("name", habit.Name).
		Msg("Habit created")

	return habit, nil
}

func (s *Service) buildHabit(userID string, in NewHabit) (*models.Habit, error) {
	const op = "habits.CreateHabit"

	if strings.TrimSpace(userID) == "" {
		return nil, errs.InvalidInput(op, "user id is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.InvalidInput(op, "name is required")
	}
	if utf8.RuneCountInString(name) > models.MaxHabitNameLength {
		return nil, errs.InvalidInput(op, "name exceeds %d characters", models.MaxHabitNameLength)
	}

	habit := &models.Habit{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		Icon:       models.DefaultHabitIcon,
		Color:      models.DefaultHabitColor,
		StreakGoal: models.DefaultStreakGoal,
		FreezeMode: true,
		CreatedAt:  s.opts.Clock.Now().UTC(),
	}
	if in.Icon != "" {
		habit.Icon = in.Icon
	}
	if in.Color != "" {
		if !colorPattern.MatchString(in.Color) {
			return nil, errs.InvalidInput(op, "color %q is not a #rrggbb value", in.Color)
		}
		habit.Color = in.Color
	}
	if in.StreakGoal != nil {
		if *in.StreakGoal < 0 {
			return nil, errs.InvalidInput(op, "streak goal must not be negative")
		}
		habit.StreakGoal = *in.StreakGoal
	}
	if in.FreezeMode != nil {
		habit.FreezeMode = *in.FreezeMode
	}
	habit.UpdatedAt = habit.CreatedAt
	return habit, nil
}

// GetHabit returns a habit owned by userID. Habits of other users are reported
// as not found.
func (s *Service) GetHabit(ctx context.Context, userID, habitID string) (*models.Habit, error) {
	return ownedHabit(ctx, s.store, "habits.GetHabit", userID, habitID)
}

// ListHabits returns the user's habits in creation order.
func (s *Service) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error) {
	list, err := s.store.Habits.ListByUser(ctx, userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return list, nil
}

// UpdateNote replaces the note on an existing ledger record, the only mutable
// field of the ledger.
func (s *Service) UpdateNote(ctx context.Context, userID, habitID string, date calendar.Date, note string) (*models.CompletionRecord, error) {
	const op = "habits.UpdateNote"

	if utf8.RuneCountInString(note) > models.MaxNoteLength {
		return nil, errs.InvalidInput(op, "note exceeds %d characters", models.MaxNoteLength)
	}

	var rec *models.CompletionRecord
	err := s.mutate(ctx, "update_note", habitID, func(tx *repository.Store) error {
		habit, err := ownedHabit(ctx, tx, op, userID, habitID)
		if err != nil {
			return err
		}
		if habit.IsArchived {
			return errs.Archived(op, habitID)
		}
		rec, err = tx.Ledger.UpdateNote(ctx, habitID, date, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func ownedHabit(ctx context.Context, store *repository.Store, op, userID, habitID string) (*models.Habit, error) {
	habit, err := store.Habits.Get(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, errs.NotFound(op, habitID, "habit not found")
	}
	return habit, nil
}

// mutate runs fn in a transaction under the habit lock, retrying transient
// store failures. The lock is taken again on every attempt.
func (s *Service) mutate(ctx context.Context, operation, habitID string, fn func(tx *repository.Store) error) error {
	return s.withRetry(ctx, operation, func() error {
		unlock, err := s.lockHabit(ctx, operation, habitID)
		if err != nil {
			return err
		}
		defer unlock()
		return s.store.Transaction(ctx, fn)
	})
}

func (s *Service) lockHabit(ctx context.Context, operation, habitID string) (lock.Unlock, error) {
	lockCtx := ctx
	if s.opts.LockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.opts.LockWait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := s.locker.Lock(lockCtx, "habit:"+habitID)
	prommetrics.ObserveLockWait(operation, time.Since(start))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Transient("habits.lock", fmt.Errorf("%w: habit %s", lock.ErrNotAcquired, habitID))
		}
		return nil, err
	}
	return unlock, nil
}

func (s *Service) withRetry(ctx context.Context, operation string, fn func() error) error {
	policy := s.opts.RetryPolicy
	policy.Notify = func(err error, wait time.Duration) {
		prommetrics.RecordRetry(operation)
		s.log.Warn().
			Err(err).
			Str("operation", operation).
			Dur("wait", wait).
			Msg("Retrying after transient store error")
	}
	return retry.Do(ctx, policy, fn)
}
