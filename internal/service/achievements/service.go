// Package achievements evaluates milestone predicates and persists unlocks exactly once.
package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	prommetrics "github.com/aimd54/streakd/internal/metrics"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/pkg/logger"
)

// Unlocker persists one achievement. Both the plain repository and a
// transaction-bound one satisfy it.
type Unlocker interface {
	Unlock(ctx context.Context, achievement *models.Achievement) (bool, error)
}

// AchievementRepository interface for achievement operations.
type AchievementRepository interface {
	Unlocker
	ListByUser(ctx context.Context, userID string) ([]models.Achievement, error)
	ListUnseen(ctx context.Context, userID string) ([]models.Achievement, error)
	MarkSeen(ctx context.Context, userID, achievementID string) (*models.Achievement, error)
}

// Unlocked is an achievement with its display metadata.
type Unlocked struct {
	models.Achievement
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// Service handles achievement evaluation and unlocking.
type Service struct {
	repo    AchievementRepository
	catalog *Catalog
	known   *lru.Cache // "user_id/type" of unlocks known to be committed
	now     func() time.Time
	log     *logger.Logger
}

// NewService creates a new achievement service.
func NewService(repo *repository.AchievementRepository, cacheSize int, log *logger.Logger) (*Service, error) {
	return NewServiceWithInterfaces(repo, DefaultCatalog(), cacheSize, log)
}

// NewServiceWithInterfaces creates a new achievement service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo AchievementRepository, catalog *Catalog, cacheSize int, log *logger.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	known, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create unlock cache: %w", err)
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		known:   known,
		now:     time.Now,
		log:     log,
	}, nil
}

func knownKey(userID string, t models.AchievementType) string {
	return userID + "/" + string(t)
}

// Candidates evaluates in and drops types the user is already known to hold.
func (s *Service) Candidates(userID string, in Input) []models.AchievementType {
	var out []models.AchievementType
	for _, t := range Evaluate(in) {
		if !s.known.Contains(knownKey(userID, t)) {
			out = append(out, t)
		}
	}
	return out
}

// Persist unlocks types for the user through w, typically inside the caller's
// transaction. It returns only the achievements this call created; they must be
// passed to Committed once the transaction commits.
func (s *Service) Persist(ctx context.Context, w Unlocker, userID, habitID string, types []models.AchievementType) ([]models.Achievement, error) {
	var created []models.Achievement
	for _, t := range types {
		achievement := s.newAchievement(userID, habitID, t)
		isNew, err := w.Unlock(ctx, &achievement)
		if err != nil {
			return nil, fmt.Errorf("failed to unlock %s: %w", t, err)
		}
		if isNew {
			created = append(created, achievement)
			continue
		}
		// The row predates this call, so it is committed already.
		s.known.Add(knownKey(userID, t), struct{}{})
	}
	return created, nil
}

// Committed records achievements whose transaction has committed.
func (s *Service) Committed(created []models.Achievement) {
	for _, a := range created {
		s.known.Add(knownKey(a.UserID, a.Type), struct{}{})
		prommetrics.RecordAchievementUnlocked(string(a.Type))
		s.log.Info().
			Str("user_id", a.UserID).
			Str("achievement", string(a.Type)).
			Str("achievement_id", a.ID).
			Msg("Achievement unlocked")
	}
}

// Unlock unlocks one achievement outside any transaction. A duplicate resolves to
// the existing record with created=false.
func (s *Service) Unlock(ctx context.Context, userID string, t models.AchievementType, habitID string) (*models.Achievement, bool, error) {
	if !t.Valid() {
		return nil, false, fmt.Errorf("unknown achievement type %q", t)
	}
	achievement := s.newAchievement(userID, habitID, t)
	created, err := s.repo.Unlock(ctx, &achievement)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unlock %s: %w", t, err)
	}
	if created {
		s.Committed([]models.Achievement{achievement})
	} else {
		s.known.Add(knownKey(userID, t), struct{}{})
	}
	return &achievement, created, nil
}

// OnPremiumActivated is called by the billing boundary when a user becomes premium.
func (s *Service) OnPremiumActivated(ctx context.Context, userID string) (*models.Achievement, error) {
	achievement, _, err := s.Unlock(ctx, userID, models.AchievementPremiumMember, "")
	return achievement, err
}

// ListUnseen returns achievements the user has not acknowledged yet.
func (s *Service) ListUnseen(ctx context.Context, userID string) ([]Unlocked, error) {
	list, err := s.repo.ListUnseen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unseen achievements: %w", err)
	}
	return s.decorate(list), nil
}

// ListUnlocked returns every achievement the user holds.
func (s *Service) ListUnlocked(ctx context.Context, userID string) ([]Unlocked, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return s.decorate(list), nil
}

// MarkSeen acknowledges one of the user's achievements.
func (s *Service) MarkSeen(ctx context.Context, userID, achievementID string) (*Unlocked, error) {
	achievement, err := s.repo.MarkSeen(ctx, userID, achievementID)
	if err != nil {
		return nil, err
	}
	decorated := s.decorate([]models.Achievement{*achievement})
	return &decorated[0], nil
}

// Catalog returns every achievement definition in display order.
func (s *Service) Catalog() []Definition {
	return s.catalog.Definitions
}

func (s *Service) newAchievement(userID, habitID string, t models.AchievementType) models.Achievement {
	achievement := models.Achievement{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       t,
		UnlockedAt: s.now().UTC(),
	}
	if habitID != "" && s.catalog.HabitScoped(t) {
		achievement.HabitID = &habitID
	}
	return achievement
}

func (s *Service) decorate(list []models.Achievement) []Unlocked {
	out := make([]Unlocked, 0, len(list))
	for _, a := range list {
		def, _ := s.catalog.Lookup(a.Type)
		out = append(out, Unlocked{
			Achievement: a,
			Name:        def.Name,
			Icon:        def.Icon,
			Description: def.Description,
		})
	}
	return out
}
