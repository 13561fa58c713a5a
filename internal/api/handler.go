// Package api provides the REST handlers of the streak engine. The caller's
// identity is resolved upstream and passed in the X-User-ID header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/internal/service/habits"
	"github.com/aimd54/streakd/internal/service/reconcile"
	"github.com/aimd54/streakd/internal/service/stats"
	"github.com/aimd54/streakd/pkg/logger"
)

// UserIDHeader carries the authenticated user id.
const UserIDHeader = "X-User-ID"

// HabitService interface for habit operations.
type HabitService interface {
	Today() calendar.Date
	CreateHabit(ctx context.Context, userID string, in habits.NewHabit) (*models.Habit, error)
	GetHabit(ctx context.Context, userID, habitID string) (*models.Habit, error)
	ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error)
	CompleteHabit(ctx context.Context, userID, habitID string, date calendar.Date, note string) (*habits.CompletionResult, error)
	UpdateNote(ctx context.Context, userID, habitID string, date calendar.Date, note string) (*models.CompletionRecord, error)
	SetFreezeMode(ctx context.Context, userID, habitID string, enabled bool) (*models.Habit, error)
	ArchiveHabit(ctx context.Context, userID, habitID string) (*models.Habit, error)
	Repair(ctx context.Context, habitID string, dryRun bool) (*habits.RepairReport, error)
}

// StatsService interface for read-only statistics.
type StatsService interface {
	GetHabitStats(ctx context.Context, habitID string, today calendar.Date) (*stats.HabitStats, error)
	GetUserStats(ctx context.Context, userID string, today calendar.Date) (*stats.UserStats, error)
	GetHistory(ctx context.Context, habitID string, from, to calendar.Date) ([]models.CompletionRecord, error)
}

// AchievementService interface for achievement reads and acknowledgements.
type AchievementService interface {
	ListUnlocked(ctx context.Context, userID string) ([]achievements.Unlocked, error)
	ListUnseen(ctx context.Context, userID string) ([]achievements.Unlocked, error)
	MarkSeen(ctx context.Context, userID, achievementID string) (*achievements.Unlocked, error)
	Catalog() []achievements.Definition
}

// Sweeper runs the daily reconciliation on demand.
type Sweeper interface {
	RunDailySweep(ctx context.Context, asOf calendar.Date) (*reconcile.SweepReport, error)
}

// Handler handles streak engine API requests.
type Handler struct {
	habits       HabitService
	stats        StatsService
	achievements AchievementService
	sweeper      Sweeper
	log          *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(habitService HabitService, statsService StatsService, achievementService AchievementService, sweeper Sweeper, log *logger.Logger) *Handler {
	return &Handler{
		habits:       habitService,
		stats:        statsService,
		achievements: achievementService,
		sweeper:      sweeper,
		log:          log,
	}
}

type createHabitRequest struct {
	Name       string `json:"name" binding:"required"`
	Icon       string `json:"icon"`
	Color      string `json:"color"`
	StreakGoal *int   `json:"streak_goal"`
	FreezeMode *bool  `json:"freeze_mode"`
}

type completeRequest struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type freezeModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CreateHabit creates a habit for the caller.
// POST /api/v1/habits.
func (h *Handler) CreateHabit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req createHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	habit, err := h.habits.CreateHabit(c.Request.Context(), userID, habits.NewHabit{
		Name:       req.Name,
		Icon:       req.Icon,
		Color:      req.Color,
		StreakGoal: req.StreakGoal,
		FreezeMode: req.FreezeMode,
	})
	if err != nil {
		h.engineError(c, err, "Failed to create habit")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"habit": habit})
}

// ListHabits lists the caller's habits.
// GET /api/v1/habits?include_archived=true.
func (h *Handler) ListHabits(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	includeArchived, err := strconv.ParseBool(c.DefaultQuery("include_archived", "false"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid include_archived parameter")
		return
	}

	list, err := h.habits.ListHabits(c.Request.Context(), userID, includeArchived)
	if err != nil {
		h.engineError(c, err, "Failed to list habits")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habits":       list,
		"total_habits": len(list),
	})
}

// GetHabit returns one habit.
// GET /api/v1/habits/:id.
func (h *Handler) GetHabit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	habit, err := h.habits.GetHabit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.engineError(c, err, "Failed to get habit")
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

// CompleteHabit records a completion. An empty date means today.
// POST /api/v1/habits/:id/complete.
func (h *Handler) CompleteHabit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	var date calendar.Date
	if req.Date != "" {
		d, err := calendar.Parse(req.Date)
		if err != nil {
			h.errorResponse(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		date = d
	}

	result, err := h.habits.CompleteHabit(c.Request.Context(), userID, c.Param("id"), date, req.Note)
	if err != nil {
		h.engineError(c, err, "Failed to complete habit")
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateNote edits the note of an existing completion.
// PUT /api/v1/habits/:id/completions/:date/note.
func (h *Handler) UpdateNote(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	date, err := calendar.Parse(c.Param("date"))
	if err != nil {
		h.errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	record, err := h.habits.UpdateNote(c.Request.Context(), userID, c.Param("id"), date, req.Note)
	if err != nil {
		h.engineError(c, err, "Failed to update note")
		return
	}

	c.JSON(http.StatusOK, gin.H{"completion": record})
}

// SetFreezeMode toggles automatic freeze consumption.
// PUT /api/v1/habits/:id/freeze-mode.
func (h *Handler) SetFreezeMode(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req freezeModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	habit, err := h.habits.SetFreezeMode(c.Request.Context(), userID, c.Param("id"), *req.Enabled)
	if err != nil {
		h.engineError(c, err, "Failed to set freeze mode")
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

// ArchiveHabit archives a habit.
// POST /api/v1/habits/:id/archive.
func (h *Handler) ArchiveHabit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	habit, err := h.habits.ArchiveHabit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.engineError(c, err, "Failed to archive habit")
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

// GetHabitStats returns the statistics of one habit.
// GET /api/v1/habits/:id/stats.
func (h *Handler) GetHabitStats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	habitID := c.Param("id")
	if _, err := h.habits.GetHabit(ctx, userID, habitID); err != nil {
		h.engineError(c, err, "Failed to get habit")
		return
	}

	habitStats, err := h.stats.GetHabitStats(ctx, habitID, h.habits.Today())
	if err != nil {
		h.engineError(c, err, "Failed to get habit stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        habitStats,
		"generated_at": time.Now().UTC(),
	})
}

// GetHistory returns the ledger of one habit. The range defaults to the
// last 30 days.
// GET /api/v1/habits/:id/history?from=2024-01-01&to=2024-01-31.
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	today := h.habits.Today()
	from, err := h.parseDateQuery(c, "from", today.AddDays(-29))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := h.parseDateQuery(c, "to", today)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	habitID := c.Param("id")
	if _, err := h.habits.GetHabit(ctx, userID, habitID); err != nil {
		h.engineError(c, err, "Failed to get habit")
		return
	}

	records, err := h.stats.GetHistory(ctx, habitID, from, to)
	if err != nil {
		h.engineError(c, err, "Failed to get history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_id":    habitID,
		"from":        from,
		"to":          to,
		"completions": records,
	})
}

// GetUserStats returns the caller's aggregate statistics.
// GET /api/v1/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	userStats, err := h.stats.GetUserStats(c.Request.Context(), userID, h.habits.Today())
	if err != nil {
		h.engineError(c, err, "Failed to get user stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        userStats,
		"generated_at": time.Now().UTC(),
	})
}

// ListAchievements returns every achievement the caller holds.
// GET /api/v1/achievements.
func (h *Handler) ListAchievements(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	list, err := h.achievements.ListUnlocked(c.Request.Context(), userID)
	if err != nil {
		h.engineError(c, err, "Failed to list achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       list,
		"total_achievements": len(list),
	})
}

// ListUnseenAchievements returns achievements the caller has not acknowledged.
// GET /api/v1/achievements/unseen.
func (h *Handler) ListUnseenAchievements(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	list, err := h.achievements.ListUnseen(c.Request.Context(), userID)
	if err != nil {
		h.engineError(c, err, "Failed to list unseen achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       list,
		"total_achievements": len(list),
	})
}

// MarkAchievementSeen acknowledges one achievement.
// POST /api/v1/achievements/:id/seen.
func (h *Handler) MarkAchievementSeen(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	achievement, err := h.achievements.MarkSeen(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.engineError(c, err, "Failed to mark achievement seen")
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievement": achievement})
}

// GetAchievementCatalog returns every achievement definition.
// GET /api/v1/achievements/catalog.
func (h *Handler) GetAchievementCatalog(c *gin.Context) {
	catalog := h.achievements.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"achievements":       catalog,
		"total_achievements": len(catalog),
	})
}

// RunSweep runs the daily sweep now.
// POST /api/v1/admin/sweep?date=2024-01-02.
func (h *Handler) RunSweep(c *gin.Context) {
	asOf, err := h.parseDateQuery(c, "date", h.habits.Today())
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.sweeper.RunDailySweep(c.Request.Context(), asOf)
	if err != nil {
		if errors.Is(err, reconcile.ErrSweepRunning) {
			h.errorResponse(c, http.StatusConflict, err.Error())
			return
		}
		h.engineError(c, err, "Failed to run sweep")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// RepairHabit replays the ledger of a habit and fixes drifted counters.
// POST /api/v1/admin/habits/:id/repair?dry_run=true.
func (h *Handler) RepairHabit(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid dry_run parameter")
		return
	}

	report, err := h.habits.Repair(c.Request.Context(), c.Param("id"), dryRun)
	if err != nil {
		h.engineError(c, err, "Failed to repair habit")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Helper functions

// userID reads the caller from the identity header and answers 401 when absent.
func (h *Handler) userID(c *gin.Context) (string, bool) {
	userID := c.GetHeader(UserIDHeader)
	if userID == "" {
		h.errorResponse(c, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return "", false
	}
	return userID, true
}

// parseDateQuery reads a YYYY-MM-DD query parameter.
func (h *Handler) parseDateQuery(c *gin.Context, name string, def calendar.Date) (calendar.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	d, err := calendar.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return d, nil
}

// StatusFor maps an engine error onto an HTTP status.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindConflict, errs.KindArchived:
		return http.StatusConflict
	case errs.KindInvalidDate:
		return http.StatusUnprocessableEntity
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindTransientStore:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// engineError logs err and answers with its mapped status. Engine errors
// carry a client-safe message; anything else is reported generically.
func (h *Handler) engineError(c *gin.Context, err error, message string) {
	status := StatusFor(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.
		Err(err).
		Str("path", c.FullPath()).
		Str("habit_id", c.Param("id")).
		Int("status", status).
		Msg(message)

	if errs.KindOf(err) != "" && status != http.StatusServiceUnavailable {
		h.errorResponse(c, status, err.Error())
		return
	}
	h.errorResponse(c, status, message)
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
