package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/streakd/pkg/logger"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Mode         string // gin mode: debug, release or test
	MetricsPath  string // empty disables the metrics endpoint
	HealthChecks map[string]HealthCheck
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(h *Handler, opts RouterOptions, log *logger.Logger) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", healthHandler(opts.HealthChecks))
	if opts.MetricsPath != "" {
		router.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	api.POST("/habits", h.CreateHabit)
	api.GET("/habits", h.ListHabits)
	api.GET("/habits/:id", h.GetHabit)
	api.POST("/habits/:id/complete", h.CompleteHabit)
	api.PUT("/habits/:id/completions/:date/note", h.UpdateNote)
	api.PUT("/habits/:id/freeze-mode", h.SetFreezeMode)
	api.POST("/habits/:id/archive", h.ArchiveHabit)
	api.GET("/habits/:id/stats", h.GetHabitStats)
	api.GET("/habits/:id/history", h.GetHistory)
	api.GET("/stats", h.GetUserStats)
	api.GET("/achievements", h.ListAchievements)
	api.GET("/achievements/unseen", h.ListUnseenAchievements)
	api.GET("/achievements/catalog", h.GetAchievementCatalog)
	api.POST("/achievements/:id/seen", h.MarkAchievementSeen)

	admin := api.Group("/admin")
	admin.POST("/sweep", h.RunSweep)
	admin.POST("/habits/:id/repair", h.RepairHabit)

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"checks":    results,
			"timestamp": time.Now().UTC(),
		})
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
