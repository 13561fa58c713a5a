// Package scheduler triggers the daily reconciliation sweep.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/streakd/internal/calendar"
	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/service/reconcile"
	"github.com/aimd54/streakd/pkg/logger"
)

// Sweeper runs the sweep for one day.
type Sweeper interface {
	RunDailySweep(ctx context.Context, asOf calendar.Date) (*reconcile.SweepReport, error)
}

// Service handles daily sweep scheduling.
type Service struct {
	config  *config.Config
	sweeper Sweeper
	clock   calendar.Clock
	log     *logger.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, sweeper Sweeper, clock calendar.Clock, log *logger.Logger) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Service{
		config:  cfg,
		sweeper: sweeper,
		clock:   clock,
		log:     log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	cronExpr, err := s.buildCronExpression()
	if err != nil {
		return fmt.Errorf("failed to build cron expression: %w", err)
	}

	_, err = s.cron.AddFunc(cronExpr, s.runDailySweep)
	if err != nil {
		return fmt.Errorf("failed to register daily sweep job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cronExpr).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("time", s.config.Scheduler.Time).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop cancels a running sweep and waits for it to wind down. No sweep
// starts after Stop.
func (s *Service) Stop() {
	var done context.Context
	if s.cron != nil {
		done = s.cron.Stop()
	}

	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if done != nil {
		<-done.Done()
	}
	s.log.Info().Msg("Scheduler stopped")
}

// buildCronExpression generates a cron expression from config.
func (s *Service) buildCronExpression() (string, error) {
	// Parse time string (format: "HH:MM")
	parts := strings.Split(s.config.Scheduler.Time, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", s.config.Scheduler.Time)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	// Format: "minute hour day month weekday"
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// today is the sweep date. Day boundaries follow the engine time zone, not
// the zone the job is scheduled in.
func (s *Service) today() (calendar.Date, error) {
	loc, err := s.config.Engine.GetLocation()
	if err != nil {
		return "", fmt.Errorf("invalid engine timezone %q: %w", s.config.Engine.Timezone, err)
	}
	return calendar.Today(s.clock, loc), nil
}

// runDailySweep executes the daily sweep job.
func (s *Service) runDailySweep() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	asOf, err := s.today()
	if err != nil {
		s.log.Error().Err(err).Msg("Daily sweep not started")
		return
	}

	s.log.Info().Str("date", asOf.String()).Msg("Running daily sweep job")

	report, err := s.sweeper.RunDailySweep(ctx, asOf)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("date", asOf.String()).
			Msg("Daily sweep job failed")
		return
	}

	event := s.log.Info()
	if report.Cancelled || len(report.Failed) > 0 {
		event = s.log.Warn()
	}
	event.
		Str("date", asOf.String()).
		Int("processed", report.Processed).
		Int("failed", len(report.Failed)).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("Daily sweep job completed")
}
