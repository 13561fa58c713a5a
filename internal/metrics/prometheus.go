// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the streak engine.
var (
	// Counters.
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_completions_total",
			Help: "Manual completions processed, by outcome",
		},
		[]string{"outcome"},
	)

	FreezesEarnedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streakd_freezes_earned_total",
			Help: "Freeze credits earned",
		},
	)

	FreezesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_freezes_consumed_total",
			Help: "Freeze credits consumed to cover a missed day",
		},
		[]string{"source"}, // sweep, inline
	)

	StreakResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_streak_resets_total",
			Help: "Streaks broken by a missed day",
		},
		[]string{"source"},
	)

	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_achievements_unlocked_total",
			Help: "Achievements unlocked, by type",
		},
		[]string{"type"},
	)

	LedgerConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_ledger_conflicts_total",
			Help: "Ledger appends rejected because the day was already recorded",
		},
		[]string{"resolution"}, // idempotent, surfaced
	)

	DriftDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streakd_drift_detected_total",
			Help: "Habits whose cached counters disagreed with a ledger replay",
		},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_sweep_runs_total",
			Help: "Daily sweeps run, by status",
		},
		[]string{"status"}, // success, partial, cancelled, error
	)

	SweepHabitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_sweep_habits_total",
			Help: "Habits evaluated by the sweep, by result",
		},
		[]string{"result"}, // frozen, broken, skipped, failed
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streakd_store_retries_total",
			Help: "Retries of operations after a transient store error",
		},
		[]string{"operation"},
	)

	// Gauges.
	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streakd_sweep_last_run_timestamp",
			Help: "Unix timestamp of the last finished sweep",
		},
	)

	SweepInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streakd_sweep_in_progress",
			Help: "1 while a sweep is running",
		},
	)

	// Histograms.
	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streakd_sweep_duration_seconds",
			Help:    "Daily sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
		},
	)

	LockWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streakd_habit_lock_wait_seconds",
			Help:    "Time spent waiting for a habit lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)
)

// RecordCompletion records a manual completion outcome.
func RecordCompletion(outcome string) {
	CompletionsTotal.WithLabelValues(outcome).Inc()
}

// RecordFreezeEarned records an earned freeze.
func RecordFreezeEarned() {
	FreezesEarnedTotal.Inc()
}

// RecordFreezeConsumed records a consumed freeze.
func RecordFreezeConsumed(source string) {
	FreezesConsumedTotal.WithLabelValues(source).Inc()
}

// RecordStreakReset records a broken streak.
func RecordStreakReset(source string) {
	StreakResetsTotal.WithLabelValues(source).Inc()
}

// RecordAchievementUnlocked records a new achievement.
func RecordAchievementUnlocked(achievementType string) {
	AchievementsUnlockedTotal.WithLabelValues(achievementType).Inc()
}

// RecordLedgerConflict records a duplicate ledger append.
func RecordLedgerConflict(resolution string) {
	LedgerConflictsTotal.WithLabelValues(resolution).Inc()
}

// RecordDriftDetected records a habit whose counters drifted from the ledger.
func RecordDriftDetected() {
	DriftDetectedTotal.Inc()
}

// RecordSweepRun records a finished sweep.
func RecordSweepRun(status string) {
	SweepRunsTotal.WithLabelValues(status).Inc()
}

// RecordSweepHabit records one habit result within a sweep.
func RecordSweepHabit(result string) {
	SweepHabitsTotal.WithLabelValues(result).Inc()
}

// RecordRetry records a retry of a failed operation.
func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

// SetSweepLastRun sets the last sweep timestamp to now.
func SetSweepLastRun() {
	SweepLastRunTimestamp.SetToCurrentTime()
}

// SetSweepInProgress flags whether a sweep is running.
func SetSweepInProgress(running bool) {
	if running {
		SweepInProgress.Set(1)
		return
	}
	SweepInProgress.Set(0)
}

// ObserveSweepDuration records a sweep duration.
func ObserveSweepDuration(d time.Duration) {
	SweepDurationSeconds.Observe(d.Seconds())
}

// ObserveLockWait records time spent acquiring a habit lock.
func ObserveLockWait(operation string, d time.Duration) {
	LockWaitSeconds.WithLabelValues(operation).Observe(d.Seconds())
}
