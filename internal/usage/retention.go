package usage

import (
	"context"
	"strings"
	"time"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/metrics"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/rs/zerolog"
)

// RetentionScheduler deletes daily usage records that fall outside the
// retention window, once a day at a fixed time of day.
type RetentionScheduler struct {
	store         storage.Store
	clock         clock.Clock
	retentionDays int
	cleanupTime   time.Time // Time of day to sweep (only hour and minute are used)
	logger        zerolog.Logger
	stopChan      chan struct{}
	done          chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(store storage.Store, clk clock.Clock, retentionDays int, cleanupTime string, logger zerolog.Logger) (*RetentionScheduler, error) {
	// Parse cleanup time (HH:MM format)
	parsedTime, err := time.Parse("15:04", cleanupTime)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &RetentionScheduler{
		store:         store,
		clock:         clk,
		retentionDays: retentionDays,
		cleanupTime:   parsedTime,
		logger:        logger.With().Str("component", "retention-scheduler").Logger(),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("cleanup_time", rs.cleanupTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Usage retention scheduler started")
}

// Stop stops the retention scheduler and waits for a running sweep to finish
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	<-rs.done
	rs.logger.Info().Msg("Usage retention scheduler stopped")
}

// run is the main scheduler loop
func (rs *RetentionScheduler) run() {
	defer close(rs.done)

	for {
		next := rs.nextRun(rs.clock.Now())
		wait := next.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next retention sweep")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			rs.Sweep(context.Background())
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextRun calculates the next sweep time after now
func (rs *RetentionScheduler) nextRun(now time.Time) time.Time {
	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.cleanupTime.Hour(), rs.cleanupTime.Minute(), 0, 0,
		now.Location(),
	)

	// Already past today's slot, schedule for tomorrow
	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Sweep deletes every record dated before the retention cutoff and returns
// the number of records removed. A non-positive retention keeps everything.
func (rs *RetentionScheduler) Sweep(ctx context.Context) int {
	if rs.retentionDays <= 0 {
		return 0
	}

	cutoff := clock.DateKey(rs.clock.Now().AddDate(0, 0, -rs.retentionDays))

	keys, err := rs.store.List(ctx, KeyPrefix)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("retention", "list").Inc()
		rs.logger.Error().Err(err).Msg("Failed to list usage records")
		return 0
	}

	removed := 0
	for _, key := range keys {
		date := strings.TrimPrefix(key, KeyPrefix)
		if _, err := time.Parse(clock.DateLayout, date); err != nil {
			continue
		}
		// YYYY-MM-DD sorts lexically in date order
		if date >= cutoff {
			continue
		}
		if err := rs.store.Delete(ctx, key); err != nil {
			metrics.StorageErrors.WithLabelValues("retention", "delete").Inc()
			rs.logger.Error().Err(err).Str("date", date).Msg("Failed to delete usage record")
			continue
		}
		removed++
	}

	metrics.RecordsPurged.Add(float64(removed))
	rs.logger.Info().
		Int("records_deleted", removed).
		Str("cutoff_date", cutoff).
		Msg("Usage retention sweep complete")

	return removed
}
