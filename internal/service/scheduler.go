package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"coldwatch-data/internal/milesight"

	"go.uber.org/zap"
)

// SchedulerIntervals how often each background job runs.
type SchedulerIntervals struct {
	TokenRefresh time.Duration
	DeviceSync   time.Duration
	Monitor      time.Duration
	ConfigPoll   time.Duration
}

// Scheduler drives the background loops: proactive token refresh, device
// cache sync, the critical-device sweep, and history-log polling.
type Scheduler struct {
	tokens    *milesight.TokenManager
	sync      SyncService
	monitor   MonitorService
	telemetry TelemetryService
	intervals SchedulerIntervals
	logger    *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(
	tokens *milesight.TokenManager,
	syncSvc SyncService,
	monitor MonitorService,
	telemetry TelemetryService,
	intervals SchedulerIntervals,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		tokens:    tokens,
		sync:      syncSvc,
		monitor:   monitor,
		telemetry: telemetry,
		intervals: intervals,
		logger:    logger,
	}
}

// Start launches all loops. Each loop runs its job once immediately, then
// on its ticker. Start returns right away.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.launch(ctx, "token-refresh", s.intervals.TokenRefresh, func(ctx context.Context) error {
		return s.tokens.RefreshIfNeeded(ctx)
	})
	s.launch(ctx, "device-sync", s.intervals.DeviceSync, func(ctx context.Context) error {
		_, err := s.sync.SyncDevices(ctx)
		return err
	})
	s.launch(ctx, "critical-monitor", s.intervals.Monitor, func(ctx context.Context) error {
		_, err := s.monitor.CheckCriticalDevices(ctx)
		return err
	})
	s.launch(ctx, "history-poll", s.intervals.ConfigPoll, func(ctx context.Context) error {
		_, err := s.telemetry.PollLogs(ctx)
		return err
	})

	s.logger.Info("Scheduler started",
		zap.Duration("token_refresh", s.intervals.TokenRefresh),
		zap.Duration("device_sync", s.intervals.DeviceSync),
		zap.Duration("monitor", s.intervals.Monitor),
		zap.Duration("history_poll", s.intervals.ConfigPoll),
	)
}

// Stop cancels all loops and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) launch(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		s.logger.Info("Background job disabled", zap.String("job", name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runJob(ctx, name, job)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runJob(ctx, name, job)
			}
		}
	}()
}

func (s *Scheduler) runJob(ctx context.Context, name string, job func(context.Context) error) {
	if err := job(ctx); err != nil {
		// An unconfigured or disabled integration is an expected state,
		// not a failure worth paging on.
		if errors.Is(err, milesight.ErrNotConfigured) || errors.Is(err, milesight.ErrDisabled) {
			s.logger.Debug("Background job skipped",
				zap.String("job", name),
				zap.Error(err),
			)
			return
		}
		s.logger.Error("Background job failed",
			zap.String("job", name),
			zap.Error(err),
		)
	}
}
