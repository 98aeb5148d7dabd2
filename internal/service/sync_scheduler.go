package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/shop-session/pkg/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const syncTimeout = 30 * time.Second

// SyncScheduler runs the notification backup pull on a cron schedule.
type SyncScheduler struct {
	cron     *cron.Cron
	schedule string
	syncer   interface{ Sync(ctx context.Context) error }
	logger   *zap.Logger
}

// NewSyncScheduler creates a scheduler; nothing runs until Start
func NewSyncScheduler(schedule string, syncer interface{ Sync(ctx context.Context) error }, logger *zap.Logger) *SyncScheduler {
	logger = logger.Named("sync")
	cronLogger := observability.NewCronLogger(logger)

	return &SyncScheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		schedule: schedule,
		syncer:   syncer,
		logger:   logger,
	}
}

// Start registers the pull job and starts the scheduler
func (s *SyncScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("failed to schedule notification sync %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Notification sync scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running pull to finish
func (s *SyncScheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *SyncScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := s.syncer.Sync(ctx); err != nil {
		s.logger.Warn("Scheduled notification sync failed", zap.Error(err))
	}
}
