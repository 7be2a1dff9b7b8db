package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/eloverblik/internal/api"
)

// Syncer is the part of *api.SeriesFetcher the scheduler drives.
type Syncer interface {
	SyncRecent(ctx context.Context) (api.SyncResult, error)
}

type Scheduler struct {
	ctx      context.Context
	fetcher  Syncer
	logger   *logrus.Logger
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	onSync   func()
}

// NewScheduler runs fetcher on the standard five-field cron schedule.
// Each run is bounded by timeout.
func NewScheduler(ctx context.Context, fetcher Syncer, schedule string, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		fetcher:  fetcher,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		timeout:  timeout,
	}
}

// OnSync registers fn to run after every successful sync.
func (s *Scheduler) OnSync(fn func()) {
	s.onSync = fn
}

// Start the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.collectData); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Scheduler started")
	return nil
}

// collectData syncs the lookback window into the database
func (s *Scheduler) collectData() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	result, err := s.fetcher.SyncRecent(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled sync failed")
		return
	}
	if s.onSync != nil {
		s.onSync()
	}
	s.logger.WithFields(logrus.Fields{
		"metering_points": result.MeteringPoints,
		"points":          result.Points,
		"readings":        result.Readings,
	}).Debug("Scheduled sync finished")
}

// Stop the scheduler and wait for a running sync to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
