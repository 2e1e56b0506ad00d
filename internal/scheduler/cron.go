package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SnatchedChecker polls downloaders for snatched releases
type SnatchedChecker interface {
	CheckSnatchedAsync(ctx context.Context) bool
}

// Scanner runs the renamer in the background
type Scanner interface {
	ScanAsync(ctx context.Context, req renamer.Request) bool
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron            *cron.Cron
	tracker         SnatchedChecker
	scanner         Scanner
	runEveryMinutes int
	forceEveryHours int
	ctx             context.Context
	cancel          context.CancelFunc
	logger          *logrus.Logger
}

// NewScheduler creates a new scheduler. A zero forceEveryHours disables the forced scan.
func NewScheduler(tracker SnatchedChecker, scanner Scanner, runEveryMinutes, forceEveryHours int, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:            cron.New(),
		tracker:         tracker,
		scanner:         scanner,
		runEveryMinutes: runEveryMinutes,
		forceEveryHours: forceEveryHours,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	if s.runEveryMinutes > 0 {
		spec := fmt.Sprintf("@every %s", time.Duration(s.runEveryMinutes)*time.Minute)
		if _, err := s.cron.AddFunc(spec, s.runCheckSnatched); err != nil {
			return fmt.Errorf("failed to add check snatched job: %w", err)
		}
	}

	if s.forceEveryHours > 0 {
		spec := fmt.Sprintf("@every %s", time.Duration(s.forceEveryHours)*time.Hour)
		if _, err := s.cron.AddFunc(spec, s.runForcedScan); err != nil {
			return fmt.Errorf("failed to add forced scan job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"check_every_minutes": s.runEveryMinutes,
		"force_every_hours":   s.forceEveryHours,
	}).Info("Scheduler started")

	// Pick up whatever finished while we were down
	go s.runCheckSnatched()

	return nil
}

// Stop stops the scheduler and cancels running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
}

func (s *Scheduler) runCheckSnatched() {
	if !s.tracker.CheckSnatchedAsync(s.ctx) {
		s.logger.Debug("Snatched check still running, skipping")
	}
}

func (s *Scheduler) runForcedScan() {
	s.logger.Info("Running forced scan")
	if !s.scanner.ScanAsync(s.ctx, renamer.Request{}) {
		s.logger.Debug("Renamer busy, forced scan skipped")
	}
}
