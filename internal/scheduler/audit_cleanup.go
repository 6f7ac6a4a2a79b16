// Package scheduler triggers periodic maintenance jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// AuditCleanupEnqueuer queues an audit retention cleanup.
// Implemented by *tasks.Client.
type AuditCleanupEnqueuer interface {
	EnqueueAuditCleanup(retentionDays int) error
}

// AuditCleanupScheduler enqueues audit retention cleanups on a cron schedule.
type AuditCleanupScheduler struct {
	enqueuer      AuditCleanupEnqueuer
	schedule      string
	retentionDays int
	logger        *logrus.Logger

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.RWMutex
	isRunning bool
}

func NewAuditCleanupScheduler(enqueuer AuditCleanupEnqueuer, schedule string, retentionDays int, logger *logrus.Logger) *AuditCleanupScheduler {
	return &AuditCleanupScheduler{
		enqueuer:      enqueuer,
		schedule:      schedule,
		retentionDays: retentionDays,
		logger:        logger,
		cron:          cron.New(cron.WithParser(parser)),
	}
}

// Start validates the schedule and begins triggering cleanups.
func (s *AuditCleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule audit cleanup: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	s.logger.WithFields(logrus.Fields{
		"schedule":       s.schedule,
		"retention_days": s.retentionDays,
		"next_run":       s.cron.Entry(entryID).Next,
	}).Info("Audit cleanup scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running trigger to return.
func (s *AuditCleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.isRunning = false

	s.logger.Info("Audit cleanup scheduler stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *AuditCleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the next cleanup will be enqueued, or nil when stopped.
func (s *AuditCleanupScheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}

func (s *AuditCleanupScheduler) run() {
	if err := s.enqueuer.EnqueueAuditCleanup(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to enqueue audit cleanup")
		return
	}
	s.logger.Debug("Audit cleanup enqueued")
}
