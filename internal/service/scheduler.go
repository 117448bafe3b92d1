package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"wabridge/internal/constants"
)

// Scheduler periodically prunes received media files older than the
// retention window and re-runs the session staleness sweep. Webhook targets
// get the binary inline, so the on-disk copies are only an inspection
// convenience and can age out.
type Scheduler struct {
	mediaDir      string
	retentionDays int
	intervalHours int
	sweep         func(context.Context)
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(mediaDir string, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHours
	}
	return &Scheduler{
		mediaDir:      mediaDir,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// SetSweep registers the session staleness sweep to run on every cleanup
// tick, before media pruning.
func (s *Scheduler) SetSweep(sweep func(context.Context)) {
	s.sweep = sweep
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if s.sweep != nil {
		s.sweep(ctx)
	}

	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled media cleanup")

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	removed := 0

	err := filepath.Walk(s.mediaDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.logger.WithError(err).WithField("path", path).Warn("Failed to remove expired media file")
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to cleanup media files")
		return
	}

	s.logger.WithField("removed", removed).Info("Successfully completed media cleanup")
}
