package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredCleaner deletes rows that have aged out and reports how many.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupTarget pairs a cleaner with the name used in logs.
type CleanupTarget struct {
	Name    string
	Cleaner ExpiredCleaner
}

// CleanupManager periodically purges expired challenge records and sessions.
// Expired rows are already unusable; the sweep keeps the tables small.
type CleanupManager struct {
	targets  []CleanupTarget
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager.
func NewCleanupManager(targets []CleanupTarget, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		targets:  targets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called
// or the context is cancelled, so run it in its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, target := range cm.targets {
		rowsDeleted, err := target.Cleaner.CleanupExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup failed",
				slog.String("target", target.Name),
				slog.Any("error", err))
			continue
		}

		if rowsDeleted > 0 {
			cm.logger.Info("cleanup completed",
				slog.String("target", target.Name),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
