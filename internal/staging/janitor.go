package staging

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Janitor reaps staging entries that outlived their request: directories
// skipped by ReleaseOutput because they weren't empty, and files orphaned
// by a crash mid-conversion.
type Janitor struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

func NewJanitor(manager *Manager, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		manager:   manager,
		retention: retention,
		interval:  interval,
		logger:    logger.With(zap.String("component", "staging_janitor")),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Staging janitor started",
		zap.Duration("retention", j.retention),
		zap.Duration("interval", j.interval))

	// Run cleanup immediately on startup
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Staging janitor stopping")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep removes every staging entry whose modification time is older than
// the retention window. Entries younger than that may belong to an in-flight
// job and are left alone.
func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.manager.Root())
	if err != nil {
		j.logger.Error("Error reading staging root", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-j.retention)
	reapedCount := 0

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.manager.Root(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Error("Error reaping staging entry",
				zap.String("path", path),
				zap.Error(err))
		} else {
			j.logger.Info("Reaped stale staging entry",
				zap.String("path", path),
				zap.Time("mod_time", info.ModTime()))
			reapedCount++
		}
	}

	if reapedCount > 0 {
		j.logger.Info("Staging sweep finished", zap.Int("reaped_count", reapedCount))
	}
}
