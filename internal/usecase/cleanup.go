package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

// Cleanup retires completed runs older than a config's retention window.
type Cleanup struct {
	history domain.HistoryRepository
	stores  domain.StoreResolver
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

func NewCleanup(
	history domain.HistoryRepository,
	stores domain.StoreResolver,
	metrics Metrics,
	logger Logger,
) *Cleanup {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Cleanup{
		history: history,
		stores:  stores,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute deletes the artifacts of expired runs and marks them deleted. A
// failed deletion is logged and its entry left for the next pass. It returns
// how many entries were retired.
func (uc *Cleanup) Execute(ctx context.Context, cfg *domain.BackupConfig) (int, error) {
	days := cfg.EffectiveRetentionDays()
	cutoff := uc.now().AddDate(0, 0, -days)

	expired, err := uc.history.ListExpired(ctx, cfg.ID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired backups: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	uc.logger.Infof("[%s] Starting cleanup, retention: %d days, %d expired backup(s)", cfg.Name, days, len(expired))

	deleted := 0
	for _, h := range expired {
		if err := uc.retire(ctx, h); err != nil {
			uc.logger.Errorf("[%s] Failed to delete backup %s: %v", cfg.Name, h.ID, err)
			continue
		}
		deleted++
	}

	uc.metrics.ArtifactsReaped(deleted)
	uc.logger.Infof("[%s] Deleted %d old backup(s)", cfg.Name, deleted)
	return deleted, nil
}

func (uc *Cleanup) retire(ctx context.Context, h *domain.BackupHistory) error {
	store, err := uc.stores.Resolve(h.CloudLocation.Service)
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, h.CloudLocation.BucketName, h.ArtifactKey()); err != nil {
		return err
	}

	h.Status = domain.HistoryDeleted
	if err := uc.history.UpdateHistory(ctx, h); err != nil {
		return fmt.Errorf("mark history deleted: %w", err)
	}
	return nil
}
